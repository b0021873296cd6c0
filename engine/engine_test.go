// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/curioloop/rotfit/config"
	"github.com/curioloop/rotfit/fit"
	"github.com/curioloop/rotfit/logging"
	"github.com/curioloop/rotfit/model"
	"github.com/curioloop/rotfit/objective"
	"github.com/curioloop/rotfit/report"
)

var _ = Describe("Run", func() {
	var (
		cfg    *config.Config
		logger logr.Logger
	)

	BeforeEach(func() {
		var err error
		cfg, err = config.Load("", nil)
		Expect(err).NotTo(HaveOccurred())
		logger = logging.NewTestLogger(GinkgoWriter)
	})

	Context("with the default configuration", func() {
		It("converges below the target", func() {
			out, err := Run(cfg, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Result.State).To(Equal(fit.Converged))
			Expect(out.Result.TargetReached).To(BeTrue())
			Expect(out.Result.F).To(BeNumerically("<", 1e-13))
			Expect(out.Summary.State).To(Equal("CONVERGED"))
			Expect(out.Summary.RunID).NotTo(BeEmpty())
			Expect(out.Report.Feasible).To(BeTrue())
			Expect(out.Report.MaxAbsRelErr()).To(BeNumerically("<", 1e-5))
			Expect(ExitCode(out.Result.State)).To(Equal(ExitConverged))
		})

		It("keeps the objective non-increasing", func() {
			out, err := Run(cfg, logger)
			Expect(err).NotTo(HaveOccurred())
			h := out.Result.History
			for i := 1; i < len(h); i++ {
				Expect(h[i]).To(BeNumerically("<=", h[i-1]))
			}
		})
	})

	Context("with the partial fit of the original postulates", func() {
		It("fits p6 to p9 against four constants", func() {
			cfg.Free = []string{"p6", "p7", "p8", "p9"}
			cfg.Targets = []string{"m_e", "alpha_s", "m_p", "e"}
			out, err := Run(cfg, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Result.OK).To(BeTrue())
			Expect(out.Result.Params[model.P1]).To(Equal(model.DefaultParams[model.P1]))
			for _, c := range out.Summary.Constants {
				Expect(c.Target).To(Equal(c.Name == "m_e" || c.Name == "alpha_s" || c.Name == "m_p" || c.Name == "e"))
			}
		})
	})

	Context("when a reference is missing", func() {
		It("fails before any iteration", func() {
			cfg.References = map[string]objective.Reference{
				"c":    {Value: 2.99792458e8},
				"hbar": {Value: 1.054571817e-34},
			}
			out, err := Run(cfg, logger)
			Expect(out).To(BeNil())
			Expect(errors.Is(err, objective.ErrMissingReference)).To(BeTrue())
		})
	})

	Context("when the seed is infeasible", func() {
		It("diverges and still reports", func() {
			cfg.InitialParams["t0"] = 0
			out, err := Run(cfg, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Result.State).To(Equal(fit.Diverged))
			Expect(out.Result.NumIter).To(BeZero())
			Expect(out.Report.Feasible).To(BeFalse())
			Expect(math.IsNaN(float64(out.Summary.Objective))).To(BeTrue())
			Expect(ExitCode(out.Result.State)).To(Equal(ExitNotConverged))

			var buf bytes.Buffer
			Expect(out.Summary.Write(&buf, report.Text)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring("NOT CONVERGED (DIVERGED)"))
		})
	})

	Context("when the budget is too small", func() {
		It("stops at the iteration limit", func() {
			cfg.MaxIterations = 1
			cfg.ObjectiveMode = "relative"
			out, err := Run(cfg, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Result.State).To(Equal(fit.MaxIterationsReached))
			Expect(out.Summary.State).To(Equal("MAX_ITERATIONS_REACHED"))
			Expect(ExitCode(out.Result.State)).To(Equal(ExitNotConverged))
		})
	})

	Context("with a metrics file", func() {
		It("writes the textfile", func() {
			cfg.Output.MetricsFile = filepath.Join(GinkgoT().TempDir(), "rotfit.prom")
			_, err := Run(cfg, logger)
			Expect(err).NotTo(HaveOccurred())
			data, err := os.ReadFile(cfg.Output.MetricsFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`rotfit_terminal_state{state="CONVERGED"} 1`))
		})

		It("reports an unwritable path", func() {
			cfg.Output.MetricsFile = filepath.Join(GinkgoT().TempDir(), "missing", "rotfit.prom")
			out, err := Run(cfg, logger)
			Expect(err).To(HaveOccurred())
			Expect(out).NotTo(BeNil())
		})
	})

	Context("at trace verbosity", func() {
		It("replays the trajectory", func() {
			var buf bytes.Buffer
			out, err := Run(cfg, logging.NewTestLogger(&buf))
			Expect(err).NotTo(HaveOccurred())
			Expect(bytes.Count(buf.Bytes(), []byte("\tIteration\t"))).To(Equal(len(out.Result.History)))
			Expect(buf.String()).To(ContainSubstring("Fit finished"))
		})
	})
})

var _ = Describe("Derive", func() {
	It("reports the constants without fitting", func() {
		cfg, err := config.Load("", nil)
		Expect(err).NotTo(HaveOccurred())
		s, err := Derive(cfg, logging.NewTestLogger(GinkgoWriter))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.State).To(BeEmpty())
		Expect(s.Constants).To(HaveLen(int(model.NumConstants)))
		Expect(s.Parameters).To(HaveLen(int(model.NumParams)))
	})
})
