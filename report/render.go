// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format selects the rendering of a Summary.
type Format string

const (
	Text Format = "text"
	YAML Format = "yaml"
	JSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case Text, YAML, JSON:
		return f, nil
	case "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("report: unknown format %q", s)
	}
}

// Write renders the summary in format f.
func (s *Summary) Write(w io.Writer, f Format) error {
	switch f {
	case Text:
		return s.writeText(w)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	default:
		return fmt.Errorf("report: unknown format %q", f)
	}
}

func (s *Summary) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	p := func(format string, a ...any) {
		_, _ = fmt.Fprintf(tw, format, a...)
	}

	if s.State != "" {
		if !s.Success {
			p("*** NOT CONVERGED (%s) ***\n", s.State)
		}
		p("run\t%s\n", s.RunID)
		p("state\t%s\n", s.State)
		if s.Reason != "" {
			p("reason\t%s\n", s.Reason)
		}
		p("iterations\t%d\n", s.Iterations)
		p("evaluations\t%d (%d infeasible)\n", s.Evaluations, s.Infeasible)
	}
	p("objective\t%s (%s)\n", sci(float64(s.Objective)), s.Mode)
	p("max |rel err|\t%s\n", rel(float64(s.MaxRelErr)))
	p("κ₀\t%s\n", sci(float64(s.Kappa0)))
	if s.Cause != "" {
		p("cause\t%s\n", s.Cause)
	}
	p("\n")

	p("PARAMETER\tVALUE\t\n")
	for _, q := range s.Parameters {
		v := fmt.Sprintf("%.6f", q.Value)
		if q.Scale {
			v = sci(q.Value)
		}
		mark := "fixed"
		if q.Free {
			mark = "free"
		}
		p("%s\t%s\t%s\n", q.Symbol, v, mark)
	}
	p("\n")

	p("CONSTANT\tCOMPUTED\tREFERENCE\tREL ERR\tσ\tTARGET\n")
	for _, c := range s.Constants {
		sigma := "-"
		if v := float64(c.Sigma); !math.IsNaN(v) {
			sigma = fmt.Sprintf("%.2f", v)
		}
		target := ""
		if c.Target {
			target = "*"
		}
		p("%s\t%s\t%s\t%s\t%s\t%s\n", c.Symbol, sci(float64(c.Computed)), sci(float64(c.Reference)),
			rel(float64(c.RelErr)), sigma, target)
	}
	return tw.Flush()
}

func sci(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.6e", v)
}

func rel(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%+.3e", v)
}
