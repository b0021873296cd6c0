// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command rotfit fits the free ROT parameters to the observed physical constants.
//
// Exit status is 0 when the fit converged, 2 when it stopped without converging
// and 1 when no fit could be run.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/curioloop/rotfit/config"
	"github.com/curioloop/rotfit/engine"
	"github.com/curioloop/rotfit/logging"
	"github.com/curioloop/rotfit/report"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	code := engine.ExitConverged
	root := newRootCmd(stdout, stderr, &code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "rotfit: %v\n", err)
		return engine.ExitError
	}
	return code
}

func newRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	root := &cobra.Command{
		Use:   "rotfit",
		Short: "Fit ROT parameters to physical constants",
		Long: `rotfit derives nine physical constants from fourteen ROT parameters and
fits the free parameters so the derived values match their references.

Example:
  rotfit fit -c rotfit.yaml
  rotfit fit --free p6,p7,p8,p9 --targets m_e,alpha_s,m_p,e --format yaml
  rotfit derive`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newFitCmd(stdout, stderr, code), newDeriveCmd(stdout, stderr))
	return root
}

func newFitCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Run the optimizer and report the best parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, format, err := load(configPath, cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
			if err != nil {
				return err
			}
			out, err := engine.Run(cfg, logger)
			if out == nil {
				return err
			}
			if werr := out.Summary.Write(stdout, format); werr != nil {
				return fmt.Errorf("write report: %w", werr)
			}
			if err != nil {
				return err
			}
			*code = engine.ExitCode(out.Result.State)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	config.BindFlags(cmd.Flags())
	return cmd
}

func newDeriveCmd(stdout, stderr io.Writer) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the constants derived from the configured parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, format, err := load(configPath, cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
			if err != nil {
				return err
			}
			s, err := engine.Derive(cfg, logger)
			if err != nil {
				return err
			}
			return s.Write(stdout, format)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	config.BindFlags(cmd.Flags())
	return cmd
}

func load(path string, cmd *cobra.Command) (*config.Config, report.Format, error) {
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, "", err
	}
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, "", err
	}
	return cfg, format, nil
}
