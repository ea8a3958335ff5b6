package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gatewaylab/gatewaybench/internal/config"
	"github.com/gatewaylab/gatewaybench/internal/daemon"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "could not run: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.Config
	var logger *logrus.Entry

	cmd := &cobra.Command{
		Use:           "gatewaybench",
		Short:         "Load test an API gateway's process endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := cfg.SetValues(); err != nil {
				return fmt.Errorf("failed to set values: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger = logrus.NewEntry(cfg.NewLogger())
			return nil
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workload API server",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return daemon.Run(&cfg, logger)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if config.CommitHash == "" {
				fmt.Fprintf(out, "gatewaybench dev\n")
				return
			}
			// the branch is only of interest for non-main builds
			branch := config.Branch
			if branch == "main" {
				branch = ""
			}
			fmt.Fprintf(out, "gatewaybench %s (%s) %s\n", config.Version, config.CommitHash, branch)
			if config.BuildTimestamp != "" {
				fmt.Fprintf(out, "built %s\n", config.BuildTimestamp)
			}
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as a toml file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := cfg.MarshalTOML()
			if err != nil {
				return fmt.Errorf("could not render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.AddCommand(
		newRunCmd(&cfg, func() *logrus.Entry { return logger }),
		serveCmd,
		configCmd,
		newTargetCmd(func() *logrus.Entry { return logger }),
		versionCmd,
	)

	if err := cfg.Init(cmd); err != nil {
		fmt.Fprintf(os.Stderr, "could not parse config options: %v\n", err)
		os.Exit(1)
	}
	return cmd
}
