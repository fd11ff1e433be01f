// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jdbacl/internal/output"
)

type globalOptions struct {
	configFile string
	format     string
	outFile    string
	verbose    bool
	logger     *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:          "jdbacl",
		Short:        "Cross-database identity mapping and key reconciliation",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(opts.verbose)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Session config file (yaml, toml or json); JDBACL_* variables override it")
	rootCmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "", "Output format: human, json or sql")
	rootCmd.PersistentFlags().StringVarP(&opts.outFile, "output", "o", "", "Write the result to a file instead of stdout")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug details to stderr")

	rootCmd.AddCommand(identitiesCmd(opts))
	rootCmd.AddCommand(keysCmd(opts))
	rootCmd.AddCommand(diffCmd(opts))
	rootCmd.AddCommand(transcodeCmd(opts))
	return rootCmd
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func printInfo(cmd *cobra.Command, format string, msg string) {
	if strings.EqualFold(strings.TrimSpace(format), string(output.FormatJSON)) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), msg)
		return
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), msg)
}

// emit writes the formatted result to stdout or to the --output file.
func emit(cmd *cobra.Command, opts *globalOptions, formatted string) error {
	if opts.outFile == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), formatted)
		return err
	}
	if err := os.WriteFile(opts.outFile, []byte(formatted), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	printInfo(cmd, opts.format, fmt.Sprintf("Output saved to %s", opts.outFile))
	return nil
}
