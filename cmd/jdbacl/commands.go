package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jdbacl/internal/apply"
	"jdbacl/internal/diff"
	"jdbacl/internal/identity"
	"jdbacl/internal/output"
	"jdbacl/internal/parser"
	"jdbacl/internal/session"
)

func identitiesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identities",
		Short: "Inspect identity definitions",
	}

	var schemaFile string
	checkCmd := &cobra.Command{
		Use:   "check <identities.toml>",
		Short: "Parse identity definitions and check them against a schema",
		Long: `Check parses an identity definition file, validates every query and the
ownership chains of sub-nk-pk-query identities, and lists the identities found.

With --schema, every identified table must exist in the schema and have a primary key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := parser.ParseIdentities(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Identities found: %d\n", len(provider.Tables()))
			for _, table := range provider.Tables() {
				_, _ = fmt.Fprintf(out, "- %s\n", provider.Lookup(table).Description())
			}

			if schemaFile == "" {
				return nil
			}
			schema, err := parser.ParseSchema(schemaFile)
			if err != nil {
				return err
			}
			return checkAgainstSchema(provider, schema)
		},
	}
	checkCmd.Flags().StringVarP(&schemaFile, "schema", "s", "", "CREATE TABLE statements to check the identities against")

	cmd.AddCommand(checkCmd)
	return cmd
}

func checkAgainstSchema(provider *identity.Provider, schema identity.Metadata) error {
	var problems []string
	for _, table := range provider.Tables() {
		model := provider.Lookup(table)
		if _, ok := model.(*identity.NoIdentity); ok {
			continue
		}
		t := schema.FindTable(table)
		switch {
		case t == nil:
			problems = append(problems, fmt.Sprintf("table %q is not in the schema", table))
		case len(t.PrimaryKeyColumns()) == 0:
			problems = append(problems, fmt.Sprintf("table %q has no primary key", table))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("identity check failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func openSession(ctx context.Context, opts *globalOptions) (*session.Session, error) {
	cfg, err := session.LoadConfig(opts.configFile)
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, cfg, session.WithLogger(opts.logger))
}

func closeSession(cmd *cobra.Command, s *session.Session) {
	if err := s.Close(); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Failed to close database connections: %v\n", err)
	}
}

func keysCmd(opts *globalOptions) *cobra.Command {
	var dbID string
	cmd := &cobra.Command{
		Use:   "keys <table>",
		Short: "Dump the natural key index of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer closeSession(cmd, s)

			if dbID == "" {
				dbID = s.Target().ID
			}
			model, err := s.Provider().Identity(args[0])
			if err != nil {
				return err
			}
			entries, err := s.Mapper().Entries(ctx, dbID, model)
			if err != nil {
				return err
			}
			logStats(opts.logger, s)

			formatter, err := output.NewFormatter(opts.format)
			if err != nil {
				return err
			}
			formatted, err := formatter.FormatKeys(&output.KeyDump{
				DB:       dbID,
				Table:    model.Table(),
				Identity: model.Description(),
				Entries:  entries,
			})
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			return emit(cmd, opts, formatted)
		},
	}
	cmd.Flags().StringVar(&dbID, "db", "", "Database id to read (defaults to the target)")
	return cmd
}

func diffCmd(opts *globalOptions) *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "diff <table>",
		Short: "Compare the natural keys of a table in a source and the target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer closeSession(cmd, s)

			src, err := s.Source(sourceID)
			if err != nil {
				return err
			}
			model, err := s.Provider().Identity(args[0])
			if err != nil {
				return err
			}
			keyDiff, err := diff.Compare(ctx, s.Mapper(), model, src.ID)
			if err != nil {
				return err
			}
			logStats(opts.logger, s)

			formatter, err := output.NewFormatter(opts.format)
			if err != nil {
				return err
			}
			formatted, err := formatter.FormatDiff(keyDiff)
			if err != nil {
				return fmt.Errorf("failed to format output: %w", err)
			}
			return emit(cmd, opts, formatted)
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Source database id (optional with a single source)")
	return cmd
}

func transcodeCmd(opts *globalOptions) *cobra.Command {
	var sourceID string
	var doApply bool
	var dryRun bool
	var transaction bool
	var unsafe bool
	var timeout int

	cmd := &cobra.Command{
		Use:   "transcode <table>...",
		Short: "Rewrite source rows into target keys",
		Long: `Transcode reads every row of the given tables from a source database, skips
the rows whose natural key the target already holds, assigns new target keys
to the others and rewrites their foreign keys into target keys.

Tables are processed in the given order, so referenced tables must come first.

Examples:
  jdbacl transcode country state --config jdbacl.yaml
  jdbacl transcode country state --config jdbacl.yaml --apply --dry-run
  jdbacl transcode country --config jdbacl.yaml --format sql -o country.sql`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
			defer cancel()

			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer closeSession(cmd, s)

			src, err := s.Source(sourceID)
			if err != nil {
				return err
			}
			formatter, err := output.NewFormatter(opts.format)
			if err != nil {
				return err
			}

			var formatted string
			var statements []string
			for _, table := range args {
				res, err := s.TranscodeTable(ctx, src.ID, table)
				if err != nil {
					return err
				}
				result := &output.Transcoded{
					Table:    res.Table,
					SourceDB: res.SourceDB,
					TargetDB: s.Target().ID,
					Rows:     res.Rows,
					Renderer: s.Target().Renderer,
				}
				text, err := formatter.FormatTranscoded(result)
				if err != nil {
					return fmt.Errorf("failed to format output: %w", err)
				}
				formatted += text
				stmts, err := output.InsertStatements(result)
				if err != nil {
					return err
				}
				statements = append(statements, stmts...)
				if res.Skipped > 0 {
					printInfo(cmd, opts.format, fmt.Sprintf("%s: %d rows already in %s", res.Table, res.Skipped, s.Target().ID))
				}
			}
			logStats(opts.logger, s)

			if !doApply {
				return emit(cmd, opts, formatted)
			}

			applier := apply.NewApplier(s.TargetConn(), apply.Options{
				DryRun:      dryRun,
				Transaction: transaction,
				Unsafe:      unsafe,
				Out:         cmd.OutOrStdout(),
				Logger:      opts.logger,
			})
			return applier.Apply(ctx, statements)
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "Source database id (optional with a single source)")
	cmd.Flags().BoolVar(&doApply, "apply", false, "Insert the transcoded rows into the target")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "With --apply, print statements and run preflight checks without executing")
	cmd.Flags().BoolVarP(&transaction, "transaction", "t", true, "With --apply, insert all rows in one transaction")
	cmd.Flags().BoolVarP(&unsafe, "unsafe", "u", false, "Allow statements other than inserts")
	cmd.Flags().IntVar(&timeout, "timeout", 300, "Timeout in seconds")
	return cmd
}

func logStats(logger *zap.Logger, s *session.Session) {
	for _, st := range s.Mapper().Stats() {
		logger.Debug("table mapper",
			zap.String("db", st.DB),
			zap.String("table", st.Table),
			zap.String("state", st.State),
			zap.Int("entries", st.Entries),
			zap.Int("populations", st.Populations))
	}
}
