// Package apply writes transcoded rows into the target database. Statements
// are checked before they run so that only inserts reach the target unless the
// user asks otherwise, and they run in a single transaction by default.
package apply

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PreflightResult contains a list of warnings, errors, and transactionality info about the statements.
type PreflightResult struct {
	Warnings        []Warning
	Errors          []string
	IsTransactional bool
}

// Warning contains a Level of a warning, message, and the offending SQL.
type Warning struct {
	Level   WarningLevel
	Message string
	SQL     string
}

// WarningLevel is a const that is expandable for later and contains different levels of danger.
type WarningLevel string

const (
	WarnCaution WarningLevel = "CAUTION"
	WarnDanger  WarningLevel = "DANGER"
)

// Options struct contains all setting available for user to choose during transcode --apply.
type Options struct {
	DryRun      bool
	Transaction bool
	Unsafe      bool
	Out         io.Writer
	Logger      *zap.Logger
}

// Executor is the part of *sql.DB the applier needs.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Applier executes statements against the target database.
type Applier struct {
	db       Executor
	options  Options
	analyzer *StatementAnalyzer
	out      io.Writer
	logger   *zap.Logger
}

// NewApplier returns a pointer to Applier writing to db, with provided options.
func NewApplier(db Executor, options Options) *Applier {
	out := options.Out
	if out == nil {
		out = io.Discard
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		db:       db,
		options:  options,
		analyzer: NewStatementAnalyzer(),
		out:      out,
		logger:   logger,
	}
}

// We use custom printf to format and print messages to the output writer.
func (a *Applier) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func (a *Applier) println(args ...any) {
	_, _ = fmt.Fprintln(a.out, args...)
}

// PreflightChecks uses the AST-based analyzer to detect statements that are
// not plain inserts.
func (a *Applier) PreflightChecks(statements []string) *PreflightResult {
	return a.analyzer.AnalyzeStatements(statements, a.options.Unsafe)
}

// Apply checks statements, then prints them in dry-run mode or executes them.
// A failing preflight check stops before anything runs.
func (a *Applier) Apply(ctx context.Context, statements []string) error {
	statements = normalize(statements)
	preflight := a.PreflightChecks(statements)

	if a.options.DryRun {
		return a.dryRun(statements, preflight)
	}
	if len(preflight.Errors) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(preflight.Errors, "; "))
	}
	if a.db == nil {
		return fmt.Errorf("apply: no target connection")
	}
	if len(statements) == 0 {
		a.println("Nothing to apply")
		return nil
	}

	start := time.Now()
	var err error
	if a.options.Transaction {
		err = a.applyWithTransaction(ctx, statements)
	} else {
		err = a.applyWithoutTransaction(ctx, statements)
	}
	if err != nil {
		return err
	}
	a.logger.Info("applied statements",
		zap.Int("statements", len(statements)),
		zap.Bool("transaction", a.options.Transaction),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func normalize(statements []string) []string {
	out := make([]string, 0, len(statements))
	for _, stmt := range statements {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func truncateSQL(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if len(stmt) > 80 {
		return stmt[:77] + "..."
	}
	return stmt
}

func (a *Applier) dryRun(statements []string, preflight *PreflightResult) error {
	a.println("=== DRY RUN MODE ===")

	a.println("--- Preflight Checks ---")
	if len(preflight.Warnings) == 0 {
		a.println("No warnings")
	} else {
		for _, w := range preflight.Warnings {
			a.printf("[%s] %s\n", w.Level, w.Message)
			if w.SQL != "" {
				a.printf("    SQL: %s\n", truncateSQL(w.SQL))
			}
		}
	}

	a.println("--- Statements to Execute ---")
	for i, stmt := range statements {
		a.printf("%d. %s\n", i+1, stmt)
	}

	if len(preflight.Errors) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(preflight.Errors, "; "))
	}

	a.println("=== DRY RUN COMPLETE ===")
	a.println("All preflight checks passed. Run without --dry-run to apply.")
	return nil
}

func (a *Applier) applyWithTransaction(ctx context.Context, statements []string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, stmt := range statements {
		a.printf("Executing statement %d/%d...\n", i+1, len(statements))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("execute failed: %w; rollback also failed: %v", err, rbErr)
			}
			return fmt.Errorf("execute failed (rolled back): %w\n  Statement: %s", err, truncateSQL(stmt))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	a.printf("Successfully applied %d statements\n", len(statements))
	return nil
}

func (a *Applier) applyWithoutTransaction(ctx context.Context, statements []string) error {
	successCount := 0
	for i, stmt := range statements {
		a.printf("Executing statement %d/%d...\n", i+1, len(statements))
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d failed: %w\n  Statement: %s\n  %d statements were already applied and cannot be automatically rolled back",
				i+1, err, truncateSQL(stmt), successCount)
		}
		successCount++
	}

	a.printf("Successfully applied %d statements\n", len(statements))
	return nil
}

// HasDestructiveOperations checks if there is a dangerous warning inside a preflight
// analysis. If it has returns true, otherwise false.
func HasDestructiveOperations(preflight *PreflightResult) bool {
	for _, w := range preflight.Warnings {
		if w.Level == WarnDanger {
			return true
		}
	}
	return false
}
