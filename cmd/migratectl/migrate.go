package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"migration-service/config"
	"migration-service/internal/domain"
	"migration-service/internal/infra"
	"migration-service/internal/middleware"
)

// newMigrateCmd はmigrateサブコマンドを生成する。
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  "Generate, execute and inspect two-phase (before/after) database migrations",
	}
	cmd.AddCommand(
		migrateInitCmd(),
		migrateStatusCmd(),
		migratePreparedCmd(),
		migrateExecutedCmd(),
		migrateExecuteCmd(),
		migrateRunCmd(),
		migrateGenerateCmd(),
	)
	return cmd
}

// setupComponents は環境変数の設定からMigrationServiceを組み立てる。
// ログは標準出力を汚さないよう標準エラー出力に出す。
func setupComponents(ctx context.Context, fsys afero.Fs) (*infra.MigrationComponents, error) {
	cfg := config.Load()
	slog.SetDefault(infra.NewLogger(os.Stderr, cfg))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	components, err := infra.NewMigrationComponents(cfg, db, fsys, nil, nil)
	if err != nil {
		return nil, err
	}
	return components, nil
}

func migrateInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the migration ledger table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := middleware.WithRunID(cmd.Context())
			c, err := setupComponents(ctx, afero.NewOsFs())
			if err != nil {
				return err
			}

			if err := c.Service.InitializeMigrationTable(ctx); err != nil {
				middleware.WriteAuditLog(ctx, "INITIALIZE_TABLE", "", "", "FAILED")
				return fmt.Errorf("failed to create migration table: %w", err)
			}
			middleware.WriteAuditLog(ctx, "INITIALIZE_TABLE", "", "", "SUCCESS")
			fmt.Fprintln(cmd.OutOrStdout(), "Migration table created.")
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long:  "Show prepared versions and their before/after execution times",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setupComponents(ctx, afero.NewOsFs())
			if err != nil {
				return err
			}

			states, err := c.Service.GetMigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			return printStatus(cmd.OutOrStdout(), states)
		},
	}
}

// printStatus は状態一覧をテーブル形式で出力する。
func printStatus(out io.Writer, states []*domain.MigrationState) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "VERSION\tPREPARED\tSTATUS\tBEFORE AT\tAFTER AT")
	fmt.Fprintln(w, "-------\t--------\t------\t---------\t--------")
	for _, st := range states {
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n",
			st.Version, st.Prepared, st.Status, formatExecutedAt(st.BeforeAt), formatExecutedAt(st.AfterAt))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}

func formatExecutedAt(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func migratePreparedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepared",
		Short: "List prepared migration versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setupComponents(ctx, afero.NewOsFs())
			if err != nil {
				return err
			}

			versions, err := c.Service.GetPreparedVersions(ctx)
			if err != nil {
				return fmt.Errorf("failed to list prepared versions: %w", err)
			}
			printVersions(cmd.OutOrStdout(), versions)
			return nil
		},
	}
}

func migrateExecutedCmd() *cobra.Command {
	var phaseFlag string
	cmd := &cobra.Command{
		Use:   "executed",
		Short: "List versions executed in a phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := domain.ParsePhase(phaseFlag)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := setupComponents(ctx, afero.NewOsFs())
			if err != nil {
				return err
			}

			versions, err := c.Service.GetExecutedVersions(ctx, phase)
			if err != nil {
				return fmt.Errorf("failed to list executed versions: %w", err)
			}
			printVersions(cmd.OutOrStdout(), versions)
			return nil
		},
	}
	cmd.Flags().StringVar(&phaseFlag, "phase", "", "Phase: before or after (required)")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func printVersions(out io.Writer, versions []string) {
	for _, v := range versions {
		fmt.Fprintln(out, v)
	}
}

func migrateExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <version> <phase>",
		Short: "Execute one phase of a migration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, phaseArg := args[0], args[1]
			ctx := middleware.WithRunID(cmd.Context())

			phase, err := domain.ParsePhase(phaseArg)
			if err != nil {
				middleware.WriteAuditLog(ctx, "EXECUTE_MIGRATION", version, phaseArg, "FAILED")
				return err
			}
			c, err := setupComponents(ctx, afero.NewOsFs())
			if err != nil {
				return err
			}

			if err := c.Service.ExecuteMigration(ctx, version, phase); err != nil {
				middleware.WriteAuditLog(ctx, "EXECUTE_MIGRATION", version, string(phase), "FAILED")
				return err
			}
			middleware.WriteAuditLog(ctx, "EXECUTE_MIGRATION", version, string(phase), "SUCCESS")
			fmt.Fprintf(cmd.OutOrStdout(), "Executed %s (%s).\n", version, phase)
			return nil
		},
	}
}

func migrateRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <phase>",
		Short: "Execute all pending migrations for a phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			phase, err := domain.ParsePhase(args[0])
			if err != nil {
				return err
			}
			ctx := middleware.WithRunID(cmd.Context())
			c, err := setupComponents(ctx, afero.NewOsFs())
			if err != nil {
				return err
			}

			executed, err := c.Service.ExecutePendingMigrations(ctx, phase)
			for _, v := range executed {
				middleware.WriteAuditLog(ctx, "EXECUTE_PENDING", v, string(phase), "SUCCESS")
			}
			if err != nil {
				middleware.WriteAuditLog(ctx, "EXECUTE_PENDING", "", string(phase), "FAILED")
				return fmt.Errorf("migration failed after %d executed: %w", len(executed), err)
			}

			if len(executed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Executed %d migration(s) (%s) successfully.\n", len(executed), phase)
			}
			return nil
		},
	}
}

func migrateGenerateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "generate [SQL...]",
		Short: "Generate a migration file from SQL statements",
		Long:  "Generate a migration file whose before phase executes the given SQL statements in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys := afero.NewOsFs()
			statements := args
			if file != "" {
				content, err := afero.ReadFile(fsys, file)
				if err != nil {
					return fmt.Errorf("reading %s: %w", file, err)
				}
				statements = append(statements, splitStatements(string(content))...)
			}

			ctx := middleware.WithRunID(cmd.Context())
			c, err := setupComponents(ctx, fsys)
			if err != nil {
				return err
			}

			generated, err := c.Service.GenerateMigrationFile(ctx, statements)
			if err != nil {
				middleware.WriteAuditLog(ctx, "GENERATE_MIGRATION", "", "", "FAILED")
				return err
			}
			middleware.WriteAuditLog(ctx, "GENERATE_MIGRATION", generated.Version, "", "SUCCESS")
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s (version %s).\n", generated.FilePath, generated.Version)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read SQL statements from a file (statements end with ';' at end of line)")
	return cmd
}

// splitStatements は行末の ; で区切られたSQL文を分割する。
func splitStatements(content string) []string {
	var (
		statements []string
		current    []string
	)
	flush := func() {
		stmt := strings.TrimSpace(strings.Join(current, "\n"))
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(content, "\n") {
		current = append(current, line)
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			flush()
		}
	}
	flush()
	return statements
}
