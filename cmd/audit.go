package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/frahmantamala/access-control/internal/audit"
	auditRepo "github.com/frahmantamala/access-control/internal/audit/postgres"
	"github.com/frahmantamala/access-control/pkg/clock"
	"github.com/frahmantamala/access-control/pkg/logger"
	"github.com/spf13/cobra"
)

type auditExportOptions struct {
	Format     string
	Output     string
	From       string
	To         string
	UserID     string
	Action     string
	EntityType string
	Limit      int
}

var exportOpts auditExportOptions

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit trail commands",
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the audit trail as CSV or JSON",
	Example: `  access-control audit export --format csv --from 2024-03-01T00:00:00Z -o march.csv
  access-control audit export --format json --action role_change`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := audit.ParseFormat(exportOpts.Format)
		if err != nil {
			return err
		}
		filter, err := exportOpts.filter()
		if err != nil {
			return err
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dbs, err := initDB(cfg.Database)
		if err != nil {
			return err
		}
		defer dbs.Close()

		recorder := audit.NewRecorder(auditRepo.NewAuditRepository(dbs.SQL), clock.System(), logger.LoggerWrapper())
		entries, err := recorder.Query(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("query audit trail: %w", err)
		}

		var out io.Writer = cmd.OutOrStdout()
		if exportOpts.Output != "" && exportOpts.Output != "-" {
			f, err := os.Create(exportOpts.Output)
			if err != nil {
				return fmt.Errorf("create output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := audit.Write(out, format, entries); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		logger.LoggerWrapper().Info("audit trail exported", "entries", len(entries), "format", format)
		return nil
	},
}

func (o auditExportOptions) filter() (audit.Filter, error) {
	f := audit.Filter{
		UserID:     o.UserID,
		Action:     audit.Action(o.Action),
		EntityType: audit.EntityType(o.EntityType),
		Limit:      o.Limit,
	}
	if f.Action != "" && !f.Action.Valid() {
		return f, fmt.Errorf("unknown action %q", o.Action)
	}
	if f.EntityType != "" && !f.EntityType.Valid() {
		return f, fmt.Errorf("unknown entity type %q", o.EntityType)
	}
	var err error
	if o.From != "" {
		if f.From, err = time.Parse(time.RFC3339, o.From); err != nil {
			return f, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if o.To != "" {
		if f.To, err = time.Parse(time.RFC3339, o.To); err != nil {
			return f, fmt.Errorf("invalid --to: %w", err)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("--to is before --from")
	}
	return f, nil
}

func init() {
	fl := auditExportCmd.Flags()
	fl.StringVarP(&exportOpts.Format, "format", "f", "csv", "export format: csv or json")
	fl.StringVarP(&exportOpts.Output, "output", "o", "", "output file (defaults to stdout)")
	fl.StringVar(&exportOpts.From, "from", "", "only entries at or after this RFC3339 time")
	fl.StringVar(&exportOpts.To, "to", "", "only entries at or before this RFC3339 time")
	fl.StringVar(&exportOpts.UserID, "user", "", "only entries by this user id")
	fl.StringVar(&exportOpts.Action, "action", "", "only entries with this action")
	fl.StringVar(&exportOpts.EntityType, "entity", "", "only entries for this entity type")
	fl.IntVar(&exportOpts.Limit, "limit", 0, "keep only the most recent entries (0 for all)")

	auditCmd.AddCommand(auditExportCmd)
}
