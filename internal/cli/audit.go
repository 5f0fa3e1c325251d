package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/friendsync/internal/reconcile"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check friendship symmetry across all records",
		Long: `Scan every record and report friendship links that disagree with numbers.

A link is missing when two records share a number but are not friends, and
stray when friends no longer share one. Self-links are always violations.
The index is only eventually consistent, so run audit after drain.

Exits 1 when any violation is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, cmd)
		},
	}
}

// auditReport is the JSON payload of audit.
type auditReport struct {
	Records    int                   `json:"records"`
	Violations []reconcile.Violation `json:"violations"`
}

func runAudit(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	return opts.withStore(func(st recordStore) error {
		recs, err := st.ListRecords(cmd.Context())
		if err != nil {
			return storeFailure(formatter, "audit", err)
		}
		violations := reconcile.Check(recs)
		report := auditReport{Records: len(recs), Violations: violations}

		if len(violations) == 0 {
			if formatter.JSON() {
				return formatter.Success(report)
			}
			return formatter.Success(fmt.Sprintf("%d records, no violations", len(recs)))
		}

		msg := fmt.Sprintf("%d violations in %d records", len(violations), len(recs))
		if formatter.JSON() {
			_ = formatter.Error(ErrCodeViolations, msg, report)
		} else {
			for _, v := range violations {
				fmt.Fprintln(formatter.Writer, v)
			}
			_ = formatter.Error(ErrCodeViolations, msg, nil)
		}
		return NewExitError(ExitFailure, msg)
	})
}
