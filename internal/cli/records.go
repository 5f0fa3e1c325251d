package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/friendsync/internal/ir"
	"github.com/roach88/friendsync/internal/txn"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <id> <number>",
		Short: "Create a record with a number",
		Long: `Create a record, acting as an external writer.

The record starts with no friends. The creation leaves a notification in the
outbox; run drain or serve to reconcile it.

Example:
  friendsync create alice 42
  friendsync --db ./friends.db create bob -- -7`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, cmd, args, "create", func(st recordStore, id ir.RecordID, n ir.Number) (ir.Notification, error) {
				return st.CreateRecord(cmd.Context(), id, n)
			})
		},
	}
}

// NewSetNumberCommand creates the set-number command.
func NewSetNumberCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-number <id> <number>",
		Short: "Change a record's number",
		Long: `Change a record's number, acting as an external writer.

Setting the current value is still a write and still produces a notification;
the reconciler treats it as unchanged.

Example:
  friendsync set-number alice 7`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, cmd, args, "set-number", func(st recordStore, id ir.RecordID, n ir.Number) (ir.Notification, error) {
				return st.SetNumber(cmd.Context(), id, n)
			})
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd, args[0])
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print all records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}
}

type writeFunc func(st recordStore, id ir.RecordID, n ir.Number) (ir.Notification, error)

func runWrite(opts *RootOptions, cmd *cobra.Command, args []string, op string, write writeFunc) error {
	formatter := opts.formatter(cmd)

	id, err := ir.ParseRecordID(args[0])
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid record id", err)
	}
	n, err := parseNumber(args[1])
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid number", err)
	}

	return opts.withStore(func(st recordStore) error {
		note, err := write(st, id, n)
		if err != nil {
			return storeFailure(formatter, op, err)
		}
		opts.Logger.Debug("wrote record", "op", op, "record_id", id, "number", n, "event_id", note.EventID)
		if formatter.JSON() {
			return formatter.Success(note)
		}
		return formatter.Success(describeNotification(note))
	})
}

func runShow(opts *RootOptions, cmd *cobra.Command, raw string) error {
	formatter := opts.formatter(cmd)

	id, err := ir.ParseRecordID(raw)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidArgs, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid record id", err)
	}

	return opts.withStore(func(st recordStore) error {
		rec, err := st.Get(cmd.Context(), id)
		if err != nil {
			return storeFailure(formatter, "show", err)
		}
		if formatter.JSON() {
			return formatter.Success(rec)
		}
		return formatter.Success(describeRecord(rec))
	})
}

// recordRow is one line of the list table.
type recordRow struct {
	ID          string `header:"id"`
	Number      int64  `header:"number"`
	Friends     string `header:"friends"`
	LastUpdated string `header:"last updated"`
	Version     int64  `header:"version"`
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	return opts.withStore(func(st recordStore) error {
		recs, err := st.ListRecords(cmd.Context())
		if err != nil {
			return storeFailure(formatter, "list", err)
		}
		rows := make([]recordRow, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, recordRow{
				ID:          string(r.ID),
				Number:      int64(r.Number),
				Friends:     joinIDs(r.Friends),
				LastUpdated: formatUpdated(r),
				Version:     r.Version,
			})
		}
		if len(rows) == 0 && !formatter.JSON() {
			return formatter.Success("no records")
		}
		return formatter.Table(rows, recs)
	})
}

// storeFailure reports err and maps it to an exit code.
func storeFailure(formatter *OutputFormatter, op string, err error) error {
	switch {
	case errors.Is(err, txn.ErrNotFound):
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, op+": record not found", err)
	case errors.Is(err, txn.ErrExists):
		_ = formatter.Error(ErrCodeExists, err.Error(), nil)
		return WrapExitError(ExitCommandError, op+": record already exists", err)
	default:
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, op+": store error", err)
	}
}

func parseNumber(s string) (ir.Number, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("number %q is not a 64-bit integer", s)
	}
	return ir.Number(v), nil
}

func describeNotification(n ir.Notification) string {
	if n.IsCreate() {
		return fmt.Sprintf("created %s with number %d (event %s)", n.RecordID, n.After.Number, n.EventID)
	}
	return fmt.Sprintf("set %s number %d -> %d (event %s)", n.RecordID, n.Before.Number, n.After.Number, n.EventID)
}

func describeRecord(r ir.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id:           %s\n", r.ID)
	fmt.Fprintf(&b, "number:       %d\n", r.Number)
	fmt.Fprintf(&b, "friends:      %s\n", joinIDs(r.Friends))
	fmt.Fprintf(&b, "last updated: %s\n", formatUpdated(r))
	fmt.Fprintf(&b, "version:      %d", r.Version)
	return b.String()
}

func joinIDs(ids []ir.RecordID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}

func formatUpdated(r ir.Record) string {
	if r.NumberLastUpdatedAt.IsZero() {
		return "never"
	}
	return r.NumberLastUpdatedAt.UTC().Format(time.RFC3339Nano)
}
