package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	applog "gagyebu/internal/log"
	"gagyebu/internal/period"
	"gagyebu/internal/sheets"
	"gagyebu/internal/trace"
)

// ExportWorker copies ledger records to a spreadsheet as their events arrive.
type ExportWorker struct {
	ledger ledger.Ledger
	sheets sheets.Exporter
}

func NewExportWorker(l ledger.Ledger, s sheets.Exporter) *ExportWorker {
	return &ExportWorker{
		ledger: l,
		sheets: s,
	}
}

// HandleMessage processes a single transaction event from AMQP. Redelivered
// events are harmless: rows already present are not appended again.
func (w *ExportWorker) HandleMessage(ctx context.Context, msg *amqp.TransactionMessage) error {
	if trace.RunID(ctx) == "" {
		ctx, _ = trace.Start(ctx, "evt")
	}
	slog.InfoContext(ctx, "Processing transaction event",
		applog.FieldEventType, msg.Event,
		applog.FieldTxID, msg.TransactionID,
		applog.FieldPeriodKey, msg.PeriodKey)

	switch msg.Event {
	case amqp.EventTransactionCreated, amqp.EventOccurrenceGenerated:
		t, err := w.ledger.GetTransaction(ctx, msg.TransactionID)
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Transaction no longer in ledger, skipping export",
				"id", msg.TransactionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get transaction from ledger: %w", err)
		}
		exported, err := w.exportedIDs(ctx, t.Date.Year())
		if err != nil {
			return err
		}
		_, err = w.export(ctx, t, msg.PeriodKey, exported)
		return err

	case amqp.EventTransactionDeleted:
		return w.markDeleted(ctx, msg)

	default:
		slog.WarnContext(ctx, "Unknown transaction event", "event", msg.Event)
		return nil
	}
}

func (w *ExportWorker) markDeleted(ctx context.Context, msg *amqp.TransactionMessage) error {
	year := msg.Timestamp.Year()
	if d, err := core.ParseDate(msg.Date); err == nil {
		year = d.Year()
	}

	err := w.sheets.MarkDeleted(ctx, year, msg.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Deleted transaction was never exported",
			"id", msg.TransactionID,
			"year", year)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark deleted in sheets: %w", err)
	}

	slog.InfoContext(ctx, "Marked transaction as deleted in sheets",
		"id", msg.TransactionID,
		"year", year)
	return nil
}

// exportedIDs returns the set of ids already in the year's sheet.
func (w *ExportWorker) exportedIDs(ctx context.Context, year int) (map[string]bool, error) {
	ids, err := w.sheets.ExportedIDs(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("list exported ids: %w", err)
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// export appends t unless its id is in exported, and records it there.
func (w *ExportWorker) export(ctx context.Context, t core.Transaction, periodKey string, exported map[string]bool) (bool, error) {
	if exported[t.ID] {
		slog.DebugContext(ctx, "Transaction already exported", "id", t.ID)
		return false, nil
	}

	ref, err := w.sheets.Append(ctx, t, periodKey)
	if err != nil {
		return false, fmt.Errorf("append to sheets: %w", err)
	}
	exported[t.ID] = true

	slog.InfoContext(ctx, "Successfully exported transaction",
		applog.FieldTxID, t.ID,
		applog.FieldSheetsRef, ref,
		"title", t.Title,
		applog.FieldAmount, t.Amount.String())
	return true, nil
}

// StartupBackfill exports every record of each user's current period that
// is missing from the sheet. It recovers from missed AMQP messages or
// exporter downtime.
func (w *ExportWorker) StartupBackfill(ctx context.Context, users []core.UserSettings, today core.Date) (int, error) {
	exported := 0
	errorCount := 0

	for _, us := range users {
		anchor, window, err := period.CurrentWindow(today, us.MonthStartDay)
		if err != nil {
			slog.ErrorContext(ctx, "Invalid month start day, skipping user",
				"user_id", us.UserID,
				"month_start_day", us.MonthStartDay,
				"error", err)
			errorCount++
			continue
		}

		txs, err := w.ledger.QueryTransactions(ctx, ledger.Query{
			UserID: us.UserID,
			From:   window.Start,
			To:     window.End,
		})
		if err != nil {
			return exported, fmt.Errorf("query period transactions: %w", err)
		}

		periodKey := period.Key(anchor, us.MonthStartDay)
		// A period can span two sheet years.
		byYear := make(map[int]map[string]bool)
		for _, t := range txs {
			year := t.Date.Year()
			ids, loaded := byYear[year]
			if !loaded {
				ids, err = w.exportedIDs(ctx, year)
				if err != nil {
					slog.ErrorContext(ctx, "Failed to list exported transactions during backfill",
						"user_id", us.UserID, "year", year, "error", err)
					errorCount++
					continue
				}
				byYear[year] = ids
			}

			ok, err := w.export(ctx, t, periodKey, ids)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to export transaction during backfill",
					"id", t.ID, "error", err)
				errorCount++
				continue
			}
			if ok {
				exported++
			}
		}
	}

	slog.InfoContext(ctx, "Startup backfill completed",
		applog.FieldOperation, applog.OpBackfill,
		"users", len(users),
		"exported", exported,
		"errors", errorCount)
	return exported, nil
}
