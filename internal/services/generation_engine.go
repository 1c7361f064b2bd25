package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/period"
)

// GenerationResult counts what one generation pass did. Failed is a subset
// of Skipped: a template whose write failed is skipped and logged.
type GenerationResult struct {
	Generated      int
	Skipped        int
	Failed         int
	ShortCircuited bool
}

// GenerationReport is the outcome of GenerateAll for one user.
type GenerationReport struct {
	UserID      string
	PeriodKey   string
	Fixed       GenerationResult
	Installment GenerationResult
}

// GenerationEngine materializes fixed items and installment masters into
// dated ledger records, at most once per period.
type GenerationEngine struct {
	ledger     ledger.Ledger
	fixedItems ledger.FixedItemSource
	gate       *IdempotencyGate
	txService  *TransactionService
	now        func() time.Time
	flight     singleflight.Group
}

// NewGenerationEngine creates an engine. gate may wrap a nil store, in which
// case every call goes straight to the ledger existence checks.
func NewGenerationEngine(l ledger.Ledger, fixedItems ledger.FixedItemSource, gate *IdempotencyGate, txService *TransactionService) *GenerationEngine {
	if txService == nil {
		txService = NewTransactionService(l, nil, nil)
	}
	return &GenerationEngine{
		ledger:     l,
		fixedItems: fixedItems,
		gate:       gate,
		txService:  txService,
		now:        time.Now,
	}
}

// WithClock replaces the engine's notion of "now".
func (e *GenerationEngine) WithClock(now func() time.Time) *GenerationEngine {
	e.now = now
	return e
}

// ShouldGenerate is false when a marker exists for the period and domain.
func (e *GenerationEngine) ShouldGenerate(ctx context.Context, userID string, domain Domain, periodKey string) bool {
	return e.gate.ShouldGenerate(ctx, userID, periodKey, domain)
}

// currentPeriod resolves today's period anchor and key.
func (e *GenerationEngine) currentPeriod(monthStartDay int) (Scheduler, string, error) {
	today := core.DateOf(e.now())
	anchor := period.CurrentPeriodAnchor(today, monthStartDay)
	sched, err := NewScheduler(anchor, monthStartDay)
	if err != nil {
		return Scheduler{}, "", err
	}
	return sched, period.Key(anchor, monthStartDay), nil
}

// once collapses concurrent calls for the same marker key inside this
// process. Callers in other processes still rely on the existence checks.
func (e *GenerationEngine) once(key string, fn func() (GenerationResult, error)) (GenerationResult, error) {
	v, err, shared := e.flight.Do(key, func() (any, error) {
		return fn()
	})
	if shared {
		slog.Debug("Joined in-flight generation", "key", key)
	}
	if err != nil {
		return GenerationResult{}, err
	}
	return v.(GenerationResult), nil
}

// GenerateFixedForUser loads the user's active fixed items and generates
// their occurrences. A failure to load the items aborts the batch.
func (e *GenerationEngine) GenerateFixedForUser(ctx context.Context, userID string, monthStartDay int) (GenerationResult, error) {
	if e.fixedItems == nil {
		return GenerationResult{}, fmt.Errorf("generation engine has no fixed item source")
	}
	items, err := e.fixedItems.ListActiveFixedItems(ctx, userID)
	if err != nil {
		return GenerationResult{}, &core.StoreError{Op: "list fixed items", Err: err}
	}
	return e.GenerateFixedOccurrences(ctx, userID, items, monthStartDay)
}

// GenerateFixedOccurrences writes this period's occurrence of every active
// item that does not already have one. The marker is written only when
// something was generated, so an all-skipped pass re-checks next time.
func (e *GenerationEngine) GenerateFixedOccurrences(ctx context.Context, userID string, items []core.FixedItem, monthStartDay int) (GenerationResult, error) {
	sched, periodKey, err := e.currentPeriod(monthStartDay)
	if err != nil {
		return GenerationResult{}, err
	}

	return e.once(MarkerKey(userID, periodKey, DomainFixed), func() (GenerationResult, error) {
		var res GenerationResult
		if !e.gate.ShouldGenerate(ctx, userID, periodKey, DomainFixed) {
			res.ShortCircuited = true
			return res, nil
		}

		for _, item := range items {
			occ, ok := sched.Schedule(item)
			if !ok {
				continue
			}

			exists, err := e.ledger.TransactionExists(ctx, ledger.Match{
				UserID: userID,
				Title:  item.Name,
				Amount: item.Amount,
				Date:   occ.Date,
				Type:   core.Expense,
			})
			if err != nil {
				slog.ErrorContext(ctx, "Failed to check fixed occurrence",
					"fixed_item_id", item.ID,
					"date", occ.Date.String(),
					"error", err)
				res.Skipped++
				res.Failed++
				continue
			}
			if exists {
				res.Skipped++
				continue
			}

			tx := core.Transaction{
				UserID:                 userID,
				Title:                  item.Name,
				Amount:                 item.Amount,
				Date:                   occ.Date,
				Type:                   core.Expense,
				CategoryID:             item.CategoryID,
				AssetID:                item.AssetID,
				BudgetType:             budgetTypeOrDefault(item.BudgetType),
				IncludeInLivingExpense: false,
				FixedItemID:            item.ID,
			}
			if _, err := e.txService.RecordOccurrence(ctx, tx, periodKey); err != nil {
				slog.ErrorContext(ctx, "Failed to create fixed occurrence",
					"fixed_item_id", item.ID,
					"name", item.Name,
					"error", err)
				res.Skipped++
				res.Failed++
				continue
			}

			res.Generated++
			slog.InfoContext(ctx, "Created fixed occurrence",
				"fixed_item_id", item.ID,
				"name", item.Name,
				"date", occ.Date.String(),
				"amount", item.Amount.String())
		}

		if res.Generated > 0 {
			e.setMarker(ctx, userID, periodKey, DomainFixed)
		}

		slog.InfoContext(ctx, "Fixed occurrence generation complete",
			"user_id", userID,
			"period_key", periodKey,
			"generated", res.Generated,
			"skipped", res.Skipped,
			"failed", res.Failed)
		return res, nil
	})
}

// GenerateInstallmentOccurrences writes this period's term of every due
// installment master. Masters that are not due are not counted. The marker
// is written when something was generated or when nothing failed. A pass
// that generated nothing and hit a failure leaves no marker, even though
// failures count as skipped, so the next run retries those masters.
func (e *GenerationEngine) GenerateInstallmentOccurrences(ctx context.Context, userID string, monthStartDay int) (GenerationResult, error) {
	sched, periodKey, err := e.currentPeriod(monthStartDay)
	if err != nil {
		return GenerationResult{}, err
	}

	return e.once(MarkerKey(userID, periodKey, DomainInstallment), func() (GenerationResult, error) {
		var res GenerationResult
		if !e.gate.ShouldGenerate(ctx, userID, periodKey, DomainInstallment) {
			res.ShortCircuited = true
			return res, nil
		}

		records, err := e.ledger.QueryTransactions(ctx, ledger.Query{
			UserID: userID,
			Kinds:  []core.EntryKind{core.InstallmentMasterKind},
		})
		if err != nil {
			return res, &core.StoreError{Op: "query installment masters", Err: err}
		}

		for _, rec := range records {
			master, err := core.MasterFromTransaction(rec)
			if err != nil {
				slog.WarnContext(ctx, "Skipping malformed installment master",
					"master_id", rec.ID,
					"error", err)
				continue
			}
			occ, ok := sched.Schedule(master)
			if !ok {
				continue
			}

			exists, err := e.ledger.TransactionExists(ctx, ledger.Match{
				InstallmentID: master.ID,
				Date:          occ.Date,
			})
			if err != nil {
				slog.ErrorContext(ctx, "Failed to check installment occurrence",
					"master_id", master.ID,
					"date", occ.Date.String(),
					"error", err)
				res.Skipped++
				res.Failed++
				continue
			}
			if exists {
				res.Skipped++
				continue
			}

			tx := core.Transaction{
				UserID:                 userID,
				Title:                  master.Title,
				Amount:                 occ.Amount,
				Date:                   occ.Date,
				Type:                   master.Type,
				CategoryID:             master.CategoryID,
				AssetID:                master.AssetID,
				BudgetType:             budgetTypeOrDefault(master.BudgetType),
				Note:                   master.Note,
				IncludeInLivingExpense: master.IncludeInLivingExpense,
				Installment: &core.Installment{
					TotalTerm:      master.TotalTerm(),
					CurrentTerm:    occ.Term,
					Day:            master.RecurringDay(),
					MasterID:       master.ID,
					OriginalAmount: master.OriginalAmount(),
				},
			}
			if _, err := e.txService.RecordOccurrence(ctx, tx, periodKey); err != nil {
				slog.ErrorContext(ctx, "Failed to create installment occurrence",
					"master_id", master.ID,
					"term", occ.Term,
					"error", err)
				res.Skipped++
				res.Failed++
				continue
			}

			res.Generated++
			slog.InfoContext(ctx, "Created installment occurrence",
				"master_id", master.ID,
				"term", occ.Term,
				"total_term", master.TotalTerm(),
				"date", occ.Date.String(),
				"amount", occ.Amount.String())
		}

		if res.Generated > 0 || res.Failed == 0 {
			e.setMarker(ctx, userID, periodKey, DomainInstallment)
		}

		slog.InfoContext(ctx, "Installment occurrence generation complete",
			"user_id", userID,
			"period_key", periodKey,
			"generated", res.Generated,
			"skipped", res.Skipped,
			"failed", res.Failed)
		return res, nil
	})
}

// GenerateAll runs both generators for one user. A failure in one domain
// does not prevent the other from running.
func (e *GenerationEngine) GenerateAll(ctx context.Context, settings core.UserSettings) (GenerationReport, error) {
	report := GenerationReport{UserID: settings.UserID}
	_, periodKey, err := e.currentPeriod(settings.MonthStartDay)
	if err != nil {
		return report, err
	}
	report.PeriodKey = periodKey

	fixed, fixedErr := e.GenerateFixedForUser(ctx, settings.UserID, settings.MonthStartDay)
	if fixedErr != nil {
		fixedErr = fmt.Errorf("generate fixed occurrences: %w", fixedErr)
	}
	report.Fixed = fixed

	inst, instErr := e.GenerateInstallmentOccurrences(ctx, settings.UserID, settings.MonthStartDay)
	if instErr != nil {
		instErr = fmt.Errorf("generate installment occurrences: %w", instErr)
	}
	report.Installment = inst

	return report, errors.Join(fixedErr, instErr)
}

func (e *GenerationEngine) setMarker(ctx context.Context, userID, periodKey string, domain Domain) {
	if err := e.gate.SetMarker(ctx, userID, periodKey, domain, e.now()); err != nil {
		// Without a marker the next call re-runs the existence checks.
		slog.WarnContext(ctx, "Failed to write generation marker",
			"user_id", userID,
			"period_key", periodKey,
			"domain", domain,
			"error", err)
	}
}

func budgetTypeOrDefault(b core.BudgetType) core.BudgetType {
	if b == "" {
		return core.Personal
	}
	return b
}
