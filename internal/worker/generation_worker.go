package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gagyebu/internal/ledger"
	applog "gagyebu/internal/log"
	"gagyebu/internal/services"
	"gagyebu/internal/trace"
)

// GenerationWorker runs occurrence generation for every user with settings.
type GenerationWorker struct {
	engine          *services.GenerationEngine
	settings        ledger.SettingsSource
	concurrency     int
	defaultStartDay int
}

func NewGenerationWorker(engine *services.GenerationEngine, settings ledger.SettingsSource, concurrency, defaultStartDay int) *GenerationWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	if defaultStartDay < 1 {
		defaultStartDay = 1
	}
	return &GenerationWorker{
		engine:          engine,
		settings:        settings,
		concurrency:     concurrency,
		defaultStartDay: defaultStartDay,
	}
}

// RunSummary totals one pass over all users.
type RunSummary struct {
	Users     int
	Failed    int
	Generated int
	Skipped   int
}

// RunOnce generates the current period for every user. Users run in
// parallel; a failing user is logged and does not stop the others. Only a
// failure to list users is returned.
func (w *GenerationWorker) RunOnce(ctx context.Context) (RunSummary, error) {
	ctx, _ = trace.Start(ctx, "gen")
	started := time.Now()
	users, err := w.settings.ListUserSettings(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("list user settings: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = RunSummary{Users: len(users)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, us := range users {
		if us.MonthStartDay == 0 {
			us.MonthStartDay = w.defaultStartDay
		}
		us := us
		g.Go(func() error {
			report, err := w.engine.GenerateAll(gctx, us)

			mu.Lock()
			defer mu.Unlock()
			summary.Generated += report.Fixed.Generated + report.Installment.Generated
			summary.Skipped += report.Fixed.Skipped + report.Installment.Skipped
			if err != nil {
				summary.Failed++
				fields := applog.NewFields().
					WithOperation(applog.OpGenerate).
					WithError(err)
				fields[applog.FieldUserID] = us.UserID
				slog.ErrorContext(gctx, "Generation failed for user", fields.ToSlice()...)
			}
			return nil
		})
	}
	_ = g.Wait()

	fields := applog.NewFields().
		WithOperation(applog.OpGenerate).
		WithCounts(summary.Generated, summary.Skipped, summary.Failed)
	fields["users"] = summary.Users
	fields[applog.FieldDuration] = time.Since(started).Milliseconds()
	slog.InfoContext(ctx, "Generation pass complete", fields.ToSlice()...)
	return summary, nil
}

// Run calls RunOnce immediately and then on every tick until ctx is done.
func (w *GenerationWorker) Run(ctx context.Context, interval time.Duration) {
	if _, err := w.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial generation failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic generation failed", "error", err)
				continue
			}
			slog.InfoContext(ctx, "Next generation check",
				"at", now.Add(interval).Format("15:04:05"))
		}
	}
}
