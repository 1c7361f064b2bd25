package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/period"
	"gagyebu/internal/services"
)

// app carries what every subcommand needs.
type app struct {
	store           ledger.Store
	markers         ledger.MarkerStore
	out             io.Writer
	defaultStartDay int
	now             func() time.Time
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commandOrder = []string{"period", "generate", "billing", "budget", "settings", "category", "asset", "fixed", "purchase"}

var commands = map[string]command{
	"period":   {"Show the current budget period of a user", runPeriod},
	"generate": {"Generate fixed and installment occurrences for the current period", runGenerate},
	"billing":  {"Show the current and next billing amount of a card", runBilling},
	"budget":   {"Summarize the current period against the monthly budget", runBudget},
	"settings": {"Set a user's month start day and monthly budget", runSettings},
	"category": {"Create or update a category", runCategory},
	"asset":    {"Create or update an asset", runAsset},
	"fixed":    {"Create a fixed item template", runFixed},
	"purchase": {"Record an installment purchase", runPurchase},
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// todayFlag registers -today; empty means the local date of a.now.
func (a *app) todayFlag(fs *flag.FlagSet) func() (core.Date, error) {
	raw := fs.String("today", "", "reference date YYYY-MM-DD (default: today)")
	return func() (core.Date, error) {
		if *raw == "" {
			return core.DateOf(a.now()), nil
		}
		return core.ParseDate(*raw)
	}
}

// settingsFor returns the user's settings, or defaults when none are stored.
func (a *app) settingsFor(ctx context.Context, userID string) (core.UserSettings, error) {
	us, err := a.store.GetUserSettings(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.UserSettings{UserID: userID, MonthStartDay: a.defaultStartDay, MonthlyBudget: decimal.Zero}, nil
	}
	return us, err
}

func required(fs *flag.FlagSet, names ...string) error {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	var missing []string
	for _, n := range names {
		if !set[n] {
			missing = append(missing, "-"+n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing %s", fs.Name(), strings.Join(missing, ", "))
	}
	return nil
}

func runPeriod(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("period", a.out)
	user := fs.String("user", "", "user id")
	today := a.todayFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user"); err != nil {
		return err
	}
	d, err := today()
	if err != nil {
		return err
	}
	us, err := a.settingsFor(ctx, *user)
	if err != nil {
		return err
	}
	anchor, w, err := period.CurrentWindow(d, us.MonthStartDay)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "period %s  window %s  key %s\n", anchor, w, period.Key(anchor, us.MonthStartDay))
	return nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("generate", a.out)
	user := fs.String("user", "", "user id (default: every user with settings)")
	today := a.todayFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := today()
	if err != nil {
		return err
	}

	engine := services.NewGenerationEngine(a.store, a.store, services.NewIdempotencyGate(a.markers),
		services.NewTransactionService(a.store, a.store, nil)).
		WithClock(func() time.Time { return d.Time })

	var users []core.UserSettings
	if *user != "" {
		us, err := a.settingsFor(ctx, *user)
		if err != nil {
			return err
		}
		users = []core.UserSettings{us}
	} else if users, err = a.store.ListUserSettings(ctx); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tPERIOD\tFIXED\tINSTALLMENT\tSKIPPED\tFAILED")
	var errs []error
	for _, us := range users {
		report, err := engine.GenerateAll(ctx, us)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", us.UserID, err))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n", us.UserID, report.PeriodKey,
			report.Fixed.Generated, report.Installment.Generated,
			report.Fixed.Skipped+report.Installment.Skipped,
			report.Fixed.Failed+report.Installment.Failed)
	}
	tw.Flush()
	return errors.Join(errs...)
}

func runBilling(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("billing", a.out)
	user := fs.String("user", "", "user id")
	assetID := fs.String("asset", "", "card asset id")
	today := a.todayFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user", "asset"); err != nil {
		return err
	}
	d, err := today()
	if err != nil {
		return err
	}
	asset, err := a.store.GetAsset(ctx, *user, *assetID)
	if err != nil {
		return err
	}
	amounts, err := services.NewBillingCalculator(a.store).AssetBillingAmounts(ctx, asset, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s  current %s  next %s\n", asset.Name,
		amounts.CurrentBilling.StringFixed(0), amounts.NextBilling.StringFixed(0))
	return nil
}

func runBudget(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("budget", a.out)
	user := fs.String("user", "", "user id")
	filter := fs.String("filter", string(core.AllBudgets), "all, personal or joint")
	today := a.todayFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user"); err != nil {
		return err
	}
	f := core.BudgetFilter(*filter)
	switch f {
	case core.AllBudgets, core.PersonalBudgets, core.JointBudgets:
	default:
		return &core.ValidationError{Field: "filter", Reason: fmt.Sprintf("unknown budget filter %q", *filter)}
	}
	d, err := today()
	if err != nil {
		return err
	}

	s, w, err := services.NewBudgetService(a.store, a.store, a.store).PeriodSummary(ctx, *user, d, f)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(a.out, "period %s (%s)\n", w, f)
	for _, row := range []struct {
		label string
		v     decimal.Decimal
	}{
		{"income", s.TotalIncome},
		{"fixed", s.FixedExpense},
		{"living", s.LivingExpense},
		{"total", s.TotalExpense},
		{"personal", s.PersonalExpense},
		{"joint", s.JointExpense},
		{"budget", s.Budget},
		{"remaining", s.Remaining},
	} {
		fmt.Fprintf(tw, "%s\t%s\t\n", row.label, row.v.StringFixed(0))
	}
	fmt.Fprintf(tw, "usage\t%s%%\t\n", s.UsageRate.Mul(decimal.NewFromInt(100)).StringFixed(1))
	return tw.Flush()
}

func runSettings(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("settings", a.out)
	user := fs.String("user", "", "user id")
	startDay := fs.Int("start-day", 1, "day of month a budget period starts (1-31)")
	budget := fs.String("budget", "0", "monthly budget")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user"); err != nil {
		return err
	}
	if err := core.ValidateMonthStartDay(*startDay); err != nil {
		return err
	}
	b, err := parseAmount("budget", *budget, true)
	if err != nil {
		return err
	}
	if err := a.store.SaveUserSettings(ctx, core.UserSettings{UserID: *user, MonthStartDay: *startDay, MonthlyBudget: b}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved settings for %s\n", *user)
	return nil
}

func runCategory(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("category", a.out)
	user := fs.String("user", "", "user id")
	id := fs.String("id", "", "category id")
	name := fs.String("name", "", "display name")
	typ := fs.String("type", string(core.Variable), "fixed or variable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user", "id"); err != nil {
		return err
	}
	it := core.ItemType(*typ)
	if it != core.Fixed && it != core.Variable {
		return &core.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown category type %q", *typ)}
	}
	if *name == "" {
		*name = *id
	}
	if err := a.store.SaveCategory(ctx, core.Category{ID: *id, UserID: *user, Name: *name, Type: it}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved category %s\n", *id)
	return nil
}

func runAsset(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("asset", a.out)
	user := fs.String("user", "", "user id")
	id := fs.String("id", "", "asset id")
	name := fs.String("name", "", "display name")
	kind := fs.String("kind", string(core.Account), "cash, account or card")
	settlement := fs.Int("settlement-day", 0, "card settlement day (1-31)")
	billing := fs.Int("billing-day", 0, "card billing day (1-31)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user", "id"); err != nil {
		return err
	}
	k := core.AssetKind(*kind)
	switch k {
	case core.Cash, core.Account:
	case core.Card:
		if err := core.ValidateMonthStartDay(*settlement); err != nil {
			return &core.ValidationError{Field: "settlement-day", Reason: "must be 1-31 for a card"}
		}
		if err := core.ValidateMonthStartDay(*billing); err != nil {
			return &core.ValidationError{Field: "billing-day", Reason: "must be 1-31 for a card"}
		}
	default:
		return &core.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown asset kind %q", *kind)}
	}
	if *name == "" {
		*name = *id
	}
	err := a.store.SaveAsset(ctx, core.Asset{
		ID: *id, UserID: *user, Name: *name, Kind: k,
		SettlementDay: *settlement, BillingDay: *billing,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved asset %s\n", *id)
	return nil
}

func runFixed(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("fixed", a.out)
	user := fs.String("user", "", "user id")
	name := fs.String("name", "", "title of generated records")
	amount := fs.String("amount", "", "amount per month")
	day := fs.Int("day", 1, "day of month (1-31, clamped to short months)")
	typ := fs.String("type", string(core.Fixed), "fixed or variable")
	category := fs.String("category", "", "category id")
	asset := fs.String("asset", "", "asset id")
	budgetType := fs.String("budget-type", string(core.Personal), "personal or joint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user", "name", "amount"); err != nil {
		return err
	}
	amt, err := parseAmount("amount", *amount, false)
	if err != nil {
		return err
	}
	item := core.FixedItem{
		UserID:     *user,
		Name:       strings.TrimSpace(*name),
		Type:       core.ItemType(*typ),
		Amount:     amt,
		Day:        *day,
		CategoryID: *category,
		AssetID:    *asset,
		BudgetType: core.BudgetType(*budgetType),
		IsActive:   true,
	}
	if err := item.Validate(); err != nil {
		return err
	}
	saved, err := a.store.SaveFixedItem(ctx, item)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved fixed item %s\n", saved.ID)
	return nil
}

func runPurchase(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("purchase", a.out)
	user := fs.String("user", "", "user id")
	title := fs.String("title", "", "purchase title")
	amount := fs.String("amount", "", "full purchase price")
	terms := fs.Int("terms", 0, "number of monthly installments")
	date := fs.String("date", "", "purchase date YYYY-MM-DD")
	asset := fs.String("asset", "", "card asset id")
	category := fs.String("category", "", "category id")
	budgetType := fs.String("budget-type", string(core.Personal), "personal or joint")
	living := fs.Bool("living", true, "count installments as living expense")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "user", "title", "amount", "terms", "date"); err != nil {
		return err
	}
	amt, err := parseAmount("amount", *amount, false)
	if err != nil {
		return err
	}
	d, err := core.ParseDate(*date)
	if err != nil {
		return err
	}

	svc := services.NewTransactionService(a.store, a.store, nil)
	master, err := svc.CreateInstallmentPurchase(ctx, services.InstallmentPurchase{
		UserID:                 *user,
		Title:                  *title,
		Amount:                 amt,
		Date:                   d,
		TotalTerm:              *terms,
		CategoryID:             *category,
		AssetID:                *asset,
		BudgetType:             core.BudgetType(*budgetType),
		IncludeInLivingExpense: *living,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved installment %s: %s x %d\n", master.ID,
		services.EffectiveAmount(master).StringFixed(0), *terms)
	return nil
}

func parseAmount(field, raw string, allowZero bool) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: fmt.Sprintf("not a number: %q", raw)}
	}
	if d.IsNegative() || (!allowZero && d.IsZero()) {
		return decimal.Zero, &core.ValidationError{Field: field, Reason: "must be positive"}
	}
	return d, nil
}
