package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"gagyebu/internal/amqp"
	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, msg *amqp.TransactionMessage) error
}

// TransactionService writes ledger records and announces them on the bus.
type TransactionService struct {
	ledger    ledger.Ledger
	catalog   ledger.Catalog
	publisher EventPublisher
}

// NewTransactionService wires the service. catalog and publisher are optional.
func NewTransactionService(l ledger.Ledger, catalog ledger.Catalog, publisher EventPublisher) *TransactionService {
	return &TransactionService{
		ledger:    l,
		catalog:   catalog,
		publisher: publisher,
	}
}

// InstallmentPurchase describes a purchase paid over TotalTerm months.
type InstallmentPurchase struct {
	UserID                 string
	Title                  string
	Amount                 decimal.Decimal // full purchase price
	Date                   core.Date
	TotalTerm              int
	StartTerm              int // term the purchase date represents; defaults to 1
	Day                    int // recurring day of month; defaults to Date's day
	CategoryID             string
	AssetID                string
	BudgetType             core.BudgetType
	Note                   string
	IncludeInLivingExpense bool
}

// CreateTransaction validates t, checks its references and saves it.
func (s *TransactionService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	saved, err := s.insert(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, amqp.EventTransactionCreated, saved, "")
	return saved, nil
}

// CreateInstallmentPurchase writes the master record of an installment.
func (s *TransactionService) CreateInstallmentPurchase(ctx context.Context, p InstallmentPurchase) (core.Transaction, error) {
	startTerm := p.StartTerm
	if startTerm == 0 {
		startTerm = 1
	}
	day := p.Day
	if day == 0 {
		day = p.Date.Day()
	}
	master := core.Transaction{
		UserID:                 p.UserID,
		Title:                  p.Title,
		Amount:                 p.Amount,
		Date:                   p.Date,
		Type:                   core.Expense,
		CategoryID:             p.CategoryID,
		AssetID:                p.AssetID,
		BudgetType:             p.BudgetType,
		Note:                   p.Note,
		IncludeInLivingExpense: p.IncludeInLivingExpense,
		Installment: &core.Installment{
			TotalTerm:      p.TotalTerm,
			CurrentTerm:    startTerm,
			Day:            day,
			OriginalAmount: p.Amount,
		},
	}
	return s.CreateTransaction(ctx, master)
}

// RecordOccurrence saves a generated occurrence and publishes it with the
// period it was generated for.
func (s *TransactionService) RecordOccurrence(ctx context.Context, t core.Transaction, periodKey string) (core.Transaction, error) {
	saved, err := s.insert(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}
	s.publish(ctx, amqp.EventOccurrenceGenerated, saved, periodKey)
	return saved, nil
}

// DeleteTransaction removes a record. Deleting a master also removes every
// occurrence generated from it.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id string) error {
	t, err := s.ledger.GetTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}

	if t.Kind() == core.InstallmentMasterKind {
		n, err := s.ledger.DeleteTransactionsByInstallmentID(ctx, t.ID)
		if err != nil {
			return &core.StoreError{Op: "delete occurrences", Err: err}
		}
		slog.InfoContext(ctx, "Deleted installment occurrences",
			"master_id", t.ID,
			"count", n)
	}

	if err := s.ledger.DeleteTransaction(ctx, t.ID); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.publish(ctx, amqp.EventTransactionDeleted, t, "")
	return nil
}

func (s *TransactionService) insert(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Title = strings.TrimSpace(t.Title)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.checkReferences(ctx, t); err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.ledger.InsertTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, &core.StoreError{Op: "insert transaction", Err: err}
	}
	return saved, nil
}

func (s *TransactionService) checkReferences(ctx context.Context, t core.Transaction) error {
	if s.catalog == nil {
		return nil
	}
	if t.CategoryID != "" {
		if _, err := s.catalog.GetCategory(ctx, t.UserID, t.CategoryID); err != nil {
			return fmt.Errorf("check category: %w", err)
		}
	}
	for _, assetID := range []string{t.AssetID, t.ToAssetID} {
		if assetID == "" {
			continue
		}
		if _, err := s.catalog.GetAsset(ctx, t.UserID, assetID); err != nil {
			return fmt.Errorf("check asset: %w", err)
		}
	}
	return nil
}

func (s *TransactionService) publish(ctx context.Context, event string, t core.Transaction, periodKey string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewTransactionMessage(event, t.ID, t.UserID, string(t.Kind()), periodKey)
	msg.Date = t.Date.String()
	if err := s.publisher.PublishTransaction(ctx, msg); err != nil {
		// The record is already committed; the exporter can catch up later.
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"event", event,
			"id", t.ID,
			"error", err)
	}
}
