package sheets

import (
	"context"

	"gagyebu/internal/core"
)

// Ports for outbound spreadsheet adapters.
type (
	// TransactionWriter appends one ledger record as a row.
	TransactionWriter interface {
		Append(ctx context.Context, t core.Transaction, periodKey string) (rowRef string, err error)
	}

	// DeletionMarker flags the row of a deleted record. Rows are never removed.
	DeletionMarker interface {
		MarkDeleted(ctx context.Context, year int, transactionID string) error
	}

	// ExportedLister returns the ids already present in a year's sheet.
	ExportedLister interface {
		ExportedIDs(ctx context.Context, year int) ([]string, error)
	}

	// Exporter is everything the ledger exporter needs.
	Exporter interface {
		TransactionWriter
		DeletionMarker
		ExportedLister
	}
)
