package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gagyebu/internal/core"
	ports "gagyebu/internal/sheets"
)

// Column layout of a ledger sheet, one row per record.
const (
	colID = iota
	colDate
	colTitle
	colType
	colKind
	colAmount
	colBudget
	colCategory
	colAsset
	colTerm
	colPeriod
	colStatus
	numCols
)

const statusDeleted = "deleted"

var header = []any{"ID", "Date", "Title", "Type", "Kind", "Amount", "Budget", "Category", "Asset", "Term", "Period", "Status"}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Ledger"); rows go to "<year> Ledger".
	sheetBase string
}

var _ ports.Exporter = (*Client)(nil)

// Config selects the spreadsheet and the service account used to reach it.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Ledger"
	}

	svc, err := newSheetsService(ctx, cfg.ServiceAccountJSON, cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     base,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Falls back to GOOGLE_APPLICATION_CREDENTIALS when neither JSON nor file is given.
func newSheetsService(ctx context.Context, serviceAccountJSON, serviceAccountFile string) (*gsheet.Service, error) {
	serviceAccountJSON = strings.TrimSpace(serviceAccountJSON)
	serviceAccountFile = strings.TrimSpace(serviceAccountFile)
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// Append writes t to the sheet of its year and returns the updated range.
func (c *Client) Append(ctx context.Context, t core.Transaction, periodKey string) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, t.Date.Year())
	if err := c.ensureHeader(ctx, sheet); err != nil {
		return "", err
	}

	rng := fmt.Sprintf("%s!A:%s", sheet, columnLetter(numCols-1))
	vr := &gsheet.ValueRange{Values: [][]any{rowFor(t, periodKey)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", sheet, err)
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

// ensureHeader writes the header row into an empty sheet.
func (c *Client) ensureHeader(ctx context.Context, sheet string) error {
	rng := fmt.Sprintf("%s!A1:%s1", sheet, columnLetter(numCols-1))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", sheet, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header of %s: %w", sheet, err)
	}
	return nil
}

// MarkDeleted sets the status cell of the row holding transactionID.
func (c *Client) MarkDeleted(ctx context.Context, year int, transactionID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	sheet := yearPrefixedName(c.sheetBase, year)
	ids, err := c.readCol(ctx, sheet, "A:A")
	if err != nil {
		return err
	}
	row := findRow(ids, transactionID)
	if row == 0 {
		return fmt.Errorf("row for %s in %s: %w", transactionID, sheet, core.ErrNotFound)
	}

	cell := fmt.Sprintf("%s!%s%d", sheet, columnLetter(colStatus), row)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, cell, &gsheet.ValueRange{Values: [][]any{{statusDeleted}}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", cell, err)
	}
	return nil
}

// ExportedIDs lists the transaction ids already in the year's sheet.
func (c *Client) ExportedIDs(ctx context.Context, year int) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	ids, err := c.readCol(ctx, yearPrefixedName(c.sheetBase, year), "A2:A")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out, nil
}

// readCol returns the first column of rng, one entry per sheet row.
func (c *Client) readCol(ctx context.Context, sheetName, col string) ([]string, error) {
	rng := fmt.Sprintf("%s!%s", sheetName, col)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
	}
	return out, nil
}

// rowFor renders t in the column order of the ledger sheet.
func rowFor(t core.Transaction, periodKey string) []any {
	row := make([]any, numCols)
	row[colID] = t.ID
	row[colDate] = t.Date.String()
	row[colTitle] = t.Title
	row[colType] = string(t.Type)
	row[colKind] = string(t.Kind())
	row[colAmount] = t.Amount.String()
	row[colBudget] = string(t.BudgetType)
	row[colCategory] = t.CategoryID
	row[colAsset] = t.AssetID
	row[colTerm] = ""
	if t.Installment != nil {
		row[colTerm] = fmt.Sprintf("%d/%d", t.Installment.CurrentTerm, t.Installment.TotalTerm)
	}
	row[colPeriod] = periodKey
	row[colStatus] = ""
	return row
}

// findRow returns the 1-based sheet row holding id, or 0.
func findRow(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i + 1
		}
	}
	return 0
}

// columnLetter maps a 0-based column index to its A1 letter (0 => A).
func columnLetter(idx int) string {
	s := ""
	for idx >= 0 {
		s = string(rune('A'+idx%26)) + s
		idx = idx/26 - 1
	}
	return s
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
