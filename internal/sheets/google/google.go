// Package google mirrors ledger entries onto a Google spreadsheet, one
// sheet per tenant and year.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tesouraria/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// Ensure interface conformance
var _ sheets.Mirror = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Auth: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	// Also check the standard Google Cloud environment variable
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

// sheetName returns "<year> <tenant>", the per-tenant per-year sheet.
func sheetName(tenantID string, year int) string {
	return fmt.Sprintf("%d %s", year, tenantID)
}

func rowYear(date string) int {
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.Year()
	}
	return time.Now().Year()
}

// AppendEntry writes one row: entry id, date, category, title, value.
func (c *Client) AppendEntry(ctx context.Context, row sheets.EntryRow) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := sheetName(row.Tenant, rowYear(row.Date))

	// Find the next empty row by getting the sheet dimensions first
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:E%d", sheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{row.EntryID, row.Date, row.Category, row.Title, row.Value}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to append row to sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Mirrored entry", "sheet", sheet, "entry_id", row.EntryID, "row", nextRow)
	return nil
}

// RemoveEntry clears the row holding the entry id. The current and the
// previous year's sheets are checked; older rows stay as history.
func (c *Client) RemoveEntry(ctx context.Context, tenantID, entryID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	year := time.Now().Year()
	for _, y := range []int{year, year - 1} {
		sheet := sheetName(tenantID, y)
		cleared, err := c.clearRowByID(ctx, sheet, entryID)
		if err != nil {
			return err
		}
		if cleared {
			slog.InfoContext(ctx, "Cleared mirrored entry", "sheet", sheet, "entry_id", entryID)
			return nil
		}
	}

	slog.WarnContext(ctx, "Mirrored entry not found", "tenant", tenantID, "entry_id", entryID)
	return nil
}

func (c *Client) clearRowByID(ctx context.Context, sheet, entryID string) (bool, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		// A missing sheet for this year is not an error for the caller.
		return false, nil
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) != entryID {
			continue
		}
		rowNum := i + 1
		clearRange := fmt.Sprintf("%s!A%s:E%s", sheet, strconv.Itoa(rowNum), strconv.Itoa(rowNum))
		_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
			Context(ctx).Do()
		if err != nil {
			return false, fmt.Errorf("clear row %d in sheet %s: %w", rowNum, sheet, err)
		}
		return true, nil
	}
	return false, nil
}
