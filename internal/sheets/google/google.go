package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
	ports "finanzas/internal/sheets"
)

// DefaultRowCacheTTL bounds how long a sheet's row count and ID index are
// trusted before the sheet is read again.
const DefaultRowCacheTTL = 2 * time.Minute

// Ensure interface conformance
var _ ports.TransactionWriter = (*Client)(nil)

// Config selects the spreadsheet and the credentials used to reach it.
type Config struct {
	SpreadsheetID string
	// SheetName is the base name; the transaction's year is prefixed.
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	RowCacheTTL     time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string
	logger        *slog.Logger

	// mu serializes appends so row numbers are not handed out twice.
	mu   sync.Mutex
	rows *cache.LRUCache[*sheetState]
}

// sheetState is what the client knows about one year's sheet.
type sheetState struct {
	rowCount int
	ids      map[string]int
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	credentialsJSON, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(ctx, cfg, logger,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions builds the client with explicit API options, which lets
// tests point it at a local endpoint.
func NewWithOptions(ctx context.Context, cfg Config, logger *slog.Logger, opts ...goption.ClientOption) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Movimientos"
	}
	ttl := cfg.RowCacheTTL
	if ttl <= 0 {
		ttl = DefaultRowCacheTTL
	}

	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetBase:     base,
		logger:        logger.With(applog.FieldComponent, applog.ComponentSheets),
		rows:          cache.NewLRUCache[*sheetState](8, ttl),
	}, nil
}

// loadCredentials reads inline JSON, a key file, or GOOGLE_APPLICATION_CREDENTIALS.
func loadCredentials(cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// RowCache exposes the row cache so it can be swept with the other caches.
func (c *Client) RowCache() cache.Cleaner { return c.rows }

// InvalidateRowCache forgets what is known about every sheet.
func (c *Client) InvalidateRowCache() {
	c.rows.Purge()
}

// Append writes tx to "<year> <base>" unless its ID is already in the sheet.
// An empty sheet gets the header row first.
func (c *Client) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if tx.ID == "" {
		return "", errors.New("transaction without id")
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearPrefixedName(c.sheetBase, tx.Date.Year())

	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.state(ctx, sheet)
	if err != nil {
		return "", err
	}
	if row, ok := state.ids[tx.ID]; ok {
		c.logger.DebugContext(ctx, "Transaction already mirrored",
			applog.FieldTransactionID, tx.ID,
			"row", row)
		return rowRef(sheet, row), nil
	}

	values := [][]any{ports.RowValues(tx)}
	first := state.rowCount + 1
	if state.rowCount == 0 {
		values = [][]any{ports.Header, ports.RowValues(tx)}
	}
	last := first + len(values) - 1

	rng := fmt.Sprintf("%s!A%d:G%d", sheet, first, last)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		c.rows.Delete(sheet)
		return "", fmt.Errorf("failed to update %s: %w", rng, err)
	}

	state.rowCount = last
	state.ids[tx.ID] = last
	c.rows.Set(sheet, state)

	c.logger.InfoContext(ctx, "Transaction mirrored",
		applog.FieldTransactionID, tx.ID,
		"sheet", sheet,
		"row", last)
	return rowRef(sheet, last), nil
}

// state returns the cached sheet state or reads columns A:G to rebuild it.
func (c *Client) state(ctx context.Context, sheet string) (*sheetState, error) {
	if st, ok := c.rows.Get(sheet); ok {
		return st, nil
	}

	rng := fmt.Sprintf("%s!A:G", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get sheet dimensions for %s: %w", sheet, err)
	}

	st := &sheetState{rowCount: len(resp.Values), ids: make(map[string]int)}
	for i, row := range resp.Values {
		if len(row) <= ports.IDColumn {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[ports.IDColumn]))
		if id != "" {
			st.ids[id] = i + 1
		}
	}
	c.rows.Set(sheet, st)
	return st, nil
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:G%d", sheet, row, row)
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
