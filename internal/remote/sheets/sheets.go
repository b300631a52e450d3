// Package sheets stores the remote category and transaction tables in a
// Google spreadsheet, one tab per table and one row per record.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"budgetsync/internal/core"
	"budgetsync/internal/identity"
	"budgetsync/internal/store"
)

// Config locates the spreadsheet and its credentials.
type Config struct {
	SpreadsheetID      string
	CategoriesTab      string
	TransactionsTab    string
	ServiceAccountJSON string
	ServiceAccountFile string
}

// Client is an owner-scoped store.Store on top of the Sheets API. Writes
// are serialized because rows are addressed by position.
type Client struct {
	svc             *gsheet.Service
	spreadsheetID   string
	categoriesTab   string
	transactionsTab string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

var (
	_ store.Store             = (*Client)(nil)
	_ store.TransactionFinder = (*Client)(nil)
)

// New creates a Sheets client using service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:             svc,
		spreadsheetID:   cfg.SpreadsheetID,
		categoriesTab:   orDefault(cfg.CategoriesTab, "categories"),
		transactionsTab: orDefault(cfg.TransactionsTab, "transactions"),
	}, nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(cfg.ServiceAccountJSON))
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if len(credentialsJSON) == 0 && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if len(credentialsJSON) == 0 {
		if file == "" {
			return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
		}
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

// EnsureTabs writes the header row into tabs that are still empty.
func (c *Client) EnsureTabs(ctx context.Context) error {
	for tab, headers := range map[string][]string{
		c.categoriesTab:   categoryHeaders,
		c.transactionsTab: transactionHeaders,
	} {
		resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab+"!A1:F1").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("read %s header: %w", tab, err)
		}
		if len(resp.Values) > 0 {
			continue
		}
		row := make([]interface{}, len(headers))
		for i, h := range headers {
			row[i] = h
		}
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, tab+"!A1:F1", &gsheet.ValueRange{Values: [][]interface{}{row}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("write %s header: %w", tab, err)
		}
	}
	return nil
}

func (c *Client) read(ctx context.Context, tab string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, tab+"!A:F").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tab, err)
	}
	return resp.Values, nil
}

func (c *Client) categories(ctx context.Context, owner string) ([]located[core.Category], error) {
	values, err := c.read(ctx, c.categoriesTab)
	if err != nil {
		return nil, err
	}
	return parseCategories(values, owner)
}

func (c *Client) transactions(ctx context.Context, owner string) ([]located[core.Transaction], error) {
	values, err := c.read(ctx, c.transactionsTab)
	if err != nil {
		return nil, err
	}
	return parseTransactions(values, owner)
}

func owner(op string, scope store.Scope) (string, error) {
	if scope.IsZero() {
		return "", &core.StoreError{Op: op, Err: store.ErrScopeRequired}
	}
	return scope.UserID, nil
}

func (c *Client) ListCategories(ctx context.Context, scope store.Scope) ([]core.Category, error) {
	const op = "list categories"
	uid, err := owner(op, scope)
	if err != nil {
		return nil, err
	}
	rows, err := c.categories(ctx, uid)
	if err != nil {
		return nil, &core.StoreError{Op: op, Err: err}
	}
	out := make([]core.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Record)
	}
	store.SortCategories(out)
	return out, nil
}

func (c *Client) ListTransactions(ctx context.Context, scope store.Scope) ([]core.Transaction, error) {
	const op = "list transactions"
	uid, err := owner(op, scope)
	if err != nil {
		return nil, err
	}
	rows, err := c.transactions(ctx, uid)
	if err != nil {
		return nil, &core.StoreError{Op: op, Err: err}
	}
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Record)
	}
	store.SortTransactions(out)
	return out, nil
}

func (c *Client) append(ctx context.Context, tab string, row []interface{}) error {
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, tab+"!A:F", &gsheet.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", tab, err)
	}
	return nil
}

func (c *Client) update(ctx context.Context, tab string, rowNum int, row []interface{}) error {
	rng := fmt.Sprintf("%s!A%d:F%d", tab, rowNum, rowNum)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func (c *Client) InsertCategory(ctx context.Context, scope store.Scope, cat core.Category) (core.Category, error) {
	const op = "insert category"
	uid, err := owner(op, scope)
	if err != nil {
		return core.Category{}, err
	}
	if err := cat.Validate(); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cat.ID = uuid.NewString()
	if err := c.append(ctx, c.categoriesTab, categoryValues(uid, cat)); err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	return cat, nil
}

func (c *Client) InsertTransaction(ctx context.Context, scope store.Scope, t core.Transaction) (core.Transaction, error) {
	const op = "insert transaction"
	uid, err := owner(op, scope)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireCategory(ctx, uid, t.CategoryID); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	t.ID = uuid.NewString()
	t.Date = t.Date.UTC()
	if err := c.append(ctx, c.transactionsTab, transactionValues(uid, t)); err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	return t, nil
}

func (c *Client) UpdateCategory(ctx context.Context, scope store.Scope, id string, p core.CategoryPatch) (core.Category, error) {
	const op = "update category"
	uid, err := owner(op, scope)
	if err != nil {
		return core.Category{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.categories(ctx, uid)
	if err != nil {
		return core.Category{}, &core.StoreError{Op: op, Err: err}
	}
	for _, r := range rows {
		if r.Record.ID != id {
			continue
		}
		updated := p.Apply(r.Record)
		if err := updated.Validate(); err != nil {
			return core.Category{}, &core.StoreError{Op: op, Err: err}
		}
		if err := c.update(ctx, c.categoriesTab, r.Row, categoryValues(uid, updated)); err != nil {
			return core.Category{}, &core.StoreError{Op: op, Err: err}
		}
		return updated, nil
	}
	return core.Category{}, &core.StoreError{Op: op, Err: core.ErrNotFound}
}

func (c *Client) UpdateTransaction(ctx context.Context, scope store.Scope, id string, p core.TransactionPatch) (core.Transaction, error) {
	const op = "update transaction"
	uid, err := owner(op, scope)
	if err != nil {
		return core.Transaction{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, err := c.transactions(ctx, uid)
	if err != nil {
		return core.Transaction{}, &core.StoreError{Op: op, Err: err}
	}
	for _, r := range rows {
		if r.Record.ID != id {
			continue
		}
		updated := p.Apply(r.Record)
		if err := updated.Validate(); err != nil {
			return core.Transaction{}, &core.StoreError{Op: op, Err: err}
		}
		if p.CategoryID != nil {
			if err := c.requireCategory(ctx, uid, updated.CategoryID); err != nil {
				return core.Transaction{}, &core.StoreError{Op: op, Err: err}
			}
		}
		updated.Date = updated.Date.UTC()
		if err := c.update(ctx, c.transactionsTab, r.Row, transactionValues(uid, updated)); err != nil {
			return core.Transaction{}, &core.StoreError{Op: op, Err: err}
		}
		return updated, nil
	}
	return core.Transaction{}, &core.StoreError{Op: op, Err: core.ErrNotFound}
}

// DeleteCategory removes the category row and every transaction row it
// owns in a single batch update.
func (c *Client) DeleteCategory(ctx context.Context, scope store.Scope, id string) error {
	const op = "delete category"
	uid, err := owner(op, scope)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cats, err := c.categories(ctx, uid)
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	catRow := 0
	for _, r := range cats {
		if r.Record.ID == id {
			catRow = r.Row
			break
		}
	}
	if catRow == 0 {
		return &core.StoreError{Op: op, Err: core.ErrNotFound}
	}
	txs, err := c.transactions(ctx, uid)
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	var txRows []int
	for _, r := range txs {
		if r.Record.CategoryID == id {
			txRows = append(txRows, r.Row)
		}
	}

	reqs, err := c.deleteRowRequests(ctx, c.transactionsTab, txRows)
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	catReqs, err := c.deleteRowRequests(ctx, c.categoriesTab, []int{catRow})
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	if err := c.batch(ctx, append(reqs, catReqs...)); err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	slog.InfoContext(ctx, "Category deleted from sheet", "id", id, "transactions_removed", len(txRows))
	return nil
}

func (c *Client) DeleteTransaction(ctx context.Context, scope store.Scope, id string) error {
	const op = "delete transaction"
	uid, err := owner(op, scope)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	txs, err := c.transactions(ctx, uid)
	if err != nil {
		return &core.StoreError{Op: op, Err: err}
	}
	for _, r := range txs {
		if r.Record.ID != id {
			continue
		}
		reqs, err := c.deleteRowRequests(ctx, c.transactionsTab, []int{r.Row})
		if err != nil {
			return &core.StoreError{Op: op, Err: err}
		}
		if err := c.batch(ctx, reqs); err != nil {
			return &core.StoreError{Op: op, Err: err}
		}
		return nil
	}
	return &core.StoreError{Op: op, Err: core.ErrNotFound}
}

// FindTransaction implements store.TransactionFinder.
func (c *Client) FindTransaction(ctx context.Context, scope store.Scope, categoryID string, amount core.Money, date time.Time, note string) (bool, error) {
	const op = "find transaction"
	uid, err := owner(op, scope)
	if err != nil {
		return false, err
	}
	txs, err := c.transactions(ctx, uid)
	if err != nil {
		return false, &core.StoreError{Op: op, Err: err}
	}
	want := identity.TransactionKey(categoryID, amount, date, note)
	for _, r := range txs {
		if identity.TransactionKeyOf(r.Record) == want {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) requireCategory(ctx context.Context, uid, id string) error {
	cats, err := c.categories(ctx, uid)
	if err != nil {
		return err
	}
	for _, r := range cats {
		if r.Record.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w %q", core.ErrUnknownCategory, id)
}

// deleteRowRequests builds DeleteDimension requests bottom-up so earlier
// deletions do not shift the rows still to delete.
func (c *Client) deleteRowRequests(ctx context.Context, tab string, rows []int) ([]*gsheet.Request, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	sheetID, err := c.sheetID(ctx, tab)
	if err != nil {
		return nil, err
	}
	sorted := append([]int(nil), rows...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	reqs := make([]*gsheet.Request, 0, len(sorted))
	for _, row := range sorted {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		})
	}
	return reqs, nil
}

func (c *Client) batch(ctx context.Context, reqs []*gsheet.Request) error {
	if len(reqs) == 0 {
		return nil
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batch update: %w", err)
	}
	return nil
}

func (c *Client) sheetID(ctx context.Context, tab string) (int64, error) {
	if id, ok := c.sheetIDs[tab]; ok {
		return id, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet properties: %w", err)
	}
	ids := make(map[string]int64, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			ids[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	c.sheetIDs = ids
	id, ok := ids[tab]
	if !ok {
		return 0, fmt.Errorf("tab %q not found", tab)
	}
	return id, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
