package sheets

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"budgetsync/internal/core"
)

var (
	categoryHeaders    = []string{"id", "user_id", "name", "color", "emoji", "budget"}
	transactionHeaders = []string{"id", "user_id", "category_id", "amount", "note", "date"}
)

// located pairs a record with its 1-based sheet row number.
type located[T any] struct {
	Row    int
	Record T
}

type columns map[string]int

// headerColumns maps the header row of a tab to column indexes and checks
// that every expected header is present.
func headerColumns(values [][]interface{}, want []string) (columns, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("missing header row")
	}
	headers := toStrings(values[0])
	cols := columns{}
	var missing []string
	for _, h := range want {
		idx := indexOf(headers, h)
		if idx == -1 {
			missing = append(missing, h)
			continue
		}
		cols[h] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unexpected header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}
	return cols, nil
}

func (c columns) get(row []string, name string) string {
	return strings.TrimSpace(safeGet(row, c[name]))
}

// parseCategories returns the owner's category rows. Rows that do not parse
// are skipped.
func parseCategories(values [][]interface{}, owner string) ([]located[core.Category], error) {
	if len(values) == 0 {
		return nil, nil
	}
	cols, err := headerColumns(values, categoryHeaders)
	if err != nil {
		return nil, err
	}
	var out []located[core.Category]
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if cols.get(row, "user_id") != owner {
			continue
		}
		c := core.Category{
			ID:    cols.get(row, "id"),
			Name:  cols.get(row, "name"),
			Color: cols.get(row, "color"),
			Emoji: cols.get(row, "emoji"),
		}
		if c.ID == "" || c.Name == "" {
			continue
		}
		if b := cols.get(row, "budget"); b != "" {
			d, err := decimal.NewFromString(strings.ReplaceAll(b, ",", "."))
			if err == nil && !d.IsNegative() {
				m := core.MoneyFromDecimal(d)
				c.Budget = &m
			}
		}
		out = append(out, located[core.Category]{Row: i + 1, Record: c})
	}
	return out, nil
}

// parseTransactions returns the owner's transaction rows.
func parseTransactions(values [][]interface{}, owner string) ([]located[core.Transaction], error) {
	if len(values) == 0 {
		return nil, nil
	}
	cols, err := headerColumns(values, transactionHeaders)
	if err != nil {
		return nil, err
	}
	var out []located[core.Transaction]
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		if cols.get(row, "user_id") != owner {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(cols.get(row, "amount"), ",", "."))
		if err != nil {
			continue
		}
		date, err := time.Parse(time.RFC3339Nano, cols.get(row, "date"))
		if err != nil {
			continue
		}
		t := core.Transaction{
			ID:         cols.get(row, "id"),
			CategoryID: cols.get(row, "category_id"),
			Amount:     core.MoneyFromDecimal(amount),
			Note:       cols.get(row, "note"),
			Date:       date.UTC(),
		}
		if t.ID == "" || t.CategoryID == "" {
			continue
		}
		out = append(out, located[core.Transaction]{Row: i + 1, Record: t})
	}
	return out, nil
}

func categoryValues(owner string, c core.Category) []interface{} {
	budget := ""
	if c.Budget != nil {
		budget = c.Budget.Fixed()
	}
	return []interface{}{c.ID, owner, c.Name, c.Color, c.Emoji, budget}
}

func transactionValues(owner string, t core.Transaction) []interface{} {
	return []interface{}{t.ID, owner, t.CategoryID, t.Amount.Fixed(), t.Note, t.Date.UTC().Format(time.RFC3339Nano)}
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
