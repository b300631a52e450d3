package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"budgetsync/internal/core"
	"budgetsync/internal/identity"
)

const (
	maxBodyBytes   = 64 << 10
	maxBackupBytes = 10 << 20
)

var (
	errNotObject = errors.New("body must be a JSON object")
	errNotString = errors.New("must be a string")
	errNotAmount = errors.New("must be a number or a numeric string")
)

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &core.ValidationError{Field: "body", Err: fmt.Errorf("larger than %d bytes", tooLarge.Limit)}
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func parseObject(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &core.ValidationError{Field: "body", Err: errNotObject}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, &core.ValidationError{Field: "body", Err: errNotObject}
	}
	return root, nil
}

// optionalString returns nil when field is absent and an error when it is
// present but not a string.
func optionalString(root gjson.Result, field string) (*string, error) {
	v := root.Get(field)
	if !v.Exists() {
		return nil, nil
	}
	if v.Type != gjson.String {
		return nil, &core.ValidationError{Field: field, Err: errNotString}
	}
	s := sanitizeInput(v.Str)
	return &s, nil
}

func decimalValue(v gjson.Result) (decimal.Decimal, bool) {
	switch v.Type {
	case gjson.Number:
		d, err := decimal.NewFromString(v.Raw)
		return d, err == nil
	case gjson.String:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v.Str), ",", "."))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

// parseCategoryPatch reads the fields present in body. A null budget clears
// the budget.
func parseCategoryPatch(body []byte) (core.CategoryPatch, error) {
	root, err := parseObject(body)
	if err != nil {
		return core.CategoryPatch{}, err
	}
	var p core.CategoryPatch
	if p.Name, err = optionalString(root, "name"); err != nil {
		return p, err
	}
	if p.Color, err = optionalString(root, "color"); err != nil {
		return p, err
	}
	if p.Emoji, err = optionalString(root, "emoji"); err != nil {
		return p, err
	}
	if b := root.Get("budget"); b.Exists() {
		if b.Type == gjson.Null {
			p.ClearBudget = true
		} else {
			d, ok := decimalValue(b)
			if !ok {
				return p, &core.ValidationError{Field: "budget", Err: errNotAmount}
			}
			if d.IsNegative() {
				return p, &core.ValidationError{Field: "budget", Err: core.ErrInvalidBudget}
			}
			m := core.MoneyFromDecimal(d)
			p.Budget = &m
		}
	}
	return p, nil
}

func parseCategory(body []byte) (core.Category, error) {
	p, err := parseCategoryPatch(body)
	if err != nil {
		return core.Category{}, err
	}
	return p.Apply(core.Category{}), nil
}

// parseTransactionPatch reads the fields present in body. A null note
// clears the note.
func parseTransactionPatch(body []byte) (core.TransactionPatch, error) {
	root, err := parseObject(body)
	if err != nil {
		return core.TransactionPatch{}, err
	}
	var p core.TransactionPatch
	if p.CategoryID, err = optionalString(root, "categoryId"); err != nil {
		return p, err
	}
	if a := root.Get("amount"); a.Exists() {
		if a.Type != gjson.Number && a.Type != gjson.String {
			return p, &core.ValidationError{Field: "amount", Err: errNotAmount}
		}
		raw := a.Str
		if a.Type == gjson.Number {
			raw = a.Raw
		}
		cents, err := core.ParseDecimalToCents(raw)
		if err != nil {
			return p, &core.ValidationError{Field: "amount", Err: err}
		}
		p.Amount = &core.Money{Cents: cents}
	}
	if n := root.Get("note"); n.Exists() {
		if n.Type == gjson.Null {
			empty := ""
			p.Note = &empty
		} else if p.Note, err = optionalString(root, "note"); err != nil {
			return p, err
		}
	}
	if d := root.Get("date"); d.Exists() {
		if d.Type != gjson.String {
			return p, &core.ValidationError{Field: "date", Err: errNotString}
		}
		t, err := parseDate(d.Str)
		if err != nil {
			return p, &core.ValidationError{Field: "date", Err: core.ErrInvalidDate}
		}
		p.Date = &t
	}
	return p, nil
}

// parseTransaction reads a new transaction. The date defaults to now.
func parseTransaction(body []byte, now time.Time) (core.Transaction, error) {
	p, err := parseTransactionPatch(body)
	if err != nil {
		return core.Transaction{}, err
	}
	return p.Apply(core.Transaction{Date: now.UTC()}), nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02"}

// parseDate accepts an RFC 3339 instant or a YYYY-MM-DD day.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// parseRange reads the inclusive from/to days of a summary. Missing bounds
// leave that side open.
func parseRange(q url.Values) (from, to time.Time, err error) {
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, &core.ValidationError{Field: "from", Err: core.ErrInvalidDate}
		}
		from, _ = identity.DayBounds(d)
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, &core.ValidationError{Field: "to", Err: core.ErrInvalidDate}
		}
		_, end := identity.DayBounds(d)
		to = end.Add(-time.Nanosecond)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, &core.ValidationError{Field: "to", Err: errors.New("before from")}
	}
	return from, to, nil
}

// sanitizeInput trims s and drops control characters.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
