// Package backup reads and writes the JSON backup payload exchanged by
// export and import.
package backup

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"budgetsync/internal/core"
)

// Payload is the content of a backup file. Identifiers belong to the
// exporting store and are never reused on import.
type Payload struct {
	Categories   []core.Category
	Transactions []core.Transaction
}

// DecodeStats counts entries dropped while decoding.
type DecodeStats struct {
	SkippedCategories   int
	SkippedTransactions int
}

var ErrNotObject = errors.New("backup payload is not a JSON object")

// Decode parses a backup permissively. A categories or transactions field
// that is missing or not an array decodes as an empty sequence, and single
// malformed entries are dropped and counted. Only input that is not a JSON
// object is rejected.
func Decode(data []byte) (Payload, DecodeStats, error) {
	var stats DecodeStats
	if !gjson.ValidBytes(data) {
		return Payload{}, stats, &core.ValidationError{Field: "payload", Err: ErrNotObject}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Payload{}, stats, &core.ValidationError{Field: "payload", Err: ErrNotObject}
	}

	var p Payload
	if cats := root.Get("categories"); cats.IsArray() {
		cats.ForEach(func(_, v gjson.Result) bool {
			c, ok := decodeCategory(v)
			if !ok {
				stats.SkippedCategories++
				return true
			}
			p.Categories = append(p.Categories, c)
			return true
		})
	}
	if txs := root.Get("transactions"); txs.IsArray() {
		txs.ForEach(func(_, v gjson.Result) bool {
			t, ok := decodeTransaction(v)
			if !ok {
				stats.SkippedTransactions++
				return true
			}
			p.Transactions = append(p.Transactions, t)
			return true
		})
	}
	return p, stats, nil
}

func decodeCategory(v gjson.Result) (core.Category, bool) {
	if !v.IsObject() {
		return core.Category{}, false
	}
	c := core.Category{
		ID:    v.Get("id").String(),
		Name:  strings.TrimSpace(v.Get("name").String()),
		Color: v.Get("color").String(),
		Emoji: v.Get("emoji").String(),
	}
	if c.Name == "" {
		return core.Category{}, false
	}
	if b := v.Get("budget"); b.Exists() && b.Type != gjson.Null {
		d, ok := decimalOf(b)
		if !ok || d.IsNegative() {
			return core.Category{}, false
		}
		m := core.MoneyFromDecimal(d)
		c.Budget = &m
	}
	return c, true
}

func decodeTransaction(v gjson.Result) (core.Transaction, bool) {
	if !v.IsObject() {
		return core.Transaction{}, false
	}
	amount, ok := decimalOf(v.Get("amount"))
	if !ok || !amount.IsPositive() {
		return core.Transaction{}, false
	}
	date, err := parseInstant(v.Get("date").String())
	if err != nil {
		return core.Transaction{}, false
	}
	t := core.Transaction{
		ID:         v.Get("id").String(),
		CategoryID: v.Get("categoryId").String(),
		Amount:     core.MoneyFromDecimal(amount),
		Date:       date,
	}
	if n := v.Get("note"); n.Type == gjson.String {
		t.Note = n.String()
	}
	if t.CategoryID == "" || t.Amount.Cents <= 0 {
		return core.Transaction{}, false
	}
	return t, true
}

// decimalOf accepts a JSON number or a numeric string.
func decimalOf(v gjson.Result) (decimal.Decimal, bool) {
	switch v.Type {
	case gjson.Number:
		d, err := decimal.NewFromString(v.Raw)
		return d, err == nil
	case gjson.String:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v.Str), ",", "."))
		return d, err == nil
	default:
		return decimal.Decimal{}, false
	}
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range instantLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

type categoryJSON struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Color  string       `json:"color"`
	Emoji  string       `json:"emoji"`
	Budget *json.Number `json:"budget,omitempty"`
}

type transactionJSON struct {
	ID         string      `json:"id"`
	CategoryID string      `json:"categoryId"`
	Amount     json.Number `json:"amount"`
	Note       string      `json:"note,omitempty"`
	Date       string      `json:"date"`
}

type payloadJSON struct {
	Categories   []categoryJSON    `json:"categories"`
	Transactions []transactionJSON `json:"transactions"`
}

// Encode writes p in the backup format with amounts as JSON numbers and
// dates as UTC RFC 3339 instants.
func Encode(p Payload) ([]byte, error) {
	out := payloadJSON{
		Categories:   make([]categoryJSON, 0, len(p.Categories)),
		Transactions: make([]transactionJSON, 0, len(p.Transactions)),
	}
	for _, c := range p.Categories {
		cj := categoryJSON{ID: c.ID, Name: c.Name, Color: c.Color, Emoji: c.Emoji}
		if c.Budget != nil {
			b := json.Number(c.Budget.Fixed())
			cj.Budget = &b
		}
		out.Categories = append(out.Categories, cj)
	}
	for _, t := range p.Transactions {
		out.Transactions = append(out.Transactions, transactionJSON{
			ID:         t.ID,
			CategoryID: t.CategoryID,
			Amount:     json.Number(t.Amount.Fixed()),
			Note:       t.Note,
			Date:       t.Date.UTC().Format(time.RFC3339Nano),
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

// FromSnapshot builds a payload from a snapshot.
func FromSnapshot(s core.Snapshot) Payload {
	c := s.Clone()
	return Payload{Categories: c.Categories, Transactions: c.Transactions}
}

// FileName is the conventional name of a backup taken at t.
func FileName(t time.Time) string {
	return "budget-backup-" + t.UTC().Format("2006-01-02") + ".json"
}
