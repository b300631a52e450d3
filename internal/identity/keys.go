// Package identity derives the content keys used to match records across
// stores whose identifiers never coincide.
//
// Keys are derived per run and never persisted, so changing the
// normalization only requires bumping KeyVersion.
package identity

import (
	"strings"
	"time"

	"budgetsync/internal/core"
)

// KeyVersion prefixes every derived key.
const KeyVersion = "v1"

const (
	sep       = "|"
	dayLayout = "2006-01-02"
)

// CategoryKey returns the merge identity of a category.
// Name is trimmed and lower-cased, color lower-cased, emoji kept verbatim.
func CategoryKey(name, color, emoji string) string {
	return strings.Join([]string{
		KeyVersion,
		strings.ToLower(strings.TrimSpace(name)),
		strings.ToLower(color),
		emoji,
	}, sep)
}

// CategoryKeyOf is CategoryKey applied to c.
func CategoryKeyOf(c core.Category) string {
	return CategoryKey(c.Name, c.Color, c.Emoji)
}

// TransactionKey returns the merge identity of a transaction whose category
// id is already expressed in the destination store's id space.
func TransactionKey(categoryID string, amount core.Money, date time.Time, note string) string {
	return strings.Join([]string{
		KeyVersion,
		categoryID,
		amount.Fixed(),
		Day(date),
		strings.ToLower(strings.TrimSpace(note)),
	}, sep)
}

// TransactionKeyOf is TransactionKey applied to t.
func TransactionKeyOf(t core.Transaction) string {
	return TransactionKey(t.CategoryID, t.Amount, t.Date, t.Note)
}

// Day returns the UTC calendar day of t as YYYY-MM-DD.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// DayBounds returns the half-open UTC day window [start, end) containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// NormalizeNote is the note form compared by point lookups.
func NormalizeNote(note string) string {
	return strings.ToLower(strings.TrimSpace(note))
}
