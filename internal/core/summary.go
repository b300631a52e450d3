package core

import (
	"sort"
	"time"
)

// CategoryAmount is the amount spent in one category.
type CategoryAmount struct {
	CategoryID string
	Name       string
	Color      string
	Emoji      string
	Amount     Money
}

// BudgetUsage compares spending with the category budget.
type BudgetUsage struct {
	CategoryID string
	Name       string
	Budget     Money
	Spent      Money
	Remaining  Money
	Percent    float64 // 0-100, capped
}

// Summary is a compact aggregate of a snapshot over a date range.
type Summary struct {
	From       time.Time
	To         time.Time
	Total      Money
	ByCategory []CategoryAmount
	Budgets    []BudgetUsage
}

// Summarize totals the transactions dated within [from, to]. Transactions
// whose category does not resolve are dropped. A zero from or to leaves that
// side of the range open.
func Summarize(s Snapshot, from, to time.Time) Summary {
	byID := make(map[string]Category, len(s.Categories))
	for _, c := range s.Categories {
		byID[c.ID] = c
	}

	totals := make(map[string]int64)
	var total int64
	for _, t := range s.Transactions {
		if _, ok := byID[t.CategoryID]; !ok {
			continue
		}
		if !from.IsZero() && t.Date.Before(from) {
			continue
		}
		if !to.IsZero() && t.Date.After(to) {
			continue
		}
		totals[t.CategoryID] += t.Amount.Cents
		total += t.Amount.Cents
	}

	out := Summary{From: from, To: to, Total: Money{Cents: total}}
	for _, c := range s.Categories {
		spent := totals[c.ID]
		if spent > 0 {
			out.ByCategory = append(out.ByCategory, CategoryAmount{
				CategoryID: c.ID,
				Name:       c.Name,
				Color:      c.Color,
				Emoji:      c.Emoji,
				Amount:     Money{Cents: spent},
			})
		}
		if c.Budget != nil && c.Budget.Cents > 0 {
			remaining := c.Budget.Cents - spent
			if remaining < 0 {
				remaining = 0
			}
			pct := float64(spent) / float64(c.Budget.Cents) * 100
			if pct > 100 {
				pct = 100
			}
			out.Budgets = append(out.Budgets, BudgetUsage{
				CategoryID: c.ID,
				Name:       c.Name,
				Budget:     *c.Budget,
				Spent:      Money{Cents: spent},
				Remaining:  Money{Cents: remaining},
				Percent:    pct,
			})
		}
	}
	sort.SliceStable(out.ByCategory, func(i, j int) bool {
		return out.ByCategory[i].Amount.Cents > out.ByCategory[j].Amount.Cents
	})
	return out
}
