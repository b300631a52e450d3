// Package sample produces demo data for an empty local store.
package sample

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"budgetsync/internal/core"
)

// Seed describes the generated data. It can be read from a TOML file:
//
//	transactions = 40
//	days = 60
//	notes = ["Compra", "Snack"]
//
//	[[category]]
//	name = "Comida"
//	color = "#ef4444"
//	emoji = "🍔"
//	budget = "180"
type Seed struct {
	Transactions int            `toml:"transactions"`
	Days         int            `toml:"days"`
	MinAmount    string         `toml:"min_amount"`
	MaxAmount    string         `toml:"max_amount"`
	Notes        []string       `toml:"notes"`
	Categories   []SeedCategory `toml:"category"`
}

type SeedCategory struct {
	Name   string `toml:"name"`
	Color  string `toml:"color"`
	Emoji  string `toml:"emoji"`
	Budget string `toml:"budget"`
}

// Default returns the built-in seed: five categories and 40 transactions
// spread over the last 60 days.
func Default() Seed {
	return Seed{
		Transactions: 40,
		Days:         60,
		MinAmount:    "5",
		MaxAmount:    "65",
		Notes:        []string{"Compra", "Snack", "Uber", "Factura", "Cine", "Cafetería"},
		Categories: []SeedCategory{
			{Name: "Supermercado", Color: "#7c3aed", Emoji: "🛒", Budget: "300"},
			{Name: "Comida", Color: "#ef4444", Emoji: "🍔", Budget: "180"},
			{Name: "Transporte", Color: "#10b981", Emoji: "🚗", Budget: "120"},
			{Name: "Hogar", Color: "#f59e0b", Emoji: "🏠", Budget: "250"},
			{Name: "Ocio", Color: "#06b6d4", Emoji: "🎉", Budget: "150"},
		},
	}
}

// LoadSeed reads a TOML seed file. Missing fields fall back to Default.
func LoadSeed(path string) (Seed, error) {
	var s Seed
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Seed{}, fmt.Errorf("decode seed %s: %w", path, err)
	}
	def := Default()
	if s.Transactions <= 0 {
		s.Transactions = def.Transactions
	}
	if s.Days <= 0 {
		s.Days = def.Days
	}
	if s.MinAmount == "" {
		s.MinAmount = def.MinAmount
	}
	if s.MaxAmount == "" {
		s.MaxAmount = def.MaxAmount
	}
	if len(s.Notes) == 0 {
		s.Notes = def.Notes
	}
	if len(s.Categories) == 0 {
		s.Categories = def.Categories
	}
	return s, nil
}

// Generate builds a snapshot from seed. Category ids are placeholders
// ("sample-0", "sample-1", ...) that the caller replaces on insert.
func Generate(seed Seed, now time.Time, rng *rand.Rand) (core.Snapshot, error) {
	if len(seed.Categories) == 0 {
		return core.Snapshot{}, fmt.Errorf("seed has no categories")
	}
	minCents, err := core.ParseDecimalToCents(seed.MinAmount)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("min amount: %w", err)
	}
	maxCents, err := core.ParseDecimalToCents(seed.MaxAmount)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("max amount: %w", err)
	}
	if maxCents < minCents {
		minCents, maxCents = maxCents, minCents
	}

	var snap core.Snapshot
	for i, sc := range seed.Categories {
		c := core.Category{
			ID:    "sample-" + strconv.Itoa(i),
			Name:  sc.Name,
			Color: sc.Color,
			Emoji: sc.Emoji,
		}
		if sc.Budget != "" {
			cents, err := core.ParseDecimalToCents(sc.Budget)
			if err != nil {
				return core.Snapshot{}, fmt.Errorf("budget for %q: %w", sc.Name, err)
			}
			c.Budget = &core.Money{Cents: cents}
		}
		if err := c.ValidateInput(); err != nil {
			return core.Snapshot{}, fmt.Errorf("seed category %q: %w", sc.Name, err)
		}
		snap.Categories = append(snap.Categories, c)
	}

	for i := 0; i < seed.Transactions; i++ {
		c := snap.Categories[rng.IntN(len(snap.Categories))]
		t := core.Transaction{
			CategoryID: c.ID,
			Amount:     core.Money{Cents: minCents + rng.Int64N(maxCents-minCents+1)},
			Date:       now.Add(-time.Duration(rng.IntN(seed.Days+1)) * 24 * time.Hour),
		}
		if len(seed.Notes) > 0 {
			t.Note = seed.Notes[rng.IntN(len(seed.Notes))]
		}
		snap.Transactions = append(snap.Transactions, t)
	}
	return snap, nil
}
