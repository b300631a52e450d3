package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

type (
	Money struct {
		Cents int64
	}

	// Category groups transactions and optionally carries a spending budget.
	// Identifiers are local to the store that assigned them.
	Category struct {
		ID     string
		Name   string
		Color  string
		Emoji  string
		Budget *Money // nil when no budget is set
	}

	// Transaction is a single expense owned by a category of the same store.
	Transaction struct {
		ID         string
		CategoryID string
		Amount     Money
		Note       string // empty means absent
		Date       time.Time
	}

	// Snapshot is the full list of records of one store for one scope.
	Snapshot struct {
		Categories   []Category
		Transactions []Transaction
	}

	// CategoryPatch carries the fields to change on an existing category.
	// Nil fields are left untouched.
	CategoryPatch struct {
		Name        *string
		Color       *string
		Emoji       *string
		Budget      *Money
		ClearBudget bool
	}

	// TransactionPatch carries the fields to change on an existing transaction.
	TransactionPatch struct {
		CategoryID *string
		Amount     *Money
		Note       *string
		Date       *time.Time
	}
)

const (
	MaxNameLength = 60
	MaxNoteLength = 200
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidBudget   = errors.New("invalid budget")
	ErrEmptyName       = errors.New("empty category name")
	ErrInvalidColor    = errors.New("invalid color")
	ErrEmptyCategory   = errors.New("empty category reference")
	ErrInvalidDate     = errors.New("invalid date")
	ErrNotFound        = errors.New("not found")
	ErrUnknownCategory = errors.New("unknown category")
)

var colorPattern = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the invariants every stored category holds. Imported
// records are held to these only.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if c.Budget != nil && c.Budget.Cents < 0 {
		return &ValidationError{Field: "budget", Err: ErrInvalidBudget}
	}
	return nil
}

// ValidateInput adds the limits on interactively entered categories.
func (c Category) ValidateInput() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := validateName(c.Name); err != nil {
		return err
	}
	return validateColor(c.Color)
}

func validateName(name string) error {
	if len(strings.TrimSpace(name)) > MaxNameLength {
		return &ValidationError{Field: "name", Err: errors.New("name too long (max 60 characters)")}
	}
	return nil
}

func validateColor(color string) error {
	if !colorPattern.MatchString(color) {
		return &ValidationError{Field: "color", Err: ErrInvalidColor}
	}
	return nil
}

func validateNote(note string) error {
	if len(note) > MaxNoteLength {
		return &ValidationError{Field: "note", Err: errors.New("note too long (max 200 characters)")}
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.CategoryID) == "" {
		return &ValidationError{Field: "categoryId", Err: ErrEmptyCategory}
	}
	if err := t.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if t.Date.IsZero() {
		return &ValidationError{Field: "date", Err: ErrInvalidDate}
	}
	return nil
}

func (t Transaction) ValidateInput() error {
	if err := t.Validate(); err != nil {
		return err
	}
	return validateNote(t.Note)
}

// ValidateInput checks the fields a patch sets against the interactive
// input limits.
func (p CategoryPatch) ValidateInput() error {
	if p.Name != nil {
		if err := validateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Color != nil {
		return validateColor(*p.Color)
	}
	return nil
}

func (p TransactionPatch) ValidateInput() error {
	if p.Note != nil {
		return validateNote(*p.Note)
	}
	return nil
}

// Apply returns c with the patch applied.
func (p CategoryPatch) Apply(c Category) Category {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Emoji != nil {
		c.Emoji = *p.Emoji
	}
	if p.ClearBudget {
		c.Budget = nil
	} else if p.Budget != nil {
		b := *p.Budget
		c.Budget = &b
	}
	return c
}

// Apply returns t with the patch applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	return t
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Categories:   make([]Category, len(s.Categories)),
		Transactions: make([]Transaction, len(s.Transactions)),
	}
	for i, c := range s.Categories {
		if c.Budget != nil {
			b := *c.Budget
			c.Budget = &b
		}
		out.Categories[i] = c
	}
	copy(out.Transactions, s.Transactions)
	return out
}

// IsEmpty reports whether the snapshot holds no records at all.
func (s Snapshot) IsEmpty() bool {
	return len(s.Categories) == 0 && len(s.Transactions) == 0
}

// CategoryByID returns the category with the given id.
func (s Snapshot) CategoryByID(id string) (Category, bool) {
	for _, c := range s.Categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// WithoutCategory drops the category and every transaction it owns.
func (s Snapshot) WithoutCategory(id string) Snapshot {
	out := Snapshot{}
	for _, c := range s.Categories {
		if c.ID != id {
			out.Categories = append(out.Categories, c)
		}
	}
	for _, t := range s.Transactions {
		if t.CategoryID != id {
			out.Transactions = append(out.Transactions, t)
		}
	}
	return out
}
