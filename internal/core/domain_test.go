package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
}

func TestCategoryValidate(t *testing.T) {
	negative := Money{Cents: -1}
	cases := []struct {
		name       string
		c          Category
		field      string
		inputField string
	}{
		{"ok", Category{Name: "Comida", Color: "#ef4444", Emoji: "🍔"}, "", ""},
		{"short color", Category{Name: "Ocio", Color: "#abc"}, "", ""},
		{"blank name", Category{Name: "   ", Color: "#ef4444"}, "name", "name"},
		{"bad color", Category{Name: "Hogar", Color: "red"}, "", "color"},
		{"empty color", Category{Name: "Hogar"}, "", "color"},
		{"long name", Category{Name: strings.Repeat("a", MaxNameLength+1), Color: "#ef4444"}, "", "name"},
		{"negative budget", Category{Name: "Hogar", Color: "#ef4444", Budget: &negative}, "budget", "budget"},
	}
	for _, tc := range cases {
		checkField(t, tc.name+" stored", tc.c.Validate(), tc.field)
		checkField(t, tc.name+" input", tc.c.ValidateInput(), tc.inputField)
	}
}

func checkField(t *testing.T, name string, err error, field string) {
	t.Helper()
	if field == "" {
		if err != nil {
			t.Fatalf("%s: expected ok, got %v", name, err)
		}
		return
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != field {
		t.Fatalf("%s: expected validation error on %q, got %v", name, field, err)
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{CategoryID: "c1", Amount: Money{Cents: 1250}, Date: time.Now()}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Amount: Money{Cents: 1}, Date: time.Now()},
		{CategoryID: "c1", Amount: Money{Cents: 0}, Date: time.Now()},
		{CategoryID: "c1", Amount: Money{Cents: 1}},
	}
	for i, b := range bads {
		if err := b.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}

	long := good
	long.Note = strings.Repeat("n", MaxNoteLength+1)
	checkField(t, "long note stored", long.Validate(), "")
	checkField(t, "long note input", long.ValidateInput(), "note")
}

func TestPatchValidateInput(t *testing.T) {
	bad := "blue"
	good := "#22c55e"
	long := strings.Repeat("n", MaxNoteLength+1)
	checkField(t, "bad color", CategoryPatch{Color: &bad}.ValidateInput(), "color")
	checkField(t, "good color", CategoryPatch{Color: &good}.ValidateInput(), "")
	checkField(t, "budget only", CategoryPatch{ClearBudget: true}.ValidateInput(), "")
	checkField(t, "long note", TransactionPatch{Note: &long}.ValidateInput(), "note")
	checkField(t, "no note", TransactionPatch{}.ValidateInput(), "")
}

func TestCategoryPatchApply(t *testing.T) {
	budget := Money{Cents: 5000}
	c := Category{ID: "c1", Name: "Comida", Color: "#ef4444", Budget: &budget}

	name := "Restaurantes"
	got := CategoryPatch{Name: &name}.Apply(c)
	if got.Name != "Restaurantes" || got.Color != "#ef4444" || got.Budget == nil {
		t.Fatalf("unexpected patch result: %+v", got)
	}

	got = CategoryPatch{ClearBudget: true}.Apply(c)
	if got.Budget != nil {
		t.Fatalf("expected budget cleared")
	}
}

func TestSnapshotWithoutCategory(t *testing.T) {
	s := Snapshot{
		Categories: []Category{{ID: "a"}, {ID: "b"}},
		Transactions: []Transaction{
			{ID: "t1", CategoryID: "a"},
			{ID: "t2", CategoryID: "b"},
			{ID: "t3", CategoryID: "a"},
		},
	}
	got := s.WithoutCategory("a")
	if len(got.Categories) != 1 || got.Categories[0].ID != "b" {
		t.Fatalf("unexpected categories: %+v", got.Categories)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].ID != "t2" {
		t.Fatalf("unexpected transactions: %+v", got.Transactions)
	}
}

func TestReportString(t *testing.T) {
	if got := (Report{}).String(); got != "no changes" {
		t.Fatalf("expected no changes, got %q", got)
	}
	r := Report{NewCategories: 2, NewTransactions: 5}
	if r.NoChanges() {
		t.Fatalf("expected changes")
	}
	if got := r.String(); got != "new categories: 2 · new transactions: 5" {
		t.Fatalf("unexpected report string %q", got)
	}

	failed := Report{FailedTransactions: 3, SkippedTransactions: 1}
	if !failed.NoChanges() || !failed.HasFailures() {
		t.Fatalf("expected no inserts with failures, got %+v", failed)
	}
	if got := failed.String(); got != "no changes · failed categories: 0 · failed transactions: 3" {
		t.Fatalf("unexpected report string %q", got)
	}
	r.FailedCategories = 1
	if got := r.String(); got != "new categories: 2 · new transactions: 5 · failed categories: 1 · failed transactions: 0" {
		t.Fatalf("unexpected report string %q", got)
	}
}

func TestStoreErrorUnwrap(t *testing.T) {
	err := NewStoreError("insert transaction", ErrUnknownCategory)
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "insert transaction" {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected wrapped ErrUnknownCategory")
	}
	if again := NewStoreError("other", err); again != err {
		t.Fatalf("expected StoreError not to be double wrapped")
	}
}
