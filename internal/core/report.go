package core

import "fmt"

// Report counts what a merge run committed. Only rows whose insert
// succeeded are counted as new.
type Report struct {
	NewCategories       int `json:"new_categories"`
	NewTransactions     int `json:"new_transactions"`
	SkippedCategories   int `json:"skipped_categories"`
	SkippedTransactions int `json:"skipped_transactions"`
	FailedCategories    int `json:"failed_categories"`
	FailedTransactions  int `json:"failed_transactions"`
}

// NoChanges reports whether the run inserted nothing.
func (r Report) NoChanges() bool {
	return r.NewCategories == 0 && r.NewTransactions == 0
}

// HasFailures reports whether any insert failed.
func (r Report) HasFailures() bool {
	return r.FailedCategories > 0 || r.FailedTransactions > 0
}

func (r Report) String() string {
	out := "no changes"
	if !r.NoChanges() {
		out = fmt.Sprintf("new categories: %d · new transactions: %d", r.NewCategories, r.NewTransactions)
	}
	if r.HasFailures() {
		out += fmt.Sprintf(" · failed categories: %d · failed transactions: %d", r.FailedCategories, r.FailedTransactions)
	}
	return out
}
