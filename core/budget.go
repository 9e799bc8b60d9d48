package core

import "github.com/tsawler/redactor/internal/filters"

// Budget bounds the decoded size of streams. See [NewBudget].
type Budget = filters.Budget

// ErrDecodeLimit is returned by [Stream.Decode] when a stream would decode
// past its budget.
var ErrDecodeLimit = filters.ErrLimit

// NewBudget returns a budget that caps each decoded stream at perStream
// bytes and all decoded output at total bytes. Zero means no limit.
func NewBudget(perStream, total int64) *Budget {
	return filters.NewBudget(perStream, total)
}
