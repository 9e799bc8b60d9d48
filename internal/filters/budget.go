package filters

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrLimit is returned when decoded output would exceed its budget.
var ErrLimit = errors.New("decoded size limit exceeded")

// Budget bounds decoded output. Every decode is capped at the per-stream
// limit and its output is charged against the total. A zero limit is
// unlimited, as is a nil *Budget. A Budget is safe for concurrent use.
type Budget struct {
	stream int64
	total  int64
	used   atomic.Int64
	over   atomic.Bool
}

// NewBudget returns a budget with the given per-stream and total limits.
func NewBudget(stream, total int64) *Budget {
	return &Budget{stream: max(stream, 0), total: max(total, 0)}
}

// Limit returns the most bytes the next decode may produce, 0 for no
// limit. It fails once the total is spent.
func (b *Budget) Limit() (int64, error) {
	if b == nil {
		return 0, nil
	}
	limit := b.stream
	if b.total > 0 {
		left := b.total - b.used.Load()
		if left <= 0 {
			return 0, b.fail()
		}
		if limit == 0 || left < limit {
			limit = left
		}
	}
	return limit, nil
}

// Charge records n decoded bytes against the total.
func (b *Budget) Charge(n int) error {
	if b == nil {
		return nil
	}
	if b.used.Add(int64(n)) > b.total && b.total > 0 {
		return b.fail()
	}
	return nil
}

// Used returns the bytes charged so far.
func (b *Budget) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used.Load()
}

// Err returns ErrLimit once any decode charged to b ran over, even when
// the caller dropped that decode's error.
func (b *Budget) Err() error {
	if b != nil && b.over.Load() {
		return ErrLimit
	}
	return nil
}

func (b *Budget) fail() error {
	if b != nil {
		b.over.Store(true)
	}
	return ErrLimit
}

// check fails when n bytes of output exceed limit.
func (b *Budget) check(n int, limit int64) error {
	if limit > 0 && int64(n) > limit {
		return b.fail()
	}
	return nil
}

// ReadAll reads r to the end within the budget. On a read error the bytes
// read so far are returned with it.
func ReadAll(r io.Reader, b *Budget) ([]byte, error) {
	limit, err := b.Limit()
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	out, err := io.ReadAll(r)
	if cerr := b.check(len(out), limit); cerr != nil {
		return nil, cerr
	}
	if cerr := b.Charge(len(out)); cerr != nil {
		return nil, cerr
	}
	return out, err
}
