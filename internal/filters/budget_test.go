package filters

import (
	"bytes"
	"errors"
	"testing"
)

func TestBudgetTotal(t *testing.T) {
	b := NewBudget(0, 10)
	enc := deflate(t, []byte("0123456"))

	if _, err := FlateDecode(enc, nil, b); err != nil {
		t.Fatalf("first decode failed: %v", err)
	}
	if b.Used() != 7 {
		t.Errorf("Used() = %d, want 7", b.Used())
	}
	// Only three bytes are left.
	if _, err := FlateDecode(enc, nil, b); !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit, got %v", err)
	}
	if _, err := ASCIIHexDecode([]byte("41"), b); err != nil {
		t.Fatalf("decode within the remainder failed: %v", err)
	}
	if !errors.Is(b.Err(), ErrLimit) {
		t.Error("Err() should report the earlier overrun")
	}
}

func TestBudgetSpent(t *testing.T) {
	b := NewBudget(0, 2)
	if _, err := ASCIIHexDecode([]byte("4142"), b); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Limit(); !errors.Is(err, ErrLimit) {
		t.Errorf("Limit() on a spent budget = %v, want ErrLimit", err)
	}
}

func TestNilBudgetIsUnlimited(t *testing.T) {
	var b *Budget
	limit, err := b.Limit()
	if limit != 0 || err != nil {
		t.Errorf("Limit() = %d, %v", limit, err)
	}
	if err := b.Charge(1 << 40); err != nil {
		t.Error(err)
	}
	if b.Err() != nil || b.Used() != 0 {
		t.Error("nil budget should never report use")
	}
	out, err := ReadAll(bytes.NewReader(make([]byte, 4096)), b)
	if err != nil || len(out) != 4096 {
		t.Errorf("ReadAll = %d bytes, %v", len(out), err)
	}
}

func TestNewBudgetClampsNegativeLimits(t *testing.T) {
	b := NewBudget(-1, -5)
	if limit, err := b.Limit(); limit != 0 || err != nil {
		t.Errorf("Limit() = %d, %v; want no limit", limit, err)
	}
}
