package filters

import (
	"bytes"
	"errors"
	"testing"

	"golang.org/x/image/ccitt"
)

// whiteG4 is an 8x8 all-white Group 4 image: one V0 code per row followed
// by the end-of-block marker.
var whiteG4 = []byte{0xFF, 0x00, 0x10, 0x01}

func TestCCITTFaxDecode(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   byte
	}{
		{"white is one", Params{"K": -1, "Columns": 8, "Rows": 8}, 0xFF},
		{"black is one", Params{"K": -1, "Columns": 8, "Rows": 8, "BlackIs1": true}, 0x00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CCITTFaxDecode(whiteG4, tt.params, nil)
			if err != nil {
				t.Fatalf("CCITTFaxDecode failed: %v", err)
			}
			if want := bytes.Repeat([]byte{tt.want}, 8); !bytes.Equal(got, want) {
				t.Errorf("CCITTFaxDecode = %x, want %x", got, want)
			}
		})
	}
}

func TestCCITTFaxDecodeWithinBudget(t *testing.T) {
	params := Params{"K": -1, "Columns": 8, "Rows": 8}

	_, err := CCITTFaxDecode(whiteG4, params, NewBudget(4, 0))
	if !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit, got %v", err)
	}

	b := NewBudget(8, 0)
	if _, err := CCITTFaxDecode(whiteG4, params, b); err != nil {
		t.Fatalf("decode at the limit failed: %v", err)
	}
	if b.Used() != 8 {
		t.Errorf("Used() = %d, want 8", b.Used())
	}
}

func TestReadFaxParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   faxParams
		format ccitt.SubFormat
	}{
		{"defaults", nil, faxParams{columns: 1728}, ccitt.Group3},
		{"group 4", Params{"K": -1, "Columns": 100, "Rows": 50, "BlackIs1": true},
			faxParams{k: -1, columns: 100, rows: 50, blackIs1: true}, ccitt.Group4},
		{"mixed group 3", Params{"K": 4}, faxParams{k: 4, columns: 1728}, ccitt.Group3},
		{"wrong types ignored", Params{"BlackIs1": "true", "Columns": "8"}, faxParams{columns: 1728}, ccitt.Group3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readFaxParams(tt.params)
			if got != tt.want {
				t.Errorf("readFaxParams() = %+v, want %+v", got, tt.want)
			}
			if got.subFormat() != tt.format {
				t.Errorf("subFormat() = %v, want %v", got.subFormat(), tt.format)
			}
		})
	}
}
