package pdf

import (
	"bytes"
	"image"
	"reflect"
	"testing"

	"github.com/tsawler/redactor/contentstream"
	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/model"
)

func op(operator string, operands ...core.Object) contentstream.Operation {
	return contentstream.Operation{Operator: operator, Operands: operands}
}

func TestRewriteShow(t *testing.T) {
	tests := []struct {
		name string
		op   contentstream.Operation
		rs   []removal
		want []contentstream.Operation
	}{
		{
			name: "Tj middle glyph",
			op:   op("Tj", core.String("ABC")),
			rs:   []removal{{elem: 0, start: 1, end: 2, kern: -500}},
			want: []contentstream.Operation{op("TJ", core.Array{core.String("A"), core.Real(-500), core.String("C")})},
		},
		{
			name: "TJ kerns merge",
			op:   op("TJ", core.Array{core.String("AB"), core.Int(100), core.String("CD")}),
			rs:   []removal{{elem: 2, start: 0, end: 1, kern: -250}},
			want: []contentstream.Operation{op("TJ", core.Array{core.String("AB"), core.Real(-150), core.String("D")})},
		},
		{
			name: "whole string",
			op:   op("Tj", core.String("AB")),
			rs:   []removal{{elem: 0, start: 1, end: 2, kern: -300}, {elem: 0, start: 0, end: 1, kern: -200}},
			want: []contentstream.Operation{op("TJ", core.Array{core.Real(-500)})},
		},
		{
			name: "quote moves to next line",
			op:   op("'", core.String("XY")),
			rs:   []removal{{elem: 0, start: 0, end: 1, kern: -600}},
			want: []contentstream.Operation{
				op("T*"),
				op("TJ", core.Array{core.Real(-600), core.String("Y")}),
			},
		},
		{
			name: "double quote keeps spacing",
			op:   op("\"", core.Int(1), core.Int(2), core.String("XY")),
			rs:   []removal{{elem: 0, start: 1, end: 2, kern: -600}},
			want: []contentstream.Operation{
				op("Tw", core.Int(1)),
				op("Tc", core.Int(2)),
				op("T*"),
				op("TJ", core.Array{core.String("X"), core.Real(-600)}),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rewriteShow(tt.op, tt.rs)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("rewriteShow() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPageContentBalances(t *testing.T) {
	ops, err := contentstream.Parse([]byte("Q BT /F1 12 Tf q 1 0 0 1 5 5 cm"))
	if err != nil {
		t.Fatal(err)
	}
	out := pageContent(ops, []model.Rect{{X: 10, Y: 20, Width: 30, Height: 40.5}})

	if !bytes.HasSuffix(out, []byte("q 0 0 0 rg 10 20 30 40.5 re f Q\n")) {
		t.Errorf("cover missing: %s", out)
	}
	parsed, err := contentstream.Parse(out)
	if err != nil {
		t.Fatal(err)
	}
	depth := 0
	inText := false
	for i, o := range parsed {
		switch o.Operator {
		case "q":
			depth++
		case "Q":
			depth--
			if depth < 0 {
				t.Fatalf("Q underflow at operation %d", i)
			}
		case "BT":
			inText = true
		case "ET":
			inText = false
		}
	}
	if depth != 0 || inText {
		t.Errorf("unbalanced content: depth %d, in text %v", depth, inText)
	}
}

func TestPixelRect(t *testing.T) {
	tests := []struct {
		name string
		r    model.Rect
		w, h int
		want image.Rectangle
	}{
		{"centre", model.Rect{X: 0.25, Y: 0.25, Width: 0.5, Height: 0.5}, 100, 100, image.Rect(25, 25, 75, 75)},
		{"clamped", model.Rect{X: -1, Y: -1, Width: 1.5, Height: 3}, 10, 20, image.Rect(0, 0, 5, 20)},
		{"top strip", model.Rect{X: 0, Y: 0.9, Width: 1, Height: 0.1}, 10, 10, image.Rect(0, 0, 10, 1)},
		{"rounds outwards", model.Rect{X: 0.11, Y: 0.11, Width: 0.1, Height: 0.1}, 10, 10, image.Rect(1, 7, 3, 9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pixelRect(tt.r, tt.w, tt.h); got != tt.want {
				t.Errorf("pixelRect() = %v, want %v", got, tt.want)
			}
		})
	}
}
