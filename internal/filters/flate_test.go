package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"testing"
)

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := FlateEncode(data)
	if err != nil {
		t.Fatalf("FlateEncode failed: %v", err)
	}
	return enc
}

// rowParams describes rows of three one-byte samples.
func rowParams(predictor int) Params {
	return Params{"Predictor": predictor, "Columns": 3, "Colors": 1, "BitsPerComponent": 8}
}

func TestFlateDecode(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		params Params
		want   []byte
	}{
		{"no params", []byte("BT (hello) Tj ET"), nil, []byte("BT (hello) Tj ET")},
		{"predictor 1", []byte("plain"), Params{"Predictor": 1}, []byte("plain")},
		{"PNG none", []byte{0, 1, 2, 3, 0, 4, 5, 6}, rowParams(10), []byte{1, 2, 3, 4, 5, 6}},
		{"PNG sub", []byte{1, 10, 10, 10}, rowParams(10), []byte{10, 20, 30}},
		{"PNG up", []byte{0, 10, 20, 30, 2, 5, 5, 5}, rowParams(12), []byte{10, 20, 30, 15, 25, 35}},
		// (0+10)/2, (10+20)/2, (20+30)/2
		{"PNG average", []byte{0, 10, 20, 30, 3, 5, 5, 5}, rowParams(13), []byte{10, 20, 30, 10, 20, 30}},
		// Every sample is closest to the row above.
		{"PNG paeth", []byte{0, 10, 20, 30, 4, 1, 1, 1}, rowParams(14), []byte{10, 20, 30, 11, 21, 31}},
		{"TIFF", []byte{10, 10, 10, 10, 10, 10}, rowParams(2), []byte{10, 20, 30, 10, 20, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FlateDecode(deflate(t, tt.raw), tt.params, nil)
			if err != nil {
				t.Fatalf("FlateDecode failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("FlateDecode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlateDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		params Params
	}{
		{"not zlib", []byte{0x00, 0x01, 0x02, 0x03}, nil},
		{"unsupported predictor", []byte("test"), Params{"Predictor": 99}},
		{"16 bits per component", []byte{0, 1, 2, 3}, Params{"Predictor": 10, "Columns": 3, "BitsPerComponent": 16}},
		{"short row", []byte{0, 1, 2}, rowParams(10)},
		{"unknown PNG filter", []byte{7, 1, 2, 3}, rowParams(10)},
		{"zero columns", []byte{0, 1}, Params{"Predictor": 10, "Columns": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data
			if tt.name != "not zlib" {
				data = deflate(t, data)
			}
			if _, err := FlateDecode(data, tt.params, nil); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFlateDecodeTruncatedKeepsPrefix(t *testing.T) {
	in := bytes.Repeat([]byte("0123456789"), 200)
	enc := deflate(t, in)

	out, err := FlateDecode(enc[:len(enc)-4], nil, nil)
	if err != nil {
		t.Fatalf("expected partial data, got error: %v", err)
	}
	if !bytes.HasPrefix(in, out) {
		t.Error("partial output is not a prefix of the input")
	}
}

func TestFlateDecodeBombStopsAtLimit(t *testing.T) {
	// 64 MiB of zeros deflates to a few dozen kilobytes.
	var buf bytes.Buffer
	w, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	zeros := make([]byte, 1<<20)
	for i := 0; i < 64; i++ {
		w.Write(zeros)
	}
	w.Close()
	bomb := buf.Bytes()

	b := NewBudget(1<<20, 0)
	_, err := FlateDecode(bomb, nil, b)
	if !errors.Is(err, ErrLimit) {
		t.Fatalf("expected ErrLimit, got %v", err)
	}
	if !errors.Is(b.Err(), ErrLimit) {
		t.Error("budget should remember the overrun")
	}
	if b.Used() != 0 {
		t.Errorf("rejected output was charged: %d bytes", b.Used())
	}
}

func TestFlateEncodeRoundTrip(t *testing.T) {
	in := bytes.Repeat([]byte("BT /F1 12 Tf (redacted) Tj ET\n"), 20)
	enc := deflate(t, in)
	if len(enc) >= len(in) {
		t.Errorf("expected compression, got %d >= %d bytes", len(enc), len(in))
	}
	out, err := FlateDecode(enc, nil, nil)
	if err != nil {
		t.Fatalf("FlateDecode failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("round trip changed the data")
	}
}

func TestPaethPredictor(t *testing.T) {
	tests := []struct {
		a, b, c byte
		want    byte
	}{
		{10, 20, 15, 15},
		{20, 10, 15, 15},
		{15, 20, 10, 20},
		{0, 0, 0, 0},
		{10, 10, 10, 10},
		{0, 10, 0, 10},
	}
	for _, tt := range tests {
		if got := paethPredictor(tt.a, tt.b, tt.c); got != tt.want {
			t.Errorf("paethPredictor(%d, %d, %d) = %d, want %d", tt.a, tt.b, tt.c, got, tt.want)
		}
	}
}

func TestGetIntParam(t *testing.T) {
	params := Params{"Columns": 100, "Colors": int64(3), "Scale": 2.0, "Name": "x"}
	tests := []struct {
		key  string
		want int
	}{
		{"Columns", 100},
		{"Colors", 3},
		{"Scale", 2},
		{"Name", 42},
		{"Missing", 42},
	}
	for _, tt := range tests {
		if got := getIntParam(params, tt.key, 42); got != tt.want {
			t.Errorf("getIntParam(%s) = %d, want %d", tt.key, got, tt.want)
		}
	}
	if got := getIntParam(nil, "Any", 99); got != 99 {
		t.Errorf("getIntParam(nil) = %d, want 99", got)
	}
}
