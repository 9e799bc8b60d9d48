package filters

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// Params holds decode parameters from a stream dictionary, such as
// Predictor, Columns, Colors and BitsPerComponent.
type Params map[string]interface{}

// FlateDecode inflates zlib data within the budget, then undoes the
// predictor named in params, if any. A stream cut short keeps the bytes
// that inflated cleanly.
func FlateDecode(data []byte, params Params, b *Budget) ([]byte, error) {
	out, err := inflate(data, b)
	if err != nil {
		return nil, err
	}
	pred := readPredictor(params)
	if pred.kind == 1 {
		return out, nil
	}
	out, err = pred.undo(out)
	if err != nil {
		return nil, fmt.Errorf("predictor failed: %w", err)
	}
	return out, nil
}

// FlateEncode compresses data with zlib at the default level. The output
// needs no DecodeParms.
func FlateEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	return buf.Bytes(), nil
}

func inflate(data []byte, b *Budget) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zlib decompression failed: %w", err)
	}
	defer zr.Close()

	out, err := ReadAll(zr, b)
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ErrLimit):
		return nil, err
	case len(out) > 0 && (errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zlib.ErrChecksum)):
		return out, nil
	}
	return nil, fmt.Errorf("zlib decompression failed: %w", err)
}

// predictor describes the prediction applied before compression: 1 is
// none, 2 is TIFF horizontal differencing and 10 to 15 are the PNG row
// filters.
type predictor struct {
	kind    int
	columns int
	colors  int
	bpc     int
}

func readPredictor(p Params) predictor {
	return predictor{
		kind:    getIntParam(p, "Predictor", 1),
		columns: getIntParam(p, "Columns", 1),
		colors:  getIntParam(p, "Colors", 1),
		bpc:     getIntParam(p, "BitsPerComponent", 8),
	}
}

func (p predictor) undo(data []byte) ([]byte, error) {
	if p.bpc != 8 {
		return nil, fmt.Errorf("only 8 bits per component are supported, got %d", p.bpc)
	}
	if p.columns <= 0 || p.colors <= 0 {
		return nil, fmt.Errorf("invalid row geometry: %d columns of %d colors", p.columns, p.colors)
	}
	switch {
	case p.kind == 2:
		return p.tiff(data)
	case p.kind >= 10 && p.kind <= 15:
		return p.png(data)
	}
	return nil, fmt.Errorf("unsupported predictor: %d", p.kind)
}

// tiff adds each sample to the sample one pixel to its left.
func (p predictor) tiff(data []byte) ([]byte, error) {
	row := p.columns * p.colors
	if len(data)%row != 0 {
		return nil, fmt.Errorf("data size %d is not a multiple of row size %d", len(data), row)
	}
	out := bytes.Clone(data)
	for start := 0; start < len(out); start += row {
		for i := start + p.colors; i < start+row; i++ {
			out[i] += out[i-p.colors]
		}
	}
	return out, nil
}

// png undoes per-row PNG filters. Each encoded row starts with its filter
// type.
func (p predictor) png(data []byte) ([]byte, error) {
	row := p.columns * p.colors
	if len(data)%(row+1) != 0 {
		return nil, fmt.Errorf("data size %d is not a multiple of row size %d", len(data), row+1)
	}
	rows := len(data) / (row + 1)
	out := make([]byte, rows*row)
	prev := make([]byte, row)
	bpp := p.colors
	for r := 0; r < rows; r++ {
		filter := data[r*(row+1)]
		src := data[r*(row+1)+1 : (r+1)*(row+1)]
		cur := out[r*row : (r+1)*row]
		for i, x := range src {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch filter {
			case 0:
			case 1:
				x += left
			case 2:
				x += up
			case 3:
				x += byte((int(left) + int(up)) / 2)
			case 4:
				x += paethPredictor(left, up, upLeft)
			default:
				return nil, fmt.Errorf("row %d: unknown PNG filter %d", r, filter)
			}
			cur[i] = x
		}
		prev = cur
	}
	return out, nil
}

// paethPredictor returns whichever of left, up and upper-left is closest
// to left + up - upper-left, preferring them in that order.
func paethPredictor(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func getIntParam(params Params, key string, defaultValue int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
