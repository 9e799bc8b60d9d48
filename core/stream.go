package core

import (
	"fmt"

	"github.com/tsawler/redactor/internal/filters"
)

// Filters returns the stream's filter chain in application order.
func (s *Stream) Filters() []string {
	switch f := s.Dict.Get("Filter").(type) {
	case Name:
		return []string{string(f)}
	case Array:
		out := make([]string, 0, len(f))
		for _, v := range f {
			if n, ok := v.(Name); ok {
				out = append(out, string(n))
			}
		}
		return out
	}
	return nil
}

// FilterParams returns the DecodeParms dictionary for the filter at index i
// of the chain, or nil.
func (s *Stream) FilterParams(i int) Dict {
	switch p := s.Dict.Get("DecodeParms").(type) {
	case Dict:
		return p
	case Array:
		if i < len(p) {
			d, _ := p[i].(Dict)
			return d
		}
	}
	return nil
}

// Decode decodes the stream data according to the Filter chain in the
// stream dictionary, within the stream's budget. Image codecs (DCT, JPX,
// JBIG2) are passed through untouched; callers that need pixels decode
// those themselves.
func (s *Stream) Decode() ([]byte, error) {
	if f := s.Dict.Get("Filter"); f != nil {
		switch f.(type) {
		case Name, Array:
		default:
			return nil, fmt.Errorf("invalid Filter type: %T", f)
		}
	}
	data := s.Data
	for i, name := range s.Filters() {
		var err error
		data, err = decodeWithFilter(data, name, s.FilterParams(i), s.budget)
		if err != nil {
			return nil, fmt.Errorf("filter %d (%s) failed: %w", i, name, err)
		}
	}
	return data, nil
}

// SetData replaces the stream payload with unfiltered data and drops the
// filter chain.
func (s *Stream) SetData(data []byte) {
	s.Data = data
	s.Dict.Delete("Filter")
	s.Dict.Delete("DecodeParms")
	s.Dict.Delete("DL")
	s.Dict.Set("Length", Int(len(data)))
}

// SetFlateData compresses data with FlateDecode and stores it as the
// stream payload.
func (s *Stream) SetFlateData(data []byte) error {
	enc, err := filters.FlateEncode(data)
	if err != nil {
		return err
	}
	s.SetData(enc)
	s.Dict.Set("Filter", Name("FlateDecode"))
	return nil
}

// IsImageCodec reports whether a filter name is an image codec that Decode
// passes through.
func IsImageCodec(name string) bool {
	switch name {
	case "DCTDecode", "DCT", "JPXDecode", "JBIG2Decode":
		return true
	}
	return false
}

func decodeWithFilter(data []byte, name string, params Dict, b *Budget) ([]byte, error) {
	switch name {
	case "FlateDecode", "Fl":
		return filters.FlateDecode(data, toParams(params), b)
	case "ASCIIHexDecode", "AHx":
		return filters.ASCIIHexDecode(data, b)
	case "ASCII85Decode", "A85":
		return filters.ASCII85Decode(data, b)
	case "CCITTFaxDecode", "CCF":
		return filters.CCITTFaxDecode(data, toParams(params), b)
	case "DCTDecode", "DCT", "JPXDecode", "JBIG2Decode":
		return data, nil
	case "Crypt":
		return nil, fmt.Errorf("encrypted stream")
	default:
		return nil, fmt.Errorf("unsupported filter: %s", name)
	}
}

// toParams converts decode parameters to the primitive map the filters
// package consumes.
func toParams(dict Dict) filters.Params {
	if dict == nil {
		return nil
	}
	params := make(filters.Params, len(dict))
	for k, v := range dict {
		switch obj := v.(type) {
		case Int:
			params[k] = int(obj)
		case Real:
			params[k] = float64(obj)
		case Bool:
			params[k] = bool(obj)
		case String:
			params[k] = string(obj)
		case Name:
			params[k] = string(obj)
		default:
			params[k] = v
		}
	}
	return params
}
