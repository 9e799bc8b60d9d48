package filters

import (
	"bytes"

	"golang.org/x/image/ccitt"
)

// faxParams are the CCITTFaxDecode parameters the decoder honors.
type faxParams struct {
	k        int
	columns  int
	rows     int
	blackIs1 bool
}

func readFaxParams(p Params) faxParams {
	return faxParams{
		k:        getIntParam(p, "K", 0),
		columns:  getIntParam(p, "Columns", 1728),
		rows:     getIntParam(p, "Rows", 0),
		blackIs1: getBoolParam(p, "BlackIs1", false),
	}
}

// subFormat maps K to a fax group: negative K is Group 4, anything else
// Group 3.
func (fp faxParams) subFormat() ccitt.SubFormat {
	if fp.k < 0 {
		return ccitt.Group4
	}
	return ccitt.Group3
}

// CCITTFaxDecode decodes Group 3 or Group 4 fax data into packed rows of
// one bit per pixel. Without Rows the decoder finds the height itself.
func CCITTFaxDecode(data []byte, params Params, b *Budget) ([]byte, error) {
	fp := readFaxParams(params)
	rows := fp.rows
	if rows <= 0 {
		rows = ccitt.AutoDetectHeight
	}
	r := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, fp.subFormat(), fp.columns, rows,
		&ccitt.Options{Invert: fp.blackIs1})
	return ReadAll(r, b)
}

func getBoolParam(params Params, key string, defaultValue bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return defaultValue
}
