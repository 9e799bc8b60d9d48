package font

import (
	"strings"

	"github.com/tsawler/redactor/core"
)

// WidthRange represents a range of CID widths from the W array
type WidthRange struct {
	StartCID int
	EndCID   int
	Width    float64   // For ranges with a single width
	Widths   []float64 // For ranges with individual widths
}

// loadType0 reads the descendant CIDFont of a composite font: its /W
// widths, /DW default width and the code length implied by /Encoding.
func (f *Font) loadType0(dict core.Dict, r Resolver) {
	f.composite = true
	f.defaultWidth = 1000
	f.codeLen = 2

	switch enc := resolve(r, dict.Get("Encoding")).(type) {
	case core.Name:
		f.Encoding = string(enc)
		// UCS-2 and UTF-16 CMaps map codes straight to Unicode.
		f.unicodeCodes = strings.Contains(f.Encoding, "UCS2") || strings.Contains(f.Encoding, "UTF16")
	case *core.Stream:
		if cm, err := ParseToUnicodeCMap(enc); err == nil {
			f.encodingCMap = cm
		}
	}

	kids, _ := resolve(r, dict.Get("DescendantFonts")).(core.Array)
	if len(kids) == 0 {
		return
	}
	desc, _ := resolve(r, kids[0]).(core.Dict)
	if desc == nil {
		return
	}
	if dw, ok := core.Number(resolve(r, desc.Get("DW"))); ok {
		f.defaultWidth = dw
	}
	f.parseWidthArray(desc, r)
}

// parseWidthArray parses the W array for CIDFont widths
// Format: [c [w1 w2 ... wn]] or [cfirst clast w]
func (f *Font) parseWidthArray(desc core.Dict, r Resolver) {
	wArray, ok := resolve(r, desc.Get("W")).(core.Array)
	if !ok {
		return
	}

	for i := 0; i < len(wArray); {
		startCID, _ := core.Number(resolve(r, wArray[i]))
		i++
		if i >= len(wArray) {
			break
		}

		if widthsArray, ok := resolve(r, wArray[i]).(core.Array); ok {
			widths := make([]float64, len(widthsArray))
			for j, w := range widthsArray {
				widths[j], _ = core.Number(resolve(r, w))
			}
			f.cidWidths = append(f.cidWidths, WidthRange{
				StartCID: int(startCID),
				EndCID:   int(startCID) + len(widths) - 1,
				Widths:   widths,
			})
			i++
			continue
		}

		if i+1 >= len(wArray) {
			break
		}
		endCID, _ := core.Number(resolve(r, wArray[i]))
		width, _ := core.Number(resolve(r, wArray[i+1]))
		i += 2
		f.cidWidths = append(f.cidWidths, WidthRange{
			StartCID: int(startCID),
			EndCID:   int(endCID),
			Width:    width,
		})
	}
}

// widthForCID returns the width for a CID from the W array, or the
// default width.
func (f *Font) widthForCID(cid int) float64 {
	for _, wr := range f.cidWidths {
		if cid < wr.StartCID || cid > wr.EndCID {
			continue
		}
		if wr.Widths != nil {
			return wr.Widths[cid-wr.StartCID]
		}
		return wr.Width
	}
	return f.defaultWidth
}
