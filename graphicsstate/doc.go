// Package graphicsstate tracks the PDF graphics and text state while a
// content stream is interpreted.
//
// Only the parts of the state that decide where glyphs and images land on
// the page are modeled: the CTM, the q/Q stack and the text state (font,
// spacing, scaling, leading, rise, rendering mode and the two text
// matrices). Color and line attributes do not affect placement and are
// ignored.
//
//	gs := graphicsstate.NewGraphicsState()
//	for _, op := range ops {
//	    if handled, err := gs.Apply(op); handled {
//	        continue
//	    }
//	    // text-showing and XObject operators
//	}
//
// Glyph placement follows the text rendering matrix
// [Tfs*Th 0 0 Tfs 0 Trise] x Tm x CTM. After each glyph the text matrix is
// advanced by ((w0/1000)*Tfs + Tc + Tw) * Th along the baseline.
package graphicsstate
