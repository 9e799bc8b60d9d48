package graphicsstate

import (
	"fmt"

	"github.com/tsawler/redactor/contentstream"
	"github.com/tsawler/redactor/core"
	"github.com/tsawler/redactor/model"
)

// Text rendering mode that paints nothing. Text drawn this way is still
// selectable and searchable, typically an OCR layer over a scan.
const RenderInvisible = 3

// GraphicsState represents the PDF graphics state
type GraphicsState struct {
	// Current Transformation Matrix
	CTM model.Matrix

	// Text state
	Text TextState

	// Graphics state stack (for q/Q operators)
	stack []saved
}

type saved struct {
	ctm  model.Matrix
	text TextState
}

// TextState represents text-specific state
type TextState struct {
	FontName string
	FontSize float64

	CharSpacing       float64
	WordSpacing       float64
	HorizontalScaling float64 // percent
	Leading           float64
	RenderingMode     int
	Rise              float64

	TextMatrix     model.Matrix
	TextLineMatrix model.Matrix
}

// NewGraphicsState creates a new graphics state with default values
func NewGraphicsState() *GraphicsState {
	return NewGraphicsStateWithCTM(model.Identity())
}

// NewGraphicsStateWithCTM starts from a given CTM, as when interpreting a
// form XObject inside a page.
func NewGraphicsStateWithCTM(ctm model.Matrix) *GraphicsState {
	return &GraphicsState{
		CTM: ctm,
		Text: TextState{
			FontSize:          12.0,
			HorizontalScaling: 100.0,
			TextMatrix:        model.Identity(),
			TextLineMatrix:    model.Identity(),
		},
	}
}

// Depth returns the number of saved states.
func (gs *GraphicsState) Depth() int {
	return len(gs.stack)
}

// Save pushes the current graphics state onto the stack (q operator)
func (gs *GraphicsState) Save() {
	gs.stack = append(gs.stack, saved{ctm: gs.CTM, text: gs.Text})
}

// Restore pops a graphics state from the stack (Q operator)
func (gs *GraphicsState) Restore() error {
	if len(gs.stack) == 0 {
		return fmt.Errorf("graphics state stack underflow")
	}
	top := gs.stack[len(gs.stack)-1]
	gs.stack = gs.stack[:len(gs.stack)-1]
	gs.CTM = top.ctm
	gs.Text = top.text
	return nil
}

// Transform concatenates m onto the CTM (cm operator).
func (gs *GraphicsState) Transform(m model.Matrix) {
	gs.CTM = m.Multiply(gs.CTM)
}

// BeginText resets the text matrices (BT operator)
func (gs *GraphicsState) BeginText() {
	gs.Text.TextMatrix = model.Identity()
	gs.Text.TextLineMatrix = model.Identity()
}

// SetTextMatrix sets the text matrix (Tm operator)
func (gs *GraphicsState) SetTextMatrix(m model.Matrix) {
	gs.Text.TextMatrix = m
	gs.Text.TextLineMatrix = m
}

// TranslateText starts a new line offset from the current one (Td operator).
func (gs *GraphicsState) TranslateText(tx, ty float64) {
	gs.Text.TextLineMatrix = model.Translate(tx, ty).Multiply(gs.Text.TextLineMatrix)
	gs.Text.TextMatrix = gs.Text.TextLineMatrix
}

// NextLine moves to next line (T* operator)
func (gs *GraphicsState) NextLine() {
	gs.TranslateText(0, -gs.Text.Leading)
}

// Scale returns the horizontal scaling as a factor.
func (gs *GraphicsState) Scale() float64 {
	return gs.Text.HorizontalScaling / 100
}

// RenderingMatrix returns the text rendering matrix
// [Tfs*Th 0 0 Tfs 0 Trise] x Tm x CTM, which maps glyph space (scaled by
// 1/1000) to device space.
func (gs *GraphicsState) RenderingMatrix() model.Matrix {
	t := gs.Text
	params := model.Matrix{t.FontSize * gs.Scale(), 0, 0, t.FontSize, 0, t.Rise}
	return params.Multiply(t.TextMatrix).Multiply(gs.CTM)
}

// GlyphAdvance returns the horizontal displacement in text space of a
// glyph with width w0 (glyph units / 1000). Word spacing applies to the
// single-byte code 32 only.
func (gs *GraphicsState) GlyphAdvance(w0 float64, isSpace bool) float64 {
	t := gs.Text
	tx := w0/1000*t.FontSize + t.CharSpacing
	if isSpace {
		tx += t.WordSpacing
	}
	return tx * gs.Scale()
}

// KernAdvance returns the displacement for a TJ number n.
func (gs *GraphicsState) KernAdvance(n float64) float64 {
	return -n / 1000 * gs.Text.FontSize * gs.Scale()
}

// Advance moves the text matrix along the baseline by tx text-space units.
func (gs *GraphicsState) Advance(tx float64) {
	gs.Text.TextMatrix = model.Translate(tx, 0).Multiply(gs.Text.TextMatrix)
}

// GlyphBox returns the device-space box of a glyph of width w0 at the
// current text position. The box spans from the descender (-0.2 em) to the
// ascender (1 em).
func (gs *GraphicsState) GlyphBox(w0 float64) model.Rect {
	trm := gs.RenderingMatrix()
	w := w0 / 1000
	if w <= 0 {
		w = 0.001
	}
	return trm.TransformRect(model.Rect{X: 0, Y: -0.2, Width: w, Height: 1.2})
}

// Apply updates the state for a graphics-state or text-state operator and
// reports whether the operator was one of them. Text-showing, painting and
// XObject operators are left to the caller.
func (gs *GraphicsState) Apply(op contentstream.Operation) (bool, error) {
	switch op.Operator {
	case "q":
		gs.Save()
	case "Q":
		return true, gs.Restore()
	case "cm":
		if n, ok := op.Numbers(6); ok {
			gs.Transform(model.Matrix{n[0], n[1], n[2], n[3], n[4], n[5]})
		}
	case "BT":
		gs.BeginText()
	case "ET":
	case "Tf":
		if len(op.Operands) >= 2 {
			if name, ok := op.Operands[0].(core.Name); ok {
				gs.Text.FontName = string(name)
			}
			gs.Text.FontSize = op.Number(1)
		}
	case "Tc":
		gs.Text.CharSpacing = op.Number(0)
	case "Tw":
		gs.Text.WordSpacing = op.Number(0)
	case "Tz":
		gs.Text.HorizontalScaling = op.Number(0)
	case "TL":
		gs.Text.Leading = op.Number(0)
	case "Tr":
		gs.Text.RenderingMode = int(op.Number(0))
	case "Ts":
		gs.Text.Rise = op.Number(0)
	case "Tm":
		if n, ok := op.Numbers(6); ok {
			gs.SetTextMatrix(model.Matrix{n[0], n[1], n[2], n[3], n[4], n[5]})
		}
	case "Td":
		gs.TranslateText(op.Number(0), op.Number(1))
	case "TD":
		gs.Text.Leading = -op.Number(1)
		gs.TranslateText(op.Number(0), op.Number(1))
	case "T*":
		gs.NextLine()
	default:
		return false, nil
	}
	return true, nil
}

// BeforeShow applies the implicit state changes of the ' and " operators,
// which move to the next line (and for " set spacing) before showing text.
func (gs *GraphicsState) BeforeShow(op contentstream.Operation) {
	switch op.Operator {
	case "'":
		gs.NextLine()
	case "\"":
		if len(op.Operands) >= 3 {
			gs.Text.WordSpacing = op.Number(0)
			gs.Text.CharSpacing = op.Number(1)
		}
		gs.NextLine()
	}
}
