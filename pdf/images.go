package pdf

import (
	"errors"
	"image"
	"math"

	"github.com/tsawler/redactor/model"
	"github.com/tsawler/redactor/reader"
)

// burnUnder paints rect into the samples of every image placed under it,
// so text recognized from a scan cannot be recovered from the pixels.
func (d *Document) burnUnder(pg *page, rect model.Rect, u model.ExtractedUnit, s model.SensitiveSpan, rep *model.Report) {
	for _, pl := range pg.images {
		if !pl.bounds().Intersects(rect) {
			continue
		}
		loc := u.Location
		loc.Rect = &rect
		if pl.inline {
			rep.Unresolve(u, s, loc, "inline image under invisible text")
			continue
		}
		inv, ok := pl.ctm.Invert()
		if !ok {
			continue
		}
		img, err := d.r.Image(pl.name, pl.stream)
		if err != nil {
			rep.Unresolve(u, s, loc, "image under invisible text is unreadable")
			continue
		}
		px := pixelRect(inv.TransformRect(rect), img.Width, img.Height)
		if err := img.Burn([]image.Rectangle{px}); err != nil {
			reason := "image under invisible text could not be rewritten"
			if errors.Is(err, reader.ErrUnsupportedImage) {
				reason = "image codec under invisible text is not supported"
			}
			rep.Unresolve(u, s, loc, reason)
			continue
		}
		rep.Neutralize(u, s, model.StrategyFill, loc)
	}
}

// pixelRect maps a rectangle in image space (the unit square, y up) to the
// sample grid (row 0 at the top), rounding outwards.
func pixelRect(r model.Rect, w, h int) image.Rectangle {
	clamp := func(v float64) float64 { return math.Max(0, math.Min(1, v)) }
	u0, u1 := clamp(r.X), clamp(r.Right())
	v0, v1 := clamp(r.Y), clamp(r.Top())
	return image.Rect(
		int(math.Floor(u0*float64(w))),
		int(math.Floor((1-v1)*float64(h))),
		int(math.Ceil(u1*float64(w))),
		int(math.Ceil((1-v0)*float64(h))),
	)
}
