package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/tsawler/redactor/model"
)

const jpegQuality = 92

var opaqueBlack = color.RGBA{A: 0xFF}

// bounds returns the canvas rectangle.
func (d *Document) bounds() image.Rectangle {
	if d.anim != nil {
		return image.Rect(0, 0, d.anim.Config.Width, d.anim.Config.Height).Union(d.img.Bounds())
	}
	return d.img.Bounds()
}

// fill paints r plus the margin opaque black on every frame and returns the
// pixel rectangle painted. It reports false when nothing of r lies on the
// canvas.
func (d *Document) fill(r model.Rect) (model.Rect, bool) {
	m := float64(d.a.margin)
	px := image.Rect(
		int(math.Floor(r.X-m)), int(math.Floor(r.Y-m)),
		int(math.Ceil(r.Right()+m)), int(math.Ceil(r.Top()+m)),
	).Intersect(d.bounds())
	if px.Empty() {
		return model.Rect{}, false
	}

	if d.anim != nil {
		for _, frame := range d.anim.Image {
			fillPaletted(frame, px)
		}
	} else if p, ok := d.img.(*image.Paletted); ok {
		fillPaletted(p, px)
	} else {
		draw.Draw(d.drawable(), px, image.NewUniform(opaqueBlack), image.Point{}, draw.Src)
	}
	d.modified = true
	return model.NewRect(float64(px.Min.X), float64(px.Min.Y), float64(px.Dx()), float64(px.Dy())), true
}

// drawable converts the decoded image to a writable one when its type has
// no Set method, as with JPEG's YCbCr.
func (d *Document) drawable() draw.Image {
	if dst, ok := d.img.(draw.Image); ok {
		return dst
	}
	b := d.img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, d.img, b.Min, draw.Src)
	d.img = rgba
	return rgba
}

// fillPaletted sets r to an opaque near-black palette entry, adding one when
// the palette has room.
func fillPaletted(p *image.Paletted, r image.Rectangle) {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return
	}
	idx := blackIndex(p)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			p.SetColorIndex(x, y, idx)
		}
	}
}

func blackIndex(p *image.Paletted) uint8 {
	best, bestLum := -1, uint32(math.MaxUint32)
	for i, c := range p.Palette {
		r, g, b, a := c.RGBA()
		if a != 0xFFFF {
			continue
		}
		if r+g+b == 0 {
			return uint8(i)
		}
		if lum := r + g + b; lum < bestLum {
			best, bestLum = i, lum
		}
	}
	if len(p.Palette) < 256 {
		// Frames may share a palette backing array; copy before growing.
		p.Palette = append(p.Palette[:len(p.Palette):len(p.Palette)], opaqueBlack)
		return uint8(len(p.Palette) - 1)
	}
	if best >= 0 {
		return uint8(best)
	}
	return uint8(p.Palette.Index(opaqueBlack))
}

// encode writes the pixels in the original format. Recorded EXIF
// orientation is applied to the pixels since the tag itself is dropped.
func (d *Document) encode() ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch d.name {
	case "gif":
		err = gif.EncodeAll(&buf, d.anim)
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, orient(d.img, d.meta.orientation))
	case "jpeg":
		err = jpeg.Encode(&buf, orient(d.img, d.meta.orientation), &jpeg.Options{Quality: jpegQuality})
	case "bmp":
		err = bmp.Encode(&buf, orient(d.img, d.meta.orientation))
	case "tiff":
		err = tiff.Encode(&buf, orient(d.img, d.meta.orientation), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		err = fmt.Errorf("no encoder for %s", d.name)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// orient applies an EXIF orientation (2 to 8) so the output displays the
// same without the tag.
func orient(src image.Image, o int) image.Image {
	if o < 2 || o > 8 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if o >= 5 {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch o {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 clockwise
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 270 clockwise
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
