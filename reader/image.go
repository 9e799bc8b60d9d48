package reader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"github.com/tsawler/redactor/core"
)

// ErrUnsupportedImage is returned when an image's samples cannot be
// rewritten, for example JPX or JBIG2 codecs and CMYK JPEGs.
var ErrUnsupportedImage = errors.New("unsupported image encoding")

// jpegQuality is used when a burned JPEG is re-encoded.
const jpegQuality = 90

// PageImage describes an image XObject and how its samples are laid out.
type PageImage struct {
	Name             string // XObject name (e.g., "Im1")
	Width            int
	Height           int
	ColorSpace       string // DeviceGray, DeviceRGB, DeviceCMYK, Indexed, etc.
	Components       int
	BitsPerComponent int
	Filter           string // last filter in the chain, the one that decides the codec
	ImageMask        bool
	Stream           *core.Stream

	decode  []float64
	palette []byte // Indexed lookup table
	base    int    // components of the Indexed base space
}

// Image describes an image XObject stream.
func (r *Reader) Image(name string, stream *core.Stream) (*PageImage, error) {
	dict := stream.Dict

	width, wok := dict.GetInt("Width")
	height, hok := dict.GetInt("Height")
	if !wok || !hok || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("image missing Width or Height")
	}

	img := &PageImage{
		Name:             name,
		Width:            int(width),
		Height:           int(height),
		ColorSpace:       "DeviceGray",
		Components:       1,
		BitsPerComponent: 8,
		Stream:           stream,
	}

	if mask, ok := dict.GetBool("ImageMask"); ok && bool(mask) {
		img.ImageMask = true
		img.BitsPerComponent = 1
	}
	if bpc, ok := dict.GetInt("BitsPerComponent"); ok {
		img.BitsPerComponent = int(bpc)
	}
	if csObj := dict.Get("ColorSpace"); csObj != nil && !img.ImageMask {
		r.parseColorSpace(img, csObj)
	}
	if filters := stream.Filters(); len(filters) > 0 {
		img.Filter = filters[len(filters)-1]
	}
	if arr, ok := dict.GetArray("Decode"); ok {
		for _, v := range arr {
			f, _ := core.Number(v)
			img.decode = append(img.decode, f)
		}
	}
	return img, nil
}

// parseColorSpace records the color space name and component count.
func (r *Reader) parseColorSpace(img *PageImage, obj core.Object) {
	resolved, err := r.Resolve(obj)
	if err != nil {
		return
	}

	switch v := resolved.(type) {
	case core.Name:
		img.ColorSpace = string(v)
		img.Components = componentsOf(string(v))
	case core.Array:
		if len(v) == 0 {
			return
		}
		name, ok := v[0].(core.Name)
		if !ok {
			return
		}
		img.ColorSpace = string(name)
		switch name {
		case "Indexed", "I":
			img.ColorSpace = "Indexed"
			img.Components = 1
			if len(v) > 3 {
				base := &PageImage{Components: 1}
				r.parseColorSpace(base, v[1])
				img.base = base.Components
				img.palette = r.lookupTable(v[3])
			}
		case "ICCBased":
			img.Components = 3
			if len(v) > 1 {
				if s, ok := r.mustResolve(v[1]).(*core.Stream); ok {
					if n, ok := s.Dict.GetInt("N"); ok {
						img.Components = int(n)
					}
				}
			}
		case "DeviceN":
			img.Components = 1
			if len(v) > 1 {
				if names, ok := r.mustResolve(v[1]).(core.Array); ok && len(names) > 0 {
					img.Components = len(names)
				}
			}
		default:
			img.Components = componentsOf(string(name))
		}
	}
}

func (r *Reader) mustResolve(obj core.Object) core.Object {
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil
	}
	return resolved
}

func (r *Reader) lookupTable(obj core.Object) []byte {
	switch v := r.mustResolve(obj).(type) {
	case core.String:
		return []byte(v)
	case *core.Stream:
		data, err := v.Decode()
		if err == nil {
			return data
		}
	}
	return nil
}

func componentsOf(space string) int {
	switch space {
	case "DeviceRGB", "RGB", "CalRGB", "Lab":
		return 3
	case "DeviceCMYK", "CMYK":
		return 4
	}
	return 1
}

// Burn paints every rectangle (in image pixel coordinates, row 0 at the
// top) with the darkest value the image can express and rewrites the
// stream. JPEGs are re-encoded as JPEG; every other supported encoding is
// rewritten as raw samples compressed with FlateDecode, so nothing of the
// original coding survives.
func (img *PageImage) Burn(rects []image.Rectangle) error {
	bounds := image.Rect(0, 0, img.Width, img.Height)
	var clipped []image.Rectangle
	for _, rc := range rects {
		if rc = rc.Intersect(bounds); !rc.Empty() {
			clipped = append(clipped, rc)
		}
	}
	if len(clipped) == 0 {
		return nil
	}

	switch img.Filter {
	case "JPXDecode", "JBIG2Decode":
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, img.Filter)
	case "DCTDecode", "DCT":
		return img.burnJPEG(clipped)
	}
	return img.burnSamples(clipped)
}

func (img *PageImage) burnJPEG(rects []image.Rectangle) error {
	if len(img.Stream.Filters()) != 1 {
		return fmt.Errorf("%w: chained JPEG filters", ErrUnsupportedImage)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(img.Stream.Data))
	if err != nil {
		return fmt.Errorf("failed to decode JPEG: %w", err)
	}

	var canvas draw.Image
	var black color.Color
	switch src := decoded.(type) {
	case *image.Gray:
		canvas, black = src, color.Gray{Y: 0}
	case *image.CMYK:
		return fmt.Errorf("%w: CMYK JPEG", ErrUnsupportedImage)
	default:
		rgba := image.NewRGBA(decoded.Bounds())
		draw.Draw(rgba, rgba.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
		canvas, black = rgba, color.RGBA{A: 255}
	}
	if img.inverted(0) {
		black = color.White
	}

	origin := canvas.Bounds().Min
	for _, rc := range rects {
		draw.Draw(canvas, rc.Add(origin), image.NewUniform(black), image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	img.Stream.Data = buf.Bytes()
	img.Stream.Dict.Set("Length", core.Int(buf.Len()))
	return nil
}

func (img *PageImage) burnSamples(rects []image.Rectangle) error {
	switch img.BitsPerComponent {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: %d bits per component", ErrUnsupportedImage, img.BitsPerComponent)
	}

	data, err := img.Stream.Decode()
	if err != nil {
		return fmt.Errorf("failed to decode image samples: %w", err)
	}
	bitsPerRow := img.Width * img.Components * img.BitsPerComponent
	rowBytes := (bitsPerRow + 7) / 8
	if len(data) < rowBytes*img.Height {
		return fmt.Errorf("insufficient image data: got %d, expected %d", len(data), rowBytes*img.Height)
	}

	fill := img.darkest()
	for _, rc := range rects {
		for y := rc.Min.Y; y < rc.Max.Y; y++ {
			row := data[y*rowBytes : (y+1)*rowBytes]
			for x := rc.Min.X; x < rc.Max.X; x++ {
				for c := 0; c < img.Components; c++ {
					setSample(row, x*img.Components+c, img.BitsPerComponent, fill[c])
				}
			}
		}
	}

	if err := img.Stream.SetFlateData(data); err != nil {
		return err
	}
	img.Stream.Dict.Delete("DecodeParms")
	return nil
}

// darkest returns the raw sample value per component that renders black.
// For stencil masks it returns the value that paints nothing, so the
// masked shape disappears under the cover rectangle drawn on the page.
func (img *PageImage) darkest() []int {
	maxVal := 1<<img.BitsPerComponent - 1
	fill := make([]int, img.Components)

	switch {
	case img.ImageMask:
		fill[0] = 1
		if img.inverted(0) {
			fill[0] = 0
		}
		return fill
	case img.ColorSpace == "Indexed":
		fill[0] = img.darkestIndex(maxVal)
		return fill
	case img.ColorSpace == "Separation" || img.ColorSpace == "DeviceN":
		// Tint values are colorant amounts; full tint is darkest.
		for c := range fill {
			fill[c] = maxVal
		}
	case img.Components == 4:
		fill[3] = maxVal
	}

	for c := range fill {
		if img.inverted(c) {
			fill[c] = maxVal - fill[c]
		}
	}
	return fill
}

func (img *PageImage) darkestIndex(maxVal int) int {
	if img.base <= 0 || len(img.palette) < img.base {
		return 0
	}
	best, bestLum := 0, 1<<30
	for i := 0; i <= maxVal && (i+1)*img.base <= len(img.palette); i++ {
		entry := img.palette[i*img.base : (i+1)*img.base]
		lum := 0
		switch img.base {
		case 4:
			lum = 255*3 - int(entry[3])*3 - int(entry[0]) - int(entry[1]) - int(entry[2])
		default:
			for _, v := range entry {
				lum += int(v)
			}
		}
		if lum < bestLum {
			best, bestLum = i, lum
		}
	}
	return best
}

func (img *PageImage) inverted(c int) bool {
	return len(img.decode) >= 2*c+2 && img.decode[2*c] > img.decode[2*c+1]
}

// setSample writes a sample value at sample index i of a packed row.
func setSample(row []byte, i, bpc, v int) {
	if bpc == 8 {
		row[i] = byte(v)
		return
	}
	bit := i * bpc
	shift := 8 - bpc - bit%8
	mask := byte((1<<bpc - 1) << shift)
	row[bit/8] = row[bit/8]&^mask | byte(v<<shift)&mask
}
