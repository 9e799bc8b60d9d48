package reader

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/tsawler/redactor/core"
)

func testReader(t *testing.T) *Reader {
	t.Helper()
	r, err := NewReader(twoPagePDF(t))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func imageStream(dict core.Dict, data []byte) *core.Stream {
	dict["Type"] = core.Name("XObject")
	dict["Subtype"] = core.Name("Image")
	return &core.Stream{Dict: dict, Data: data}
}

func burnAndDecode(t *testing.T, r *Reader, s *core.Stream, rects ...image.Rectangle) []byte {
	t.Helper()
	img, err := r.Image("Im1", s)
	if err != nil {
		t.Fatalf("Image failed: %v", err)
	}
	if err := img.Burn(rects); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	out, err := s.Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return out
}

func TestBurnSamples(t *testing.T) {
	r := testReader(t)

	tests := []struct {
		name string
		dict core.Dict
		data []byte
		rect image.Rectangle
		want []byte
	}{
		{
			name: "gray 8 bit",
			dict: core.Dict{"Width": core.Int(4), "Height": core.Int(2), "BitsPerComponent": core.Int(8), "ColorSpace": core.Name("DeviceGray")},
			data: []byte{200, 200, 200, 200, 200, 200, 200, 200},
			rect: image.Rect(1, 0, 3, 1),
			want: []byte{200, 0, 0, 200, 200, 200, 200, 200},
		},
		{
			name: "rgb",
			dict: core.Dict{"Width": core.Int(2), "Height": core.Int(1), "BitsPerComponent": core.Int(8), "ColorSpace": core.Name("DeviceRGB")},
			data: []byte{9, 9, 9, 9, 9, 9},
			rect: image.Rect(1, 0, 2, 1),
			want: []byte{9, 9, 9, 0, 0, 0},
		},
		{
			name: "cmyk",
			dict: core.Dict{"Width": core.Int(1), "Height": core.Int(1), "BitsPerComponent": core.Int(8), "ColorSpace": core.Name("DeviceCMYK")},
			data: []byte{1, 2, 3, 4},
			rect: image.Rect(0, 0, 1, 1),
			want: []byte{0, 0, 0, 255},
		},
		{
			name: "inverted bilevel",
			dict: core.Dict{"Width": core.Int(8), "Height": core.Int(1), "BitsPerComponent": core.Int(1), "Decode": core.Array{core.Int(1), core.Int(0)}},
			data: []byte{0x00},
			rect: image.Rect(0, 0, 4, 1),
			want: []byte{0xF0},
		},
		{
			name: "indexed picks darkest entry",
			dict: core.Dict{"Width": core.Int(2), "Height": core.Int(1), "BitsPerComponent": core.Int(8),
				"ColorSpace": core.Array{core.Name("Indexed"), core.Name("DeviceRGB"), core.Int(1), core.String("\xff\xff\xff\x10\x10\x10")}},
			data: []byte{0, 0},
			rect: image.Rect(0, 0, 1, 1),
			want: []byte{1, 0},
		},
		{
			name: "rect clipped to image",
			dict: core.Dict{"Width": core.Int(2), "Height": core.Int(2), "BitsPerComponent": core.Int(8)},
			data: []byte{5, 5, 5, 5},
			rect: image.Rect(1, 1, 10, 10),
			want: []byte{5, 5, 5, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := imageStream(tt.dict, append([]byte{}, tt.data...))
			got := burnAndDecode(t, r, s, tt.rect)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("samples = %v, want %v", got, tt.want)
			}
			if f, _ := s.Dict.GetName("Filter"); f != "FlateDecode" {
				t.Errorf("Filter = %q, want FlateDecode", f)
			}
		})
	}
}

func TestBurnFlateSamples(t *testing.T) {
	r := testReader(t)
	s := imageStream(core.Dict{"Width": core.Int(2), "Height": core.Int(1), "BitsPerComponent": core.Int(8)}, nil)
	if err := s.SetFlateData([]byte{50, 60}); err != nil {
		t.Fatal(err)
	}
	got := burnAndDecode(t, r, s, image.Rect(0, 0, 1, 1))
	if !bytes.Equal(got, []byte{0, 60}) {
		t.Errorf("samples = %v", got)
	}
	if s.Dict.Has("DecodeParms") {
		t.Error("DecodeParms should be dropped")
	}
}

func TestBurnJPEG(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}
	s := imageStream(core.Dict{"Width": core.Int(16), "Height": core.Int(16), "BitsPerComponent": core.Int(8),
		"ColorSpace": core.Name("DeviceGray"), "Filter": core.Name("DCTDecode")}, buf.Bytes())

	img, err := testReader(t).Image("Im1", s)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Burn([]image.Rectangle{image.Rect(0, 0, 8, 8)}); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if f, _ := s.Dict.GetName("Filter"); f != "DCTDecode" {
		t.Errorf("Filter = %q", f)
	}

	out, err := jpeg.Decode(bytes.NewReader(s.Data))
	if err != nil {
		t.Fatalf("burned stream is not a JPEG: %v", err)
	}
	dark := color.GrayModel.Convert(out.At(2, 2)).(color.Gray)
	light := color.GrayModel.Convert(out.At(13, 13)).(color.Gray)
	if dark.Y > 40 || light.Y < 200 {
		t.Errorf("dark=%d light=%d", dark.Y, light.Y)
	}
}

func TestBurnUnsupportedCodec(t *testing.T) {
	s := imageStream(core.Dict{"Width": core.Int(4), "Height": core.Int(4), "Filter": core.Name("JPXDecode")}, []byte("jp2"))
	img, err := testReader(t).Image("Im1", s)
	if err != nil {
		t.Fatal(err)
	}
	if err := img.Burn([]image.Rectangle{image.Rect(0, 0, 1, 1)}); !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("err = %v, want ErrUnsupportedImage", err)
	}
	// Nothing to burn means nothing to fail on.
	if err := img.Burn([]image.Rectangle{image.Rect(10, 10, 12, 12)}); err != nil {
		t.Errorf("out of bounds burn = %v", err)
	}
}

func TestImageMaskClearsStencil(t *testing.T) {
	s := imageStream(core.Dict{"Width": core.Int(8), "Height": core.Int(1), "ImageMask": core.Bool(true)}, []byte{0x00})
	got := burnAndDecode(t, testReader(t), s, image.Rect(0, 0, 8, 1))
	if got[0] != 0xFF {
		t.Errorf("mask byte = %#x, want 0xff", got[0])
	}
}

func TestImageRequiresDimensions(t *testing.T) {
	if _, err := testReader(t).Image("Im1", imageStream(core.Dict{}, nil)); err == nil {
		t.Error("expected error for missing Width/Height")
	}
}
