// Package format identifies the container kinds the redaction engine
// supports and sniffs raw bytes to confirm a declared kind.
package format

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the closed set of container kinds. Every value has exactly one
// adapter; All lists them so callers can check exhaustiveness.
type Format int

const (
	// Unknown indicates an unrecognized format.
	Unknown Format = iota
	// PageDocument is a paginated fixed-layout document (PDF).
	PageDocument
	// RasterImage is a bitmap image (PNG, JPEG, GIF, BMP, TIFF).
	RasterImage
	// WordPackage is a word-processing package (DOCX).
	WordPackage
	// SpreadsheetPackage is a spreadsheet package (XLSX).
	SpreadsheetPackage
)

// All returns every supported format.
func All() []Format {
	return []Format{PageDocument, RasterImage, WordPackage, SpreadsheetPackage}
}

// String returns the canonical name of the format.
func (f Format) String() string {
	switch f {
	case PageDocument:
		return "page-document"
	case RasterImage:
		return "raster-image"
	case WordPackage:
		return "word-package"
	case SpreadsheetPackage:
		return "spreadsheet-package"
	default:
		return "unknown"
	}
}

// Extension returns the typical file extension for the format.
func (f Format) Extension() string {
	switch f {
	case PageDocument:
		return ".pdf"
	case RasterImage:
		return ".png"
	case WordPackage:
		return ".docx"
	case SpreadsheetPackage:
		return ".xlsx"
	default:
		return ""
	}
}

// Parse converts a user-supplied type name into a Format. It accepts the
// canonical names and the short names used by the upload API.
func Parse(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "page-document", "pdf":
		return PageDocument, nil
	case "raster-image", "image", "png", "jpg", "jpeg", "gif", "bmp", "tif", "tiff":
		return RasterImage, nil
	case "word-package", "word", "docx":
		return WordPackage, nil
	case "spreadsheet-package", "excel", "xlsx":
		return SpreadsheetPackage, nil
	default:
		return Unknown, fmt.Errorf("unsupported format %q", name)
	}
}

// FromFilename determines the format from a filename extension.
func FromFilename(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return PageDocument
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff":
		return RasterImage
	case ".docx":
		return WordPackage
	case ".xlsx":
		return SpreadsheetPackage
	default:
		return Unknown
	}
}

var (
	magicPDF  = []byte("%PDF")
	magicZIP  = []byte{0x50, 0x4B, 0x03, 0x04}
	magicPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicGIF  = []byte("GIF8")
	magicBMP  = []byte("BM")
	magicTIFF = [][]byte{{'I', 'I', 0x2A, 0x00}, {'M', 'M', 0x00, 0x2A}}
	magicCFB  = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Sniff inspects the content to determine its format. ZIP archives are
// classified by their part names.
func Sniff(data []byte) Format {
	switch {
	case hasPDFHeader(data):
		return PageDocument
	case bytes.HasPrefix(data, magicZIP):
		return sniffZIP(data)
	case IsImage(data):
		return RasterImage
	default:
		return Unknown
	}
}

// IsImage reports whether data starts with a supported image signature.
func IsImage(data []byte) bool {
	if bytes.HasPrefix(data, magicPNG) || bytes.HasPrefix(data, magicJPEG) ||
		bytes.HasPrefix(data, magicGIF) || bytes.HasPrefix(data, magicBMP) {
		return true
	}
	for _, m := range magicTIFF {
		if bytes.HasPrefix(data, m) {
			return true
		}
	}
	return false
}

// IsCompoundFile reports whether data is an OLE compound file. Encrypted
// OOXML packages are stored this way.
func IsCompoundFile(data []byte) bool {
	return bytes.HasPrefix(data, magicCFB)
}

// hasPDFHeader allows a small amount of leading garbage before %PDF, as
// readers commonly do.
func hasPDFHeader(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, magicPDF)
}

func sniffZIP(data []byte) Format {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Unknown
	}

	hasContentTypes := false
	for _, f := range zr.File {
		if f.Name == "[Content_Types].xml" {
			hasContentTypes = true
			break
		}
	}
	if !hasContentTypes {
		return Unknown
	}

	for _, f := range zr.File {
		switch {
		case strings.HasPrefix(f.Name, "word/"):
			return WordPackage
		case strings.HasPrefix(f.Name, "xl/"):
			return SpreadsheetPackage
		}
	}
	return Unknown
}
