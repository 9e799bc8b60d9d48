package xlsx

import (
	"fmt"
	"strconv"
	"strings"
)

// Grid limits of a worksheet.
const (
	maxCol = 16383   // XFD
	maxRow = 1048575 // 1048576
)

// area is a rectangle of cells, 0-indexed and inclusive.
type area struct {
	c0, r0, c1, r1 int
}

// contains reports whether the cell at col, row lies inside the area.
func (a area) contains(col, row int) bool {
	return col >= a.c0 && col <= a.c1 && row >= a.r0 && row <= a.r1
}

// grow extends the area by the size of a fill range, covering every copy
// of a shared formula.
func (a area) grow(cols, rows int) area {
	a.c1 = min(a.c1+cols, maxCol)
	a.r1 = min(a.r1+rows, maxRow)
	return a
}

// ParseCellRef parses a cell reference like "A1", "AA100" or "$B$2" into
// column and row indices (0-indexed).
func ParseCellRef(ref string) (col, row int, err error) {
	ref = strings.ReplaceAll(ref, "$", "")
	if ref == "" {
		return 0, 0, fmt.Errorf("empty cell reference")
	}

	// Find where letters end and numbers begin
	i := 0
	for i < len(ref) && isLetter(ref[i]) {
		i++
	}

	if i == 0 {
		return 0, 0, fmt.Errorf("invalid cell reference: no column letters")
	}
	if i == len(ref) {
		return 0, 0, fmt.Errorf("invalid cell reference: no row number")
	}

	colPart := ref[:i]
	rowPart := ref[i:]

	// Parse column (A=0, B=1, ..., Z=25, AA=26, etc.)
	col = ColumnToIndex(colPart)
	if col < 0 || col > maxCol {
		return 0, 0, fmt.Errorf("invalid column: %s", colPart)
	}

	// Parse row (1-indexed in the file, 0-indexed here)
	rowNum, err := strconv.Atoi(rowPart)
	if err != nil || rowNum < 1 || rowNum > maxRow+1 {
		return 0, 0, fmt.Errorf("invalid row: %s", rowPart)
	}
	row = rowNum - 1

	return col, row, nil
}

// ColumnToIndex converts a column letter(s) to a 0-indexed column number.
// A=0, B=1, ..., Z=25, AA=26, AB=27, etc.
func ColumnToIndex(col string) int {
	col = strings.ToUpper(col)
	if col == "" || len(col) > 3 {
		return -1
	}
	result := 0
	for _, c := range col {
		if c < 'A' || c > 'Z' {
			return -1
		}
		result = result*26 + int(c-'A') + 1
	}
	return result - 1
}

// IndexToColumn converts a 0-indexed column number to column letter(s).
// 0=A, 1=B, ..., 25=Z, 26=AA, 27=AB, etc.
func IndexToColumn(index int) string {
	if index < 0 {
		return ""
	}

	result := ""
	index++ // Convert to 1-indexed for calculation
	for index > 0 {
		index-- // Adjust for 0-based modulo
		result = string(rune('A'+index%26)) + result
		index /= 26
	}
	return result
}

// CellRef creates a cell reference string from column and row indices (0-indexed).
func CellRef(col, row int) string {
	return fmt.Sprintf("%s%d", IndexToColumn(col), row+1)
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// ParseRangeRef parses a range reference like "A1:D10" into start and end coordinates.
func ParseRangeRef(ref string) (startCol, startRow, endCol, endRow int, err error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 {
		return 0, 0, 0, 0, fmt.Errorf("invalid range reference: %s", ref)
	}

	startCol, startRow, err = ParseCellRef(parts[0])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid start cell: %w", err)
	}

	endCol, endRow, err = ParseCellRef(parts[1])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid end cell: %w", err)
	}

	return startCol, startRow, endCol, endRow, nil
}

// parseArea reads a reference as written in a formula: a cell, a cell
// range, a whole-column range ("A:C") or a whole-row range ("2:5").
func parseArea(ref string) (area, bool) {
	ref = strings.ReplaceAll(ref, "$", "")
	lo, hi, isRange := strings.Cut(ref, ":")
	if !isRange {
		c, r, err := ParseCellRef(lo)
		if err != nil {
			return area{}, false
		}
		return area{c, r, c, r}, true
	}

	if c0, r0, c1, r1, err := ParseRangeRef(ref); err == nil {
		return normalize(area{c0, r0, c1, r1}), true
	}
	if c0, c1 := ColumnToIndex(lo), ColumnToIndex(hi); c0 >= 0 && c1 >= 0 {
		return normalize(area{c0, 0, c1, maxRow}), true
	}
	r0, err0 := strconv.Atoi(lo)
	r1, err1 := strconv.Atoi(hi)
	if err0 == nil && err1 == nil && r0 >= 1 && r1 >= 1 {
		return normalize(area{0, r0 - 1, maxCol, r1 - 1}), true
	}
	return area{}, false
}

func normalize(a area) area {
	if a.c0 > a.c1 {
		a.c0, a.c1 = a.c1, a.c0
	}
	if a.r0 > a.r1 {
		a.r0, a.r1 = a.r1, a.r0
	}
	return a
}
