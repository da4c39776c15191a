package perception

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rect is an inclusive cell rectangle in absolute 1-based coordinates.
type Rect struct {
	StartRow int
	StartCol int
	EndRow   int
	EndCol   int
}

var rangePattern = regexp.MustCompile(`^([A-Za-z]{1,3})(\d+)(?::([A-Za-z]{1,3})(\d+))?$`)

// ParseRange parses an A1-style range reference ("A1", "A1:D25") into a Rect.
func ParseRange(ref string) (Rect, error) {
	m := rangePattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return Rect{}, fmt.Errorf("invalid range reference %q", ref)
	}
	startCol := colNumber(m[1])
	startRow, _ := strconv.Atoi(m[2])
	endCol, endRow := startCol, startRow
	if m[3] != "" {
		endCol = colNumber(m[3])
		endRow, _ = strconv.Atoi(m[4])
	}
	r := Rect{StartRow: startRow, StartCol: startCol, EndRow: endRow, EndCol: endCol}
	if r.StartRow > r.EndRow || r.StartCol > r.EndCol {
		return Rect{}, fmt.Errorf("inverted range reference %q", ref)
	}
	return r, nil
}

// Ref renders the rect back to A1 notation.
func (r Rect) Ref() string {
	if r.StartRow == r.EndRow && r.StartCol == r.EndCol {
		return fmt.Sprintf("%s%d", colName(r.StartCol), r.StartRow)
	}
	return fmt.Sprintf("%s%d:%s%d", colName(r.StartCol), r.StartRow, colName(r.EndCol), r.EndRow)
}

// Rows returns the row count of the rect.
func (r Rect) Rows() int { return r.EndRow - r.StartRow + 1 }

// Cols returns the column count of the rect.
func (r Rect) Cols() int { return r.EndCol - r.StartCol + 1 }

// Contains reports whether other lies entirely inside r.
func (r Rect) Contains(other Rect) bool {
	return other.StartRow >= r.StartRow && other.EndRow <= r.EndRow &&
		other.StartCol >= r.StartCol && other.EndCol <= r.EndCol
}

// Intersects reports whether the rects share at least one cell.
func (r Rect) Intersects(other Rect) bool {
	return r.StartRow <= other.EndRow && other.StartRow <= r.EndRow &&
		r.StartCol <= other.EndCol && other.StartCol <= r.EndCol
}

// Connected reports whether the rects overlap or are adjacent with a
// zero-cell gap in both rows and cols, the merge condition for cached ranges.
func (r Rect) Connected(other Rect) bool {
	rowGap := gap(r.StartRow, r.EndRow, other.StartRow, other.EndRow)
	colGap := gap(r.StartCol, r.EndCol, other.StartCol, other.EndCol)
	return rowGap <= 0 && colGap <= 0
}

// Union returns the bounding rect of both.
func (r Rect) Union(other Rect) Rect {
	return Rect{
		StartRow: min(r.StartRow, other.StartRow),
		StartCol: min(r.StartCol, other.StartCol),
		EndRow:   max(r.EndRow, other.EndRow),
		EndCol:   max(r.EndCol, other.EndCol),
	}
}

// gap returns the number of cells strictly between two 1-D intervals;
// negative or zero means overlap or touching.
func gap(aStart, aEnd, bStart, bEnd int) int {
	if aEnd < bStart {
		return bStart - aEnd - 1
	}
	if bEnd < aStart {
		return aStart - bEnd - 1
	}
	return -1
}

// colNumber converts a column label ("A", "AB") to a 1-based number.
func colNumber(label string) int {
	n := 0
	for _, c := range strings.ToUpper(label) {
		n = n*26 + int(c-'A') + 1
	}
	return n
}

// colName converts a 1-based column number to its label.
func colName(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
