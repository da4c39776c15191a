package perception

import (
	"fmt"
	"sort"
)

// pkCandidates are the column names tried, in order, when a primary-key merge
// is needed because block geometry is unavailable.
var pkCandidates = []string{"id", "ID", "Id", "row_id", "key", "主键"}

// IngestRead merges a newly read range into the sheet's cached ranges and
// returns the data-buffer indices of the newly appended rows.
//
// A cached range connects to the incoming range when their bounding
// rectangles overlap or touch with a zero-cell gap in both axes. The
// transitive closure of connected blocks collapses into one block whose rect
// is the union and whose rows merge geometrically by absolute row number,
// incoming rows winning on collision. When geometry is unavailable (a block's
// row count does not match its rect height) the merge falls back to a
// primary-key join, and failing that to concatenation.
func IngestRead(s *SheetData, newRange Rect, newRows [][]string) ([]int, error) {
	if len(newRows) == 0 {
		s.StaleHint = ""
		return nil, nil
	}

	connected, rest := partitionConnected(s.CachedRanges, newRange)

	var merged *CachedRange
	var newPositions []int
	if len(connected) == 0 {
		merged = &CachedRange{Ref: newRange, Rows: cloneRows(newRows)}
		newPositions = make([]int, len(newRows))
		for i := range newRows {
			newPositions[i] = i
		}
	} else {
		merged, newPositions = mergeBlocks(s, connected, newRange, newRows)
	}
	merged.IsCurrentViewport = true

	for _, c := range rest {
		c.IsCurrentViewport = false
	}
	s.CachedRanges = append(rest, merged)

	s.trimCachedRows()
	s.rebuildBuffer()
	s.StaleHint = ""

	// Offset the merged block's positions into data-buffer indices.
	offset := 0
	for _, c := range s.CachedRanges {
		if c == merged {
			break
		}
		offset += len(c.Rows)
	}
	out := make([]int, len(newPositions))
	for i, pos := range newPositions {
		out[i] = offset + pos
	}
	sort.Ints(out)
	return out, nil
}

// partitionConnected splits cached ranges into the transitive closure
// connected to the new range and the remainder.
func partitionConnected(ranges []*CachedRange, newRange Rect) (connected, rest []*CachedRange) {
	pending := append([]*CachedRange(nil), ranges...)
	frontier := []Rect{newRange}

	for len(frontier) > 0 {
		probe := frontier[0]
		frontier = frontier[1:]
		var still []*CachedRange
		for _, c := range pending {
			if c.Ref.Connected(probe) {
				connected = append(connected, c)
				frontier = append(frontier, c.Ref)
			} else {
				still = append(still, c)
			}
		}
		pending = still
	}
	return connected, pending
}

// mergeBlocks collapses the connected blocks plus the incoming read into one
// block. The returned positions index the rows of the merged block that came
// from the incoming read and were not previously cached.
func mergeBlocks(s *SheetData, connected []*CachedRange, newRange Rect, newRows [][]string) (*CachedRange, []int) {
	union := newRange
	geometric := len(newRows) == newRange.Rows()
	for _, c := range connected {
		union = union.Union(c.Ref)
		if len(c.Rows) != c.Ref.Rows() {
			geometric = false
		}
	}

	if geometric {
		byRow := make(map[int][]string)
		for _, c := range connected {
			for i, row := range c.Rows {
				byRow[c.Ref.StartRow+i] = row
			}
		}
		newAbs := make(map[int]bool, len(newRows))
		for i, row := range newRows {
			abs := newRange.StartRow + i
			if _, existed := byRow[abs]; !existed {
				newAbs[abs] = true
			}
			// Incoming wins on collision.
			byRow[abs] = row
		}

		absRows := make([]int, 0, len(byRow))
		for abs := range byRow {
			absRows = append(absRows, abs)
		}
		sort.Ints(absRows)
		rows := make([][]string, 0, len(absRows))
		var positions []int
		for pos, abs := range absRows {
			rows = append(rows, byRow[abs])
			if newAbs[abs] {
				positions = append(positions, pos)
			}
		}
		return &CachedRange{Ref: union, Rows: rows}, positions
	}

	// Geometry unavailable: primary-key join over the candidate columns.
	if keyIdx := keyColumnIndex(s.Columns); keyIdx >= 0 {
		rows, newCount := mergeByKey(connected, newRows, keyIdx)
		return &CachedRange{Ref: union, Rows: rows}, trailingPositions(len(rows), newCount)
	}

	// No shared key: concatenate.
	var rows [][]string
	for _, c := range connected {
		rows = append(rows, c.Rows...)
	}
	rows = append(rows, cloneRows(newRows)...)
	return &CachedRange{Ref: union, Rows: rows}, trailingPositions(len(rows), len(newRows))
}

func trailingPositions(total, n int) []int {
	var out []int
	for i := total - n; i < total; i++ {
		if i >= 0 {
			out = append(out, i)
		}
	}
	return out
}

func keyColumnIndex(columns []string) int {
	for _, candidate := range pkCandidates {
		for i, col := range columns {
			if col == candidate {
				return i
			}
		}
	}
	return -1
}

func mergeByKey(connected []*CachedRange, newRows [][]string, keyIdx int) ([][]string, int) {
	var order []string
	byKey := make(map[string][]string)
	add := func(row []string) bool {
		if keyIdx >= len(row) {
			return false
		}
		key := row[keyIdx]
		if _, ok := byKey[key]; !ok {
			order = append(order, key)
			byKey[key] = row
			return true
		}
		byKey[key] = row
		return false
	}

	for _, c := range connected {
		for _, row := range c.Rows {
			add(row)
		}
	}
	newCount := 0
	for _, row := range newRows {
		if add(row) {
			newCount++
		}
	}

	rows := make([][]string, 0, len(order))
	for _, key := range order {
		rows = append(rows, byKey[key])
	}
	return rows, newCount
}

// trimCachedRows evicts the oldest non-current blocks until the total cached
// rows fit the bound.
func (s *SheetData) trimCachedRows() {
	limit := s.MaxCachedRows
	if limit <= 0 {
		limit = DefaultMaxCachedRows
	}
	for s.cachedRowCount() > limit {
		evicted := false
		for i, c := range s.CachedRanges {
			if !c.IsCurrentViewport {
				s.CachedRanges = append(s.CachedRanges[:i], s.CachedRanges[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

// IngestWrite applies a write's preview matrix to the cache. Cells covered by
// a cached range patch in place; if nothing patched, the cache is marked
// stale for the target range instead.
func IngestWrite(s *SheetData, target Rect, previewAfter [][]string) (patched int) {
	for _, c := range s.CachedRanges {
		if !c.Ref.Intersects(target) {
			continue
		}
		for i, row := range previewAfter {
			absRow := target.StartRow + i
			rowIdx := absRow - c.Ref.StartRow
			if rowIdx < 0 || rowIdx >= len(c.Rows) {
				continue
			}
			for j, value := range row {
				absCol := target.StartCol + j
				colIdx := absCol - c.Ref.StartCol
				if colIdx < 0 || colIdx >= len(c.Rows[rowIdx]) {
					continue
				}
				c.Rows[rowIdx][colIdx] = value
				patched++
			}
		}
	}

	if patched > 0 {
		s.rebuildBuffer()
		s.StaleHint = ""
	} else {
		s.StaleHint = staleHintFor(target)
	}
	return patched
}

// IngestWriteWipe is the phase-2 write semantics: the whole cache is dropped
// and the stale hint set unconditionally.
func IngestWriteWipe(s *SheetData, target Rect) {
	s.CachedRanges = nil
	s.DataBuffer = nil
	s.UnfilteredBuffer = nil
	s.Filter = nil
	s.StaleHint = staleHintFor(target)
}

func staleHintFor(target Rect) string {
	return fmt.Sprintf("%s modified; dependent formula values may have changed", target.Ref())
}

// IngestFilter snapshots the unfiltered buffer on first filter, replaces the
// visible data with the filtered rows, and collapses the cache to a single
// current-viewport block.
func IngestFilter(s *SheetData, filter FilterState, filteredRows [][]string) {
	if s.UnfilteredBuffer == nil {
		s.UnfilteredBuffer = cloneRows(s.DataBuffer)
	}
	f := filter
	s.Filter = &f

	ref := s.Viewport.Range
	if ref == (Rect{}) {
		ref = Rect{StartRow: 1, StartCol: 1, EndRow: max(1, len(filteredRows)), EndCol: 1}
	}
	s.CachedRanges = []*CachedRange{{
		Ref:               ref,
		Rows:              cloneRows(filteredRows),
		IsCurrentViewport: true,
	}}
	s.rebuildBuffer()
}

// ClearFilter restores the unfiltered buffer snapshot. Returns false when no
// filter was applied.
func ClearFilter(s *SheetData) bool {
	if s.UnfilteredBuffer == nil {
		return false
	}
	s.DataBuffer = s.UnfilteredBuffer
	s.UnfilteredBuffer = nil
	s.Filter = nil
	s.CachedRanges = []*CachedRange{{
		Ref:               s.Viewport.Range,
		Rows:              cloneRows(s.DataBuffer),
		IsCurrentViewport: true,
	}}
	return true
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
