package perception

import (
	"strings"
)

// RepeatThresholds are the warn/trip counts before a repeated read is
// flagged. Focused intents use the base values; loose intents are relaxed.
type RepeatThresholds struct {
	Warn int
	Trip int
}

// DefaultRepeatThresholds is the base warn/trip pair.
var DefaultRepeatThresholds = RepeatThresholds{Warn: 2, Trip: 3}

type repeatKey struct {
	file   string
	sheet  string
	rng    string
	intent IntentTag
}

// RepeatDetector counts identical reads keyed by (file, sheet, range,
// intent). Writes to a sheet reset its counters.
type RepeatDetector struct {
	base   RepeatThresholds
	counts map[repeatKey]int
}

// NewRepeatDetector creates a detector with the given base thresholds.
func NewRepeatDetector(base RepeatThresholds) *RepeatDetector {
	if base.Warn <= 0 {
		base = DefaultRepeatThresholds
	}
	return &RepeatDetector{base: base, counts: make(map[repeatKey]int)}
}

// RecordRead increments and returns the repeat count for a read.
func (d *RepeatDetector) RecordRead(file, sheet, rangeRef string, intent IntentTag) int {
	key := repeatKey{
		file:   normalizePath(file),
		sheet:  strings.ToLower(sheet),
		rng:    strings.ToUpper(strings.TrimSpace(rangeRef)),
		intent: intent,
	}
	d.counts[key]++
	return d.counts[key]
}

// RecordWrite resets every counter for the written sheet.
func (d *RepeatDetector) RecordWrite(file, sheet string) {
	nf, ns := normalizePath(file), strings.ToLower(sheet)
	for key := range d.counts {
		if key.file == nf && key.sheet == ns {
			delete(d.counts, key)
		}
	}
}

// Thresholds returns the warn/trip thresholds for an intent. Focused intents
// (aggregate, validate, formula) use the base; the rest are relaxed.
func (d *RepeatDetector) Thresholds(intent IntentTag) RepeatThresholds {
	switch intent {
	case IntentAggregate, IntentValidate, IntentFormula:
		return d.base
	}
	warn := max(3, d.base.Warn+1)
	trip := max(warn+1, max(d.base.Trip+1, 4))
	return RepeatThresholds{Warn: warn, Trip: trip}
}

// Check records a read and reports whether it warns or trips.
func (d *RepeatDetector) Check(file, sheet, rangeRef string, intent IntentTag) (count int, warned, tripped bool) {
	count = d.RecordRead(file, sheet, rangeRef, intent)
	t := d.Thresholds(intent)
	return count, count >= t.Warn, count >= t.Trip
}

// Reset clears every counter.
func (d *RepeatDetector) Reset() {
	d.counts = make(map[repeatKey]int)
}
