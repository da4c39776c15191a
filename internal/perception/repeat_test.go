package perception

import (
	"testing"
)

func TestRepeatDetectorFocusedThresholds(t *testing.T) {
	d := NewRepeatDetector(RepeatThresholds{})

	// Focused intents use the base warn=2 / trip=3.
	count, warned, tripped := d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentAggregate)
	if count != 1 || warned || tripped {
		t.Fatalf("first read: count=%d warned=%v tripped=%v", count, warned, tripped)
	}
	_, warned, tripped = d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentAggregate)
	if !warned || tripped {
		t.Fatalf("second read should warn only: warned=%v tripped=%v", warned, tripped)
	}
	_, _, tripped = d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentAggregate)
	if !tripped {
		t.Fatalf("third read should trip")
	}
}

func TestRepeatDetectorRelaxedThresholds(t *testing.T) {
	d := NewRepeatDetector(RepeatThresholds{})

	th := d.Thresholds(IntentGeneral)
	if th.Warn != 3 || th.Trip != 4 {
		t.Fatalf("relaxed thresholds = %+v, want warn=3 trip=4", th)
	}

	for i := 0; i < 3; i++ {
		if _, _, tripped := d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentGeneral); tripped {
			t.Fatalf("read %d tripped before the relaxed threshold", i+1)
		}
	}
	if _, _, tripped := d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentGeneral); !tripped {
		t.Fatalf("fourth general read should trip")
	}
}

func TestRepeatDetectorKeying(t *testing.T) {
	d := NewRepeatDetector(RepeatThresholds{})

	d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentAggregate)
	// Different range, sheet, or intent counts separately.
	if count, _, _ := d.Check("/data/r.xlsx", "Sales", "A1:E40", IntentAggregate); count != 1 {
		t.Errorf("different range count = %d, want 1", count)
	}
	if count, _, _ := d.Check("/data/r.xlsx", "Costs", "A1:E20", IntentAggregate); count != 1 {
		t.Errorf("different sheet count = %d, want 1", count)
	}
	if count, _, _ := d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentValidate); count != 1 {
		t.Errorf("different intent count = %d, want 1", count)
	}
	// Range refs normalise case and whitespace.
	if count, _, _ := d.Check("/data/r.xlsx", "SALES", " a1:e20 ", IntentAggregate); count != 2 {
		t.Errorf("normalised repeat count = %d, want 2", count)
	}
}

func TestRepeatDetectorWriteResetsSheet(t *testing.T) {
	d := NewRepeatDetector(RepeatThresholds{})

	d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentAggregate)
	d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentAggregate)
	d.Check("/data/r.xlsx", "Costs", "A1:B2", IntentAggregate)

	d.RecordWrite("/data/r.xlsx", "Sales")

	// The written sheet's counters reset; other sheets keep theirs.
	if count, _, _ := d.Check("/data/r.xlsx", "Sales", "A1:E20", IntentAggregate); count != 1 {
		t.Errorf("written sheet count = %d, want 1 after reset", count)
	}
	if count, _, _ := d.Check("/data/r.xlsx", "Costs", "A1:B2", IntentAggregate); count != 2 {
		t.Errorf("untouched sheet count = %d, want 2", count)
	}
}
