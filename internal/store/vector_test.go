package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestVectorAddBatchDedup(t *testing.T) {
	s := NewVectorStore(newTestDB(t))
	ctx := context.Background()

	texts := []string{"alpha", "beta", "alpha"}
	matrix := [][]float32{{1, 0}, {0, 1}, {1, 0}}
	n, err := s.AddBatch(ctx, texts, matrix, nil)
	if err != nil {
		t.Fatalf("AddBatch error: %v", err)
	}
	if n != 2 {
		t.Errorf("new rows = %d, want 2 (duplicate text skipped)", n)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestVectorRoundTripBitExact(t *testing.T) {
	s := NewVectorStore(newTestDB(t))
	ctx := context.Background()

	vector := []float32{
		0.1, -0.25, float32(math.Pi), math.MaxFloat32,
		math.SmallestNonzeroFloat32, -0,
	}
	if _, err := s.Add(ctx, "probe", vector, nil); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	records, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	got := records[0].Vector
	if len(got) != len(vector) {
		t.Fatalf("vector len = %d, want %d", len(got), len(vector))
	}
	for i := range vector {
		if math.Float32bits(got[i]) != math.Float32bits(vector[i]) {
			t.Errorf("bit mismatch at %d: %x vs %x", i,
				math.Float32bits(got[i]), math.Float32bits(vector[i]))
		}
	}
}

func TestFileVectorStorePersistLoad(t *testing.T) {
	dir := t.TempDir()
	metaPath := filepath.Join(dir, "vectors.jsonl")
	ctx := context.Background()

	s := NewFileVectorStore(metaPath)
	matrix := [][]float32{{1.5, -2.25, 3.125}, {0.5, 0.25, -0.125}}
	n, err := s.AddBatch(ctx, []string{"one", "two"}, matrix, []map[string]string{
		{"kind": "memory"}, {"kind": "manifest"},
	})
	if err != nil {
		t.Fatalf("AddBatch error: %v", err)
	}
	if n != 2 {
		t.Fatalf("new rows = %d, want 2", n)
	}

	// A fresh store reading the same files sees an identical matrix.
	reloaded := NewFileVectorStore(metaPath)
	gotMatrix, records, err := reloaded.Matrix(ctx)
	if err != nil {
		t.Fatalf("Matrix error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	want := append(append([]float32{}, matrix[0]...), matrix[1]...)
	if len(gotMatrix) != len(want) {
		t.Fatalf("matrix len = %d, want %d", len(gotMatrix), len(want))
	}
	for i := range want {
		if math.Float32bits(gotMatrix[i]) != math.Float32bits(want[i]) {
			t.Errorf("matrix bit mismatch at %d", i)
		}
	}
	if records[0].Text != "one" || records[1].Text != "two" {
		t.Errorf("record order not preserved: %q, %q", records[0].Text, records[1].Text)
	}

	// Timestamps survive the restart at the sidecar's microsecond precision.
	original, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All error: %v", err)
	}
	for i, rec := range records {
		if rec.CreatedAt.IsZero() {
			t.Fatalf("record %d lost its creation time on reload", i)
		}
		want := original[i].CreatedAt.Truncate(time.Microsecond)
		if !rec.CreatedAt.Equal(want) {
			t.Errorf("record %d created_at = %v, want %v", i, rec.CreatedAt, want)
		}
	}
}

func TestVectorMatrixCacheRebuiltOnGrowth(t *testing.T) {
	s := NewVectorStore(newTestDB(t))
	ctx := context.Background()

	if _, err := s.Add(ctx, "a", []float32{1, 2}, nil); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	m1, _, err := s.Matrix(ctx)
	if err != nil {
		t.Fatalf("Matrix error: %v", err)
	}
	if len(m1) != 2 {
		t.Fatalf("matrix len = %d, want 2", len(m1))
	}

	if _, err := s.Add(ctx, "b", []float32{3, 4}, nil); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	m2, _, err := s.Matrix(ctx)
	if err != nil {
		t.Fatalf("Matrix error: %v", err)
	}
	if len(m2) != 4 {
		t.Errorf("matrix len after growth = %d, want 4", len(m2))
	}
}
