package store

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/sheetflow/internal/db"
)

// VectorStore persists embedding vectors. It operates in one of two modes:
// DB-backed (one blob column per row) or file-backed (JSONL metadata plus a
// packed little-endian float32 matrix in a companion binary file). Both
// preserve bit-exact float32 round-trips.
type VectorStore struct {
	db *db.DB

	// file mode
	metaPath   string
	matrixPath string

	mu      sync.Mutex
	records []VectorRecord
	loaded  bool

	// cachedMatrix is the flattened row-major matrix, rebuilt lazily when the
	// record count changes.
	cachedMatrix []float32
	cachedCount  int
}

// NewVectorStore creates a DB-backed vector store.
func NewVectorStore(d *db.DB) *VectorStore {
	return &VectorStore{db: d}
}

// NewFileVectorStore creates a file-backed vector store rooted at metaPath
// (a JSONL file); the packed matrix lives alongside it with a .vec suffix.
func NewFileVectorStore(metaPath string) *VectorStore {
	return &VectorStore{
		metaPath:   metaPath,
		matrixPath: metaPath + ".vec",
	}
}

func (s *VectorStore) fileBacked() bool {
	return s.metaPath != ""
}

// Add stores one text with its vector, deduplicating by content hash.
// Returns true when a new record was stored.
func (s *VectorStore) Add(ctx context.Context, text string, vector []float32, metadata map[string]string) (bool, error) {
	n, err := s.AddBatch(ctx, []string{text}, [][]float32{vector}, []map[string]string{metadata})
	return n > 0, err
}

// AddBatch stores texts with their vectors, deduplicating by content hash.
// Returns the number of newly stored rows.
func (s *VectorStore) AddBatch(ctx context.Context, texts []string, matrix [][]float32, meta []map[string]string) (int, error) {
	if len(texts) != len(matrix) {
		return 0, fmt.Errorf("texts and matrix length mismatch: %d vs %d", len(texts), len(matrix))
	}

	added := 0
	for i, text := range texts {
		var m map[string]string
		if i < len(meta) {
			m = meta[i]
		}
		ok, err := s.addOne(ctx, text, matrix[i], m)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	if added > 0 && s.fileBacked() {
		if err := s.persist(); err != nil {
			return added, err
		}
	}
	return added, nil
}

func (s *VectorStore) addOne(ctx context.Context, text string, vector []float32, metadata map[string]string) (bool, error) {
	hash := ContentHash("", text)
	metaJSON := "{}"
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return false, fmt.Errorf("failed to encode vector metadata: %w", err)
		}
		metaJSON = string(b)
	}

	if s.fileBacked() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.loadLocked(); err != nil {
			return false, err
		}
		for _, rec := range s.records {
			if rec.ContentHash == hash {
				return false, nil
			}
		}
		s.records = append(s.records, VectorRecord{
			ContentHash: hash,
			Text:        text,
			Metadata:    metaJSON,
			Vector:      append([]float32(nil), vector...),
			Dimensions:  len(vector),
			CreatedAt:   nowUTC(),
		})
		return true, nil
	}

	res, err := s.db.Exec(ctx, `
		INSERT OR IGNORE INTO vector_records (content_hash, text, metadata, vector, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		hash, text, metaJSON, packVector(vector), len(vector), nowUTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert vector record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return affected > 0, nil
}

// All returns every stored record in insertion order.
func (s *VectorStore) All(ctx context.Context) ([]VectorRecord, error) {
	if s.fileBacked() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.loadLocked(); err != nil {
			return nil, err
		}
		out := make([]VectorRecord, len(s.records))
		copy(out, s.records)
		return out, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, content_hash, text, metadata, vector, dimensions, created_at
		FROM vector_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector records: %w", err)
	}
	defer rows.Close()

	var out []VectorRecord
	for rows.Next() {
		var rec VectorRecord
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.ContentHash, &rec.Text, &rec.Metadata,
			&blob, &rec.Dimensions, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vector record: %w", err)
		}
		rec.Vector = unpackVector(blob)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vector records: %w", err)
	}
	return out, nil
}

// Matrix returns the flattened row-major float32 matrix of all stored
// vectors plus the record list it corresponds to. The matrix is cached and
// rebuilt only when the record count changes.
func (s *VectorStore) Matrix(ctx context.Context) ([]float32, []VectorRecord, error) {
	records, err := s.All(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cachedMatrix != nil && s.cachedCount == len(records) {
		return s.cachedMatrix, records, nil
	}

	var matrix []float32
	for _, rec := range records {
		matrix = append(matrix, rec.Vector...)
	}
	s.cachedMatrix = matrix
	s.cachedCount = len(records)
	return matrix, records, nil
}

// Count returns the number of stored vectors.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	if s.fileBacked() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.loadLocked(); err != nil {
			return 0, err
		}
		return len(s.records), nil
	}
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM vector_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vector records: %w", err)
	}
	return count, nil
}

// Clear removes all stored vectors.
func (s *VectorStore) Clear(ctx context.Context) error {
	if s.fileBacked() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.records = nil
		s.loaded = true
		s.cachedMatrix = nil
		s.cachedCount = 0
		return s.persistLocked()
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM vector_records`); err != nil {
		return fmt.Errorf("failed to clear vector records: %w", err)
	}
	s.mu.Lock()
	s.cachedMatrix = nil
	s.cachedCount = 0
	s.mu.Unlock()
	return nil
}

// persist writes the JSONL metadata and packed matrix files atomically
// (write to temp, fsync, rename) so a crash never leaves a torn store.
func (s *VectorStore) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// vectorTimeLayout is the timestamp format in the JSONL sidecar.
const vectorTimeLayout = "2006-01-02T15:04:05.000000Z"

type vectorMetaLine struct {
	ContentHash string `json:"content_hash"`
	Text        string `json:"text"`
	Metadata    string `json:"metadata"`
	Dimensions  int    `json:"dimensions"`
	CreatedAt   string `json:"created_at"`
}

func (s *VectorStore) persistLocked() error {
	if !s.fileBacked() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.metaPath), 0o755); err != nil {
		return fmt.Errorf("failed to create vector store directory: %w", err)
	}

	var metaBuf []byte
	var matrixBuf []byte
	for _, rec := range s.records {
		line, err := json.Marshal(vectorMetaLine{
			ContentHash: rec.ContentHash,
			Text:        rec.Text,
			Metadata:    rec.Metadata,
			Dimensions:  rec.Dimensions,
			CreatedAt:   rec.CreatedAt.Format(vectorTimeLayout),
		})
		if err != nil {
			return fmt.Errorf("failed to encode vector metadata line: %w", err)
		}
		metaBuf = append(metaBuf, line...)
		metaBuf = append(metaBuf, '\n')
		matrixBuf = append(matrixBuf, packVector(rec.Vector)...)
	}

	if err := atomicWrite(s.metaPath, metaBuf); err != nil {
		return err
	}
	return atomicWrite(s.matrixPath, matrixBuf)
}

func (s *VectorStore) loadLocked() error {
	if !s.fileBacked() || s.loaded {
		return nil
	}
	s.loaded = true

	metaFile, err := os.Open(s.metaPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open vector metadata: %w", err)
	}
	defer metaFile.Close()

	matrixData, err := os.ReadFile(s.matrixPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read vector matrix: %w", err)
	}

	offset := 0
	scanner := bufio.NewScanner(metaFile)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		var line vectorMetaLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return fmt.Errorf("failed to decode vector metadata line: %w", err)
		}
		byteLen := line.Dimensions * 4
		if offset+byteLen > len(matrixData) {
			return fmt.Errorf("vector matrix truncated: need %d bytes at offset %d", byteLen, offset)
		}
		rec := VectorRecord{
			ContentHash: line.ContentHash,
			Text:        line.Text,
			Metadata:    line.Metadata,
			Dimensions:  line.Dimensions,
			Vector:      unpackVector(matrixData[offset : offset+byteLen]),
		}
		if line.CreatedAt != "" {
			created, err := time.Parse(vectorTimeLayout, line.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to parse vector created_at: %w", err)
			}
			rec.CreatedAt = created
		}
		offset += byteLen
		s.records = append(s.records, rec)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read vector metadata: %w", err)
	}
	return nil
}

// packVector encodes a float32 slice as little-endian bytes.
func packVector(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// unpackVector decodes little-endian bytes back into float32s bit-exactly.
func unpackVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// atomicWrite writes data to path via a temp file, fsync, and rename.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
