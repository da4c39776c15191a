// Package workspace scans the user's working directory for spreadsheet files
// and keeps a manifest the agent can inject into its system prompt.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/store"
)

// SheetInfo is per-sheet metadata captured during a scan.
type SheetInfo struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"`
	Cols    int      `json:"cols"`
	Headers []string `json:"headers,omitempty"`
}

// FileInfo is one spreadsheet file in the manifest.
type FileInfo struct {
	Path   string
	Name   string
	Size   int64
	MTime  time.Time
	Sheets []SheetInfo
}

// Manifest is the result of a workspace scan.
type Manifest struct {
	Root     string
	ScanTime time.Time
	Files    []FileInfo
}

// Inspector extracts sheet metadata from a spreadsheet file. Implementations
// may be expensive, so the scanner only calls it for new or modified files.
type Inspector interface {
	InspectSheets(ctx context.Context, path string) ([]SheetInfo, error)
}

// InspectorFunc adapts a function to the Inspector interface.
type InspectorFunc func(ctx context.Context, path string) ([]SheetInfo, error)

func (f InspectorFunc) InspectSheets(ctx context.Context, path string) ([]SheetInfo, error) {
	return f(ctx, path)
}

var spreadsheetExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
	".csv":  true,
}

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// Scanner walks a workspace root and maintains the cached manifest.
type Scanner struct {
	root      string
	inspector Inspector
	files     *store.WorkspaceFileStore
	registry  *store.FileRegistryStore
	logger    *observability.Logger

	manifest *Manifest
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithInspector sets the sheet metadata inspector.
func WithInspector(i Inspector) ScannerOption {
	return func(s *Scanner) { s.inspector = i }
}

// WithStores wires the persistent caches so scans survive restarts.
func WithStores(files *store.WorkspaceFileStore, registry *store.FileRegistryStore) ScannerOption {
	return func(s *Scanner) {
		s.files = files
		s.registry = registry
	}
}

// NewScanner creates a scanner for the given root.
func NewScanner(root string, logger *observability.Logger, opts ...ScannerOption) *Scanner {
	if logger == nil {
		logger = observability.Nop()
	}
	s := &Scanner{root: filepath.Clean(root), logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Manifest returns the last scanned manifest, or nil before the first scan.
func (s *Scanner) Manifest() *Manifest {
	return s.manifest
}

// Scan walks the root and builds a fresh manifest. Hidden entries, temp
// files, and well-known tool directories are skipped. Scanning is
// idempotent: the same tree yields the same manifest apart from ScanTime.
func (s *Scanner) Scan(ctx context.Context) (*Manifest, error) {
	prev := map[string]FileInfo{}
	if s.manifest != nil {
		for _, f := range s.manifest.Files {
			prev[f.Path] = f
		}
	} else if s.files != nil {
		cached, err := s.files.ListByWorkspace(ctx, s.root)
		if err != nil {
			s.logger.Warn(ctx, "workspace cache unavailable, scanning cold", "error", err)
		}
		for _, c := range cached {
			var sheets []SheetInfo
			_ = json.Unmarshal([]byte(c.SheetsJSON), &sheets)
			prev[c.Path] = FileInfo{
				Path:   c.Path,
				Name:   c.Name,
				Size:   c.SizeBytes,
				MTime:  time.Unix(0, c.MTimeNS),
				Sheets: sheets,
			}
		}
	}

	m := &Manifest{Root: s.root, ScanTime: time.Now().UTC()}
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != s.root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			return nil
		}
		if !spreadsheetExts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fi := FileInfo{Path: path, Name: name, Size: info.Size(), MTime: info.ModTime()}
		if old, ok := prev[path]; ok && old.MTime.Equal(fi.MTime) && old.Size == fi.Size {
			fi.Sheets = old.Sheets
		} else {
			fi.Sheets = s.inspect(ctx, path)
		}
		m.Files = append(m.Files, fi)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })

	s.manifest = m
	s.persist(ctx, prev, m)
	return m, nil
}

// Refresh re-stats known files and only re-inspects the ones whose size or
// mtime changed. New and deleted files are picked up as well.
func (s *Scanner) Refresh(ctx context.Context) (*Manifest, error) {
	// The scan itself diffs against the previous manifest, so a refresh is
	// a scan that reuses cached sheet metadata for unchanged files.
	return s.Scan(ctx)
}

func (s *Scanner) inspect(ctx context.Context, path string) []SheetInfo {
	if s.inspector == nil {
		return nil
	}
	sheets, err := s.inspector.InspectSheets(ctx, path)
	if err != nil {
		s.logger.Debug(ctx, "sheet inspection failed", "path", path, "error", err)
		return nil
	}
	return sheets
}

func (s *Scanner) persist(ctx context.Context, prev map[string]FileInfo, m *Manifest) {
	if s.files == nil {
		return
	}
	current := map[string]bool{}
	for _, f := range m.Files {
		current[f.Path] = true
		sheetsJSON, _ := json.Marshal(f.Sheets)
		err := s.files.Upsert(ctx, &store.WorkspaceFile{
			Workspace:  s.root,
			Path:       f.Path,
			Name:       f.Name,
			SizeBytes:  f.Size,
			MTimeNS:    f.MTime.UnixNano(),
			SheetsJSON: string(sheetsJSON),
			ScannedAt:  m.ScanTime,
		})
		if err != nil {
			s.logger.Warn(ctx, "failed to cache workspace file", "path", f.Path, "error", err)
		}
		if s.registry != nil {
			alias := AliasFor(f.Name)
			if err := s.registry.Register(ctx, f.Path, alias, f.Size, f.MTime.UnixNano()); err != nil {
				s.logger.Warn(ctx, "failed to register file alias", "path", f.Path, "error", err)
			}
		}
	}
	for path := range prev {
		if !current[path] {
			if err := s.files.Delete(ctx, s.root, path); err != nil {
				s.logger.Warn(ctx, "failed to drop stale workspace file", "path", path, "error", err)
			}
		}
	}
}

// AliasFor derives a stable short alias from a file name: the base name
// lowercased with spaces collapsed to underscores.
func AliasFor(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(strings.TrimSpace(base))
	return strings.Join(strings.Fields(base), "_")
}

// Summary renders the manifest for system prompt injection. Files are listed
// with their sheet shapes so the model can target reads without probing.
func (m *Manifest) Summary() string {
	if m == nil || len(m.Files) == 0 {
		return "Workspace: no spreadsheet files found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Workspace files (%d):\n", len(m.Files))
	for _, f := range m.Files {
		rel, err := filepath.Rel(m.Root, f.Path)
		if err != nil {
			rel = f.Path
		}
		fmt.Fprintf(&b, "- %s (%s)", rel, humanSize(f.Size))
		if len(f.Sheets) > 0 {
			parts := make([]string, 0, len(f.Sheets))
			for _, sh := range f.Sheets {
				parts = append(parts, fmt.Sprintf("%s %dx%d", sh.Name, sh.Rows, sh.Cols))
			}
			fmt.Fprintf(&b, ": %s", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
