package engine

import (
	"encoding/json"

	"github.com/haasonsaas/sheetflow/internal/perception"
)

// toolArgs is the superset of argument fields the spreadsheet tools accept.
type toolArgs struct {
	FilePath  string `json:"file_path"`
	SheetName string `json:"sheet_name"`
	Range     string `json:"range"`
	Directory string `json:"directory"`
	UserHint  string `json:"user_hint"`
}

// toolOutput is the superset of result fields the spreadsheet tools emit.
type toolOutput struct {
	Range        string     `json:"range"`
	Rows         [][]string `json:"rows"`
	Columns      []string   `json:"columns"`
	TotalRows    int        `json:"total_rows"`
	TotalCols    int        `json:"total_cols"`
	PreviewAfter [][]string `json:"preview_after"`
	FilteredRows [][]string `json:"filtered_rows"`
	FilterDesc   string     `json:"filter_desc"`
	StyleSummary string     `json:"style_summary"`
	Summary      string     `json:"summary"`
	Entries      []string   `json:"entries"`
	Directory    string     `json:"directory"`
}

// observationFrom maps a tool call and its JSON result onto the structured
// observation the perception pipeline ingests. Unparseable payloads still
// yield an observation carrying the raw text; the perception layer passes
// those through unhandled.
func observationFrom(tool, arguments, result string) perception.ToolObservation {
	var args toolArgs
	_ = json.Unmarshal([]byte(arguments), &args)
	var out toolOutput
	_ = json.Unmarshal([]byte(result), &out)

	rangeRef := out.Range
	if rangeRef == "" {
		rangeRef = args.Range
	}
	dir := out.Directory
	if dir == "" {
		dir = args.Directory
	}

	return perception.ToolObservation{
		Tool:         tool,
		UserHint:     args.UserHint,
		Directory:    dir,
		Entries:      out.Entries,
		File:         args.FilePath,
		Sheet:        args.SheetName,
		Range:        rangeRef,
		Rows:         out.Rows,
		Columns:      out.Columns,
		TotalRows:    out.TotalRows,
		TotalCols:    out.TotalCols,
		PreviewAfter: out.PreviewAfter,
		FilteredRows: out.FilteredRows,
		FilterDesc:   out.FilterDesc,
		StyleSummary: out.StyleSummary,
		Summary:      out.Summary,
		ResultText:   result,
	}
}
