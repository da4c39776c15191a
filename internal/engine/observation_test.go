package engine

import (
	"testing"
)

func TestObservationFromReadCall(t *testing.T) {
	args := `{"file_path":"/data/report.xlsx","sheet_name":"Sales","range":"A1:C2"}`
	result := `{"range":"A1:C2","rows":[["a","b","c"],["1","2","3"]],"columns":["a","b","c"],"total_rows":50,"total_cols":3}`

	obs := observationFrom("read_excel", args, result)
	if obs.File != "/data/report.xlsx" || obs.Sheet != "Sales" || obs.Range != "A1:C2" {
		t.Errorf("identity = %+v", obs)
	}
	if len(obs.Rows) != 2 || obs.TotalRows != 50 || obs.TotalCols != 3 {
		t.Errorf("data = %+v", obs)
	}
	if obs.ResultText != result {
		t.Errorf("raw text not preserved")
	}
}

func TestObservationResultRangeWinsOverArgs(t *testing.T) {
	// Tools may clamp the requested range; the result range is what landed.
	obs := observationFrom("read_excel",
		`{"range":"A1:Z999"}`, `{"range":"A1:C10","rows":[]}`)
	if obs.Range != "A1:C10" {
		t.Errorf("range = %q", obs.Range)
	}
}

func TestObservationFromExplorerCall(t *testing.T) {
	obs := observationFrom("list_directory",
		`{"directory":"/data"}`,
		`{"directory":"/data","entries":["report.xlsx","budget.xlsx"]}`)
	if obs.Directory != "/data" || len(obs.Entries) != 2 {
		t.Errorf("obs = %+v", obs)
	}
}

func TestObservationFromUnparseablePayloads(t *testing.T) {
	obs := observationFrom("run_code", `not json`, "Traceback: boom")
	if obs.Tool != "run_code" || obs.ResultText != "Traceback: boom" {
		t.Errorf("obs = %+v", obs)
	}
	if obs.File != "" || len(obs.Rows) != 0 {
		t.Errorf("garbage parsed into fields: %+v", obs)
	}
}
