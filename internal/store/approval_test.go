package store

import (
	"context"
	"errors"
	"testing"
)

func TestApprovalLifecycle(t *testing.T) {
	s := NewApprovalStore(newTestDB(t), "")
	ctx := context.Background()

	id, err := s.Create(ctx, &Approval{
		ToolName:  "apply_patch",
		Arguments: `{"file":"sales.xlsx"}`,
		ToolScope: "workspace",
		Undoable:  true,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ExecutionStatus != ApprovalPending {
		t.Errorf("status = %q, want pending", got.ExecutionStatus)
	}
	if !got.Undoable {
		t.Error("undoable flag lost")
	}
	if !got.AppliedAtUTC.IsZero() {
		t.Errorf("pending approval has applied time %v", got.AppliedAtUTC)
	}

	if err := s.MarkSuccess(ctx, id, "3 cells updated", "diff-after", `[{"cell":"B2"}]`); err != nil {
		t.Fatalf("MarkSuccess error: %v", err)
	}
	got, err = s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ExecutionStatus != ApprovalSuccess {
		t.Errorf("status = %q, want success", got.ExecutionStatus)
	}
	if got.ResultPreview != "3 cells updated" {
		t.Errorf("result preview = %q", got.ResultPreview)
	}
	if got.AppliedAtUTC.IsZero() {
		t.Error("terminal approval is missing its applied time")
	}
}

func TestApprovalTerminalIsFinal(t *testing.T) {
	s := NewApprovalStore(newTestDB(t), "")
	ctx := context.Background()

	id, err := s.Create(ctx, &Approval{ToolName: "apply_patch", Arguments: "{}"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.MarkFailed(ctx, id, "io_error", "file locked"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}

	// A second transition must be rejected, not overwrite the artefacts.
	if err := s.MarkSuccess(ctx, id, "late", "", ""); !errors.Is(err, ErrApprovalTerminal) {
		t.Errorf("err = %v, want ErrApprovalTerminal", err)
	}
	got, _ := s.Get(ctx, id)
	if got.ExecutionStatus != ApprovalFailed {
		t.Errorf("status = %q, want failed", got.ExecutionStatus)
	}
	if got.ErrorMessage != "file locked" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
}

func TestApprovalNotFound(t *testing.T) {
	s := NewApprovalStore(newTestDB(t), "")
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrApprovalNotFound) {
		t.Errorf("Get err = %v, want ErrApprovalNotFound", err)
	}
	if err := s.MarkSuccess(ctx, "missing", "", "", ""); !errors.Is(err, ErrApprovalNotFound) {
		t.Errorf("MarkSuccess err = %v, want ErrApprovalNotFound", err)
	}
}

func TestApprovalListPendingScoped(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()
	alice := NewApprovalStore(d, "alice")
	bob := NewApprovalStore(d, "bob")

	if _, err := alice.Create(ctx, &Approval{ToolName: "apply_patch", Arguments: "{}"}); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	doneID, err := alice.Create(ctx, &Approval{ToolName: "apply_patch", Arguments: "{}"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := alice.MarkSuccess(ctx, doneID, "", "", ""); err != nil {
		t.Fatalf("MarkSuccess error: %v", err)
	}

	pending, err := alice.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("alice pending = %d, want 1", len(pending))
	}
	bobPending, err := bob.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("ListPending error: %v", err)
	}
	if len(bobPending) != 0 {
		t.Errorf("bob pending = %d, want 0", len(bobPending))
	}
}
