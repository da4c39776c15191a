package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/haasonsaas/sheetflow/internal/memory"
)

func runSessionsList(ctx context.Context, configPath, userID string, archived bool, limit int) error {
	rt, err := newRuntime(ctx, configPath, userID, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	rows, err := rt.scope.Stores.Sessions.List(ctx, archived, limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, s := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			s.ID, s.Title, s.MessageCount, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runSessionsClear(ctx context.Context, configPath, userID, sessionID string) error {
	rt, err := newRuntime(ctx, configPath, userID, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.scope.Stores.Sessions.Get(ctx, sessionID); err != nil {
		return err
	}
	if err := rt.scope.Stores.Messages.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if err := rt.scope.Stores.Checkpoints.Clear(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	if err := rt.scope.Stores.Sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Printf("Deleted session %s.\n", sessionID)
	return nil
}

func runMemoryList(ctx context.Context, configPath, userID, category string, limit int) error {
	rt, err := newRuntime(ctx, configPath, userID, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	if category != "" {
		category = string(memory.ParseCategory(category))
	}
	rows, err := rt.scope.Stores.Memory.List(ctx, category, limit)
	if err != nil {
		return fmt.Errorf("failed to list memory: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("No memory entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tCREATED\tCONTENT")
	for _, e := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.EntryID, e.Category, e.CreatedAt.Format("2006-01-02"), e.Content)
	}
	return w.Flush()
}

func runMemorySave(ctx context.Context, configPath, userID, category, content string) error {
	rt, err := newRuntime(ctx, configPath, userID, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	entry, err := rt.memory.Save(ctx, memory.ParseCategory(category), content, "cli")
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	fmt.Printf("Saved %s under %s.\n", entry.ID, entry.Category)
	return nil
}

func runMigrate(ctx context.Context, configPath, userID string) error {
	rt, err := newRuntime(ctx, configPath, userID, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	// Acquiring the scope ran the migration; report how it went.
	if rt.scope.ReadOnly {
		return fmt.Errorf("migration failed; scope %q opened read-only", userID)
	}
	fmt.Printf("Schema up to date (%s backend).\n", rt.cfg.Database.Backend)
	return nil
}
