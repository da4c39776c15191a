package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/haasonsaas/sheetflow/internal/llm"
	"github.com/haasonsaas/sheetflow/internal/observability"
	"github.com/haasonsaas/sheetflow/internal/session"
)

// runChat drives the interactive REPL: one line in, one agent turn out, with
// assistant text streamed to the terminal as it arrives.
func runChat(ctx context.Context, configPath, sessionID, userID string, debug bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, configPath, userID, debug)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, err := rt.manager.Open(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	ctx = observability.WithSessionID(ctx, sess.ID)
	if userID != "" {
		ctx = observability.WithUserID(ctx, userID)
	}

	fmt.Printf("Session %s (workspace %s). /help for commands.\n", sess.ID, rt.cfg.Workspace.Root)

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print("> ")
		if !reader.Scan() {
			break
		}
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := handleSlashCommand(ctx, sess, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
			if done {
				return nil
			}
			continue
		}

		streamed := false
		sink := llm.EventSink(func(ev llm.Event) {
			switch ev.Type {
			case llm.EventTextDelta:
				streamed = true
				fmt.Print(ev.Text)
			case llm.EventPipelineProgress:
				fmt.Printf("[%s]\n", ev.ToolName)
			}
		})

		res, err := sess.Chat(ctx, line, sink)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		if !streamed && res.Content != "" {
			fmt.Print(res.Content)
		}
		fmt.Println()
		if res.Exhausted {
			fmt.Println("(stopped at the iteration budget; ask to continue)")
		}
	}
	return reader.Err()
}

// handleSlashCommand dispatches REPL-local commands. Returns true when the
// REPL should exit.
func handleSlashCommand(ctx context.Context, sess *session.Session, line string) (bool, error) {
	switch strings.Fields(line)[0] {
	case "/exit", "/quit":
		return true, nil
	case "/id":
		fmt.Println(sess.ID)
		return false, nil
	case "/rollback":
		if err := sess.Rollback(ctx); err != nil {
			return false, err
		}
		fmt.Println("Conversation discarded.")
		return false, nil
	case "/help":
		fmt.Println("/id        print the session id\n/rollback  discard this conversation\n/exit      leave the chat")
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q", line)
	}
}
