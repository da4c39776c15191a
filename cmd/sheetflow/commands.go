// commands.go contains the cobra command definitions and their flag
// configurations. Each builder creates a command and wires it to its handler.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigPath resolves the config file: flag value, then the
// SHEETFLOW_CONFIG environment variable, then sheetflow.yaml if it exists.
func defaultConfigPath() string {
	if p := os.Getenv("SHEETFLOW_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("sheetflow.yaml"); err == nil {
		return "sheetflow.yaml"
	}
	return ""
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sheetflow",
		Short:         "Spreadsheet agent runtime",
		Long:          "SheetFlow runs an interactive agent over your spreadsheet workspace.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		buildChatCmd(),
		buildSessionsCmd(),
		buildMemoryCmd(),
		buildMigrateCmd(),
	)
	return root
}

func buildChatCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		userID     string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat over the configured workspace.

The agent reads and modifies spreadsheet files through tools; every turn is
persisted, so an interrupted conversation resumes with --session.`,
		Example: `  # New conversation in the current workspace
  sheetflow chat

  # Resume a previous conversation
  sheetflow chat --session 6f1c...

  # Separate state per user
  sheetflow chat --user alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), configPath, sessionID, userID, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to resume")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User scope for persistence")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage persisted sessions",
	}
	cmd.AddCommand(buildSessionsListCmd(), buildSessionsClearCmd())
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		archived   bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd.Context(), configPath, userID, archived, limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User scope for persistence")
	cmd.Flags().BoolVar(&archived, "archived", false, "Include archived sessions")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	return cmd
}

func buildSessionsClearCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)
	cmd := &cobra.Command{
		Use:   "clear <session-id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsClear(cmd.Context(), configPath, userID, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User scope for persistence")
	return cmd
}

func buildMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage the agent's long-term memory",
	}
	cmd.AddCommand(buildMemoryListCmd(), buildMemorySaveCmd())
	return cmd
}

func buildMemoryListCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		category   string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved memory entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemoryList(cmd.Context(), configPath, userID, category, limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User scope for persistence")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category (file_pattern, user_pref, error_solution, general)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to list")
	return cmd
}

func buildMemorySaveCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		category   string
	)
	cmd := &cobra.Command{
		Use:   "save <content>",
		Short: "Save a memory entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemorySave(cmd.Context(), configPath, userID, category, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User scope for persistence")
	cmd.Flags().StringVar(&category, "category", "general", "Entry category")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for a user scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), configPath, userID)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User scope to migrate")
	return cmd
}
