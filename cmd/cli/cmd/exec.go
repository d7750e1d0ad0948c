package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimbuside/nimbus/pkg/types"
)

var execCmd = &cobra.Command{
	Use:   "exec <sandbox-id> -- <command...>",
	Short: "Execute a command in a sandbox",
	Long: `Execute a shell command inside a sandbox workspace and print its output.

The command's exit code becomes the CLI's exit code information; a failing
command is not an error as long as it ran.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, _ := cmd.Flags().GetString("cwd")
		timeout, _ := cmd.Flags().GetInt("timeout")

		command := strings.Join(args[1:], " ")
		opts := types.ExecOptions{WorkingDir: cwd, Timeout: timeout}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		res, err := newClient().Exec(ctx, args[0], command, opts)
		if err != nil {
			return fmt.Errorf("failed to execute command: %w", err)
		}

		if res.Output != "" {
			fmt.Print(res.Output)
			if !strings.HasSuffix(res.Output, "\n") {
				fmt.Println()
			}
		}
		if !res.Success {
			fmt.Printf("(exit code %d)\n", res.ExitCode)
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <sandbox-id>",
	Short: "Show a sandbox's command history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logs, err := newClient().GetLogs(ctx, args[0], limit)
		if err != nil {
			return fmt.Errorf("failed to fetch logs: %w", err)
		}
		for _, entry := range logs {
			fmt.Printf("%s  [%d]  %s\n", entry.Timestamp.Format(time.RFC3339), entry.ExitCode, entry.Command)
		}
		return nil
	},
}

func init() {
	execCmd.Flags().String("cwd", "", "working directory inside the workspace")
	execCmd.Flags().Int("timeout", 0, "command timeout in seconds")
	logsCmd.Flags().Int("limit", 50, "maximum entries to show")

	rootCmd.AddCommand(execCmd, logsCmd)
}
