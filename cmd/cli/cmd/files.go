package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Work with sandbox files",
}

var lsCmd = &cobra.Command{
	Use:   "ls <sandbox-id> [path]",
	Short: "List files in a sandbox workspace",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 1 {
			path = args[1]
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		entries, err := newClient().ListFiles(ctx, args[0], path)
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%s\n", e.Type, e.Size, e.Path)
		}
		return w.Flush()
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <sandbox-id> <path>",
	Short: "Print a file from a sandbox workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		content, err := newClient().ReadFile(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		fmt.Print(content)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <sandbox-id> <local-file> <path>",
	Short: "Upload a local file into a sandbox workspace",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := newClient().WriteFile(ctx, args[0], args[2], string(data)); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		fmt.Printf("Wrote %s (%d bytes)\n", args[2], len(data))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <sandbox-id> <path>",
	Short: "Delete a file from a sandbox workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := newClient().DeleteFile(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[1])
		return nil
	},
}

func init() {
	filesCmd.AddCommand(lsCmd, catCmd, putCmd, rmCmd)
	rootCmd.AddCommand(filesCmd)
}
