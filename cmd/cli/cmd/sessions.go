package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show the orchestrator's active sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sessions, err := newClient().ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No active sessions.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSANDBOX\tPROVIDER\tLAST ACTIVITY")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				s.ID, s.SandboxID, s.Provider, s.LastActivity.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered providers and their capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		c := newClient()
		names, err := c.ListProviders(ctx)
		if err != nil {
			return fmt.Errorf("failed to list providers: %w", err)
		}

		for _, name := range names {
			caps, err := c.ProviderCapabilities(ctx, name)
			if err != nil {
				fmt.Printf("%s: %v\n", name, err)
				continue
			}
			fmt.Printf("%s:\n", name)
			fmt.Printf("  filesystem: %v, terminal: %v, snapshots: %v, port-forwarding: %v, scaling: %v\n",
				caps.SupportsFileSystem, caps.SupportsTerminal, caps.SupportsSnapshots,
				caps.SupportsPortForwarding, caps.SupportsResourceScaling)
			fmt.Printf("  max sessions: %d, runtimes: %v\n", caps.MaxConcurrentSessions, caps.SupportedRuntimes)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd, providersCmd)
}
