package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimbuside/nimbus/pkg/types"
)

var sandboxCmd = &cobra.Command{
	Use:     "sandbox",
	Aliases: []string{"sb"},
	Short:   "Manage sandboxes",
	Long:    `Create, list, inspect, and delete sandboxes.`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new sandbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		template, _ := cmd.Flags().GetString("template")
		runtime, _ := cmd.Flags().GetString("runtime")
		metadata, _ := cmd.Flags().GetStringToString("metadata")

		opts := types.CreateOptions{
			Name:     name,
			Template: template,
			Runtime:  runtime,
			Metadata: metadata,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		sb, err := newClient().CreateSandbox(ctx, opts)
		if err != nil {
			return fmt.Errorf("failed to create sandbox: %w", err)
		}

		fmt.Printf("Sandbox created: %s\n", sb.ID)
		fmt.Printf("  Provider: %s\n", sb.Provider)
		fmt.Printf("  Status:   %s\n", sb.Status)
		if sb.Template != "" {
			fmt.Printf("  Template: %s\n", sb.Template)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sandboxes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sandboxes, err := newClient().ListSandboxes(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sandboxes: %w", err)
		}
		if len(sandboxes) == 0 {
			fmt.Println("No sandboxes found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tSTATUS\tCREATED")
		for _, sb := range sandboxes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				sb.ID, sb.Name, sb.Provider, sb.Status, sb.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var getCmd = &cobra.Command{
	Use:   "get <sandbox-id>",
	Short: "Show sandbox details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sb, err := newClient().GetSandbox(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get sandbox: %w", err)
		}

		fmt.Printf("ID:        %s\n", sb.ID)
		fmt.Printf("Name:      %s\n", sb.Name)
		fmt.Printf("Provider:  %s\n", sb.Provider)
		fmt.Printf("Status:    %s\n", sb.Status)
		fmt.Printf("Template:  %s\n", sb.Template)
		fmt.Printf("Created:   %s\n", sb.CreatedAt.Format(time.RFC3339))
		fmt.Printf("Last used: %s\n", sb.LastActivity.Format(time.RFC3339))
		for k, v := range sb.Metadata {
			fmt.Printf("  %s: %s\n", k, v)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <sandbox-id>",
	Short: "Delete a sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := newClient().DeleteSandbox(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to delete sandbox: %w", err)
		}
		fmt.Printf("Sandbox %s deleted\n", args[0])
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <sandbox-id>",
	Short: "Start a stopped sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleAction(args[0], "start")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <sandbox-id>",
	Short: "Stop a running sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleAction(args[0], "stop")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <sandbox-id>",
	Short: "Restart a sandbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lifecycleAction(args[0], "restart")
	},
}

func lifecycleAction(id, action string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	c := newClient()
	var sb *types.Sandbox
	var err error
	switch action {
	case "start":
		sb, err = c.StartSandbox(ctx, id)
	case "stop":
		sb, err = c.StopSandbox(ctx, id)
	case "restart":
		sb, err = c.RestartSandbox(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("failed to %s sandbox: %w", action, err)
	}
	fmt.Printf("Sandbox %s is now %s\n", sb.ID, sb.Status)
	return nil
}

func init() {
	createCmd.Flags().String("name", "", "sandbox name")
	createCmd.Flags().String("template", "", "workspace template (node, python, static)")
	createCmd.Flags().String("runtime", "", "runtime hint")
	createCmd.Flags().StringToString("metadata", nil, "metadata key=value pairs")

	sandboxCmd.AddCommand(createCmd, listCmd, getCmd, deleteCmd, startCmd, stopCmd, restartCmd)
	rootCmd.AddCommand(sandboxCmd)
}
