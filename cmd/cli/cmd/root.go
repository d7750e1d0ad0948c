package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nimbuside/nimbus/pkg/client"
)

var (
	baseURL      string
	apiKey       string
	providerName string
)

var rootCmd = &cobra.Command{
	Use:   "nimbus",
	Short: "Nimbus CLI - Manage sandboxes from the command line",
	Long: `Nimbus CLI is a command-line tool for the Nimbus sandbox orchestrator.

It provides commands to create and manage sandboxes across providers,
execute commands, work with files, and inspect sessions.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getEnvOrDefault("NIMBUS_API_URL", "http://localhost:8080"), "Nimbus API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("NIMBUS_API_KEY"), "Nimbus API key")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "pin operations to one provider")
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func newClient() *client.Client {
	return client.New(baseURL, apiKey).WithProvider(providerName)
}
