// Command caredesk runs the support desk server and talks to it over HTTP.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	serverURL string
	token     string
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "caredesk",
		Short: "Customer support desk with human reviewed agent answers",
		Long: `caredesk serves the ticket desk API and doubles as its client.
All client output is JSON (pipe through jq for filtering).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("CAREDESK_SERVER", "http://localhost:3000"), "caredesk server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("CAREDESK_TOKEN"), "bearer token for authenticated servers")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newTicketsCommand())
	rootCmd.AddCommand(newAgentsCommand())
	rootCmd.AddCommand(newDraftCommand())

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
