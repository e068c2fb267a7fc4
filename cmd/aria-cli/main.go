package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aria-ai/aria/internal/interfaces/cli"
)

const cliVersion = "0.2.0"

func main() {
	var serverURL string
	var agentSlug string

	rootCmd := &cobra.Command{
		Use:   "aria-cli",
		Short: "Interactive terminal chat for a running Aria server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.RunREPL(cli.REPLConfig{
				ServerURL: serverURL,
				AgentSlug: agentSlug,
			})
		},
	}

	defaultURL := os.Getenv("ARIA_SERVER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8000"
	}
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", defaultURL, "server base URL")
	rootCmd.Flags().StringVarP(&agentSlug, "agent", "a", "", "agent slug (default agent when empty)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aria-cli v%s\n", cliVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
