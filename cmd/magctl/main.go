// magctl is the operator CLI for a running magazzino server
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:   "magctl",
	Short: "Operate a magazzino server",
	Long: `magctl talks to a running magazzino server over its HTTP API.

The server address defaults to $MAGCTL_SERVER (or http://localhost:3001) and
the bearer token to $MAGCTL_TOKEN. Obtain a token with 'magctl login'.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("MAGCTL_SERVER", "http://localhost:3001"), "server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("MAGCTL_TOKEN"), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print raw JSON responses")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Remote sync:"},
		&cobra.Group{ID: "cache", Title: "Offline cache:"},
	)
	rootCmd.AddCommand(loginCmd, statusCmd, inventoryCmd, syncCmd, cacheCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
