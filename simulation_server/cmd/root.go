// Package cmd wires the cobra CLI surface onto the simulation driver and
// compression pass: `townsim run` and `townsim compress`.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute is the single entrypoint main.go calls.
func Execute() {
	root := &cobra.Command{
		Use:   "townsim",
		Short: "Drive and replay a generative-agent town simulation",
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newCompressCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envOr reads a flag default from the environment, letting cobra flags take
// precedence over env vars, which take precedence over whatever godotenv
// already loaded into the environment from .env.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
