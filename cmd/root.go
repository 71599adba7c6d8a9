package cmd

import (
	"fmt"
	"log"
	"os"

	"ChainFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chainfm_server",
	Short: "ChainFM is a blockchain-backed media rental service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting ChainFM server...")
		// server.Start handles its own wiring and logging for startup.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
