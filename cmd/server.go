package cmd

import (
	"ChainFM/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the ChainFM HTTP server",
	Long:  `Start the ChainFM HTTP server: wallet auth, rental verification and chunked chain-backed streaming.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
