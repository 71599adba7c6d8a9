package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"ChainFM/config"
	"ChainFM/storage"

	"github.com/spf13/cobra"
)

var storagePrefix string

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Cover storage bucket check",
	Long:  `Connect to the configured MinIO endpoint, ensure the cover bucket exists and list stored objects.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		covers, err := storage.NewCoverStore(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		fmt.Println("MinIO connection OK.")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		objects, err := covers.List(ctx, storagePrefix)
		if err != nil {
			log.Fatalf("Failed to list objects: %v", err)
		}
		for _, obj := range objects {
			fmt.Printf("  %s (%d bytes)\n", obj.Key, obj.Size)
		}
		fmt.Printf("%d objects.\n", len(objects))
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "filter objects by key prefix")
}
