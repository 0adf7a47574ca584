package system

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Alijeyrad/tabib_backend/pkg/database"
	s3pkg "github.com/Alijeyrad/tabib_backend/pkg/s3"
)

func NewInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the clinic and casbin databases and the upload bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Println("Initializing databases...")
			if err := database.InitializeDatabases(cfg); err != nil {
				return fmt.Errorf("failed to initialize databases: %w", err)
			}
			fmt.Println("Databases Initialized successfully.")

			if cfg.S3.Bucket == "" {
				return nil
			}
			client, err := s3pkg.New(cfg.S3)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := client.EnsureBucket(ctx); err != nil {
				return fmt.Errorf("failed to create bucket: %w", err)
			}
			fmt.Printf("Bucket %q is ready.\n", cfg.S3.Bucket)
			return nil
		},
	}

	return cmd
}
