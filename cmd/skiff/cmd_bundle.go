package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skiffworks/skiff/bundler"
)

var (
	bundleType string
	bundleDir  string
)

var bundleCmd = &cobra.Command{
	Use:   "bundle <name>",
	Short: "Package the workspace for execution on a VM",
	Long: `Package a workspace so a managed VM can run it.

Bundler families:
  ecr   Build a container image from the workspace Dockerfile and push
        it to the configured ECR repository.
  s3    Archive the workspace as tar.gz and upload it to the configured
        S3 bucket.

Both skip VCS and cache directories unless the config lists its own
excludes.`,
	Example: `  skiff bundle trainer --type ecr
  skiff bundle trainer --type s3 --dir ./workspace`,
	Args: cobra.ExactArgs(1),
	RunE: runBundle,
}

func init() {
	rootCmd.AddCommand(bundleCmd)

	bundleCmd.Flags().StringVarP(&bundleType, "type", "t", "ecr", "Bundler type ("+strings.Join(bundler.List(), ", ")+")")
	bundleCmd.Flags().StringVar(&bundleDir, "dir", ".", "Workspace directory to package")
}

func runBundle(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flush := initTelemetry(ctx, cfg)
	defer flush()

	b, err := bundler.Get(ctx, bundleType, bundler.Config{
		Region:     cfg.AWS.Region,
		Profile:    cfg.AWS.Profile,
		DockerRepo: cfg.Bundle.DockerRepo,
		Dockerfile: cfg.Bundle.Dockerfile,
		S3Bucket:   cfg.Bundle.S3Bucket,
		S3Prefix:   cfg.Bundle.S3Prefix,
		Excludes:   cfg.Bundle.Excludes,
	})
	if err != nil {
		return err
	}

	fmt.Printf("📦 Bundling %s as %s...\n", bundleDir, name)
	location, err := b.Bundle(ctx, name, bundleDir)
	if err != nil {
		return fmt.Errorf("bundle failed: %w", err)
	}

	fmt.Printf("✅ Bundle published: %s\n", location)
	return nil
}
