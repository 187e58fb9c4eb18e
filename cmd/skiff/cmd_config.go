package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/skiffworks/skiff/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage skiff configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a commented starter skiff.yaml to get going. Refuses to
overwrite an existing file.`,
	Example: `  skiff config init
  skiff config init --config ./deploy/skiff.yaml`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long: `Print the configuration a command would actually run with, after
discovery and defaults.`,
	Example: `  skiff config show
  skiff config show --config ./skiff.yaml`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := flagConfig
	if path == "" {
		path = config.DefaultPath
	}

	if err := config.WriteStarter(path); err != nil {
		return err
	}

	fmt.Printf("✅ Wrote %s\n", path)
	fmt.Println("   Edit the AMI and region, then run: skiff vm up <name>")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	fmt.Print(string(out))
	return nil
}
