package main

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Verify cloud credentials",
}

var authCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify credentials can reach the provider",
	Long: `Verify the configured credentials by asking the provider who we are.
Fails with a non-zero exit code when credentials are missing, expired
or lack the required permissions.`,
	Example: `  skiff auth check
  skiff auth check --config ./skiff.yaml`,
	RunE: runAuthCheck,
}

var authECRCmd = &cobra.Command{
	Use:   "ecr",
	Short: "Verify registry login for the ECR bundler",
	Long: `Request an ECR authorization token and report which registry it is for
and when it expires. This is the same token the ecr bundler uses to
push images.`,
	Example: `  skiff auth ecr`,
	RunE:    runAuthECR,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authCheckCmd)
	authCmd.AddCommand(authECRCmd)
}

// accountReporter is implemented by providers that know which account
// their credentials resolve to.
type accountReporter interface {
	AccountID() string
}

func runAuthCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	compute, err := openCompute(ctx, cfg)
	if err != nil {
		return fmt.Errorf("credential check failed: %w", err)
	}

	fmt.Printf("✅ Credentials OK for %s in %s\n", compute.Name(), compute.Region())
	if reporter, ok := compute.(accountReporter); ok && reporter.AccountID() != "" {
		fmt.Printf("   Account: %s\n", reporter.AccountID())
	}
	return nil
}

func runAuthECR(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	out, err := ecr.NewFromConfig(awsCfg).GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return fmt.Errorf("failed to get ECR authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return fmt.Errorf("ECR returned no authorization data")
	}

	data := out.AuthorizationData[0]
	raw, err := base64.StdEncoding.DecodeString(awssdk.ToString(data.AuthorizationToken))
	if err != nil {
		return fmt.Errorf("failed to decode ECR authorization token: %w", err)
	}
	if _, _, ok := strings.Cut(string(raw), ":"); !ok {
		return fmt.Errorf("malformed ECR authorization token")
	}

	fmt.Printf("✅ ECR login OK\n")
	fmt.Printf("   Registry: %s\n", awssdk.ToString(data.ProxyEndpoint))
	if data.ExpiresAt != nil {
		fmt.Printf("   Token expires: %s (%s)\n", data.ExpiresAt.Format(time.RFC3339), formatUntil(*data.ExpiresAt))
	}
	return nil
}

// formatUntil renders how far in the future a deadline is.
func formatUntil(t time.Time) string {
	left := time.Until(t)
	if left <= 0 {
		return "expired"
	}
	if left < time.Hour {
		return fmt.Sprintf("in %dm", int(left.Minutes()))
	}
	return fmt.Sprintf("in %dh%02dm", int(left.Hours()), int(left.Minutes())%60)
}
