package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/skiffworks/skiff/config"
	"github.com/skiffworks/skiff/storage"
	"github.com/skiffworks/skiff/types"
)

var (
	statusHistory int
	statusConsole bool
	listOutput    string
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage the lifecycle of named VMs",
}

var vmUpCmd = &cobra.Command{
	Use:   "up <name>",
	Short: "Converge a VM to running",
	Long: `Converge the named VM to RUNNING.

Looks the VM up by its name tag first. If it already runs, this is a
no-op. If it exists in a transitional state, the command waits for it
to settle. Only when nothing matches does it launch a new instance,
with creation gated by policy and retried under bounded backoff.`,
	Example: `  skiff vm up web-0
  skiff vm up web-0 --config ./skiff.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runVMUp,
}

var vmDownCmd = &cobra.Command{
	Use:   "down <name>",
	Short: "Converge a VM to absent",
	Long: `Converge the named VM to ABSENT.

Terminates the instance carrying the name tag and waits until the
provider stops reporting it. Already-absent VMs are a no-op, so the
command is safe to re-run.`,
	Example: `  skiff vm down web-0`,
	Args:    cobra.ExactArgs(1),
	RunE:    runVMDown,
}

var vmStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show live and recorded state of a VM",
	Long: `Show what the provider reports for the named VM right now, next to
what the observation store has recorded about it over time.`,
	Example: `  skiff vm status web-0
  skiff vm status web-0 --history 10
  skiff vm status web-0 --console`,
	Args: cobra.ExactArgs(1),
	RunE: runVMStatus,
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every VM this tool manages",
	Example: `  skiff vm list
  skiff vm list --output json`,
	RunE: runVMList,
}

func init() {
	rootCmd.AddCommand(vmCmd)
	vmCmd.AddCommand(vmUpCmd)
	vmCmd.AddCommand(vmDownCmd)
	vmCmd.AddCommand(vmStatusCmd)
	vmCmd.AddCommand(vmListCmd)

	vmStatusCmd.Flags().IntVar(&statusHistory, "history", 0, "Show the last N recorded observations")
	vmStatusCmd.Flags().BoolVar(&statusConsole, "console", false, "Fetch serial console output")
	vmListCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table, json)")
}

func runVMUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flush := initTelemetry(ctx, cfg)
	defer flush()

	rec, cleanup, err := buildReconciler(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("🔄 Converging %s to RUNNING...\n", name)
	instanceID, err := rec.EnsureRunning(ctx, cfg.InstanceSpec(name))
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	fmt.Printf("✅ %s is running (%s)\n", name, instanceID)
	return nil
}

func runVMDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	flush := initTelemetry(ctx, cfg)
	defer flush()

	rec, cleanup, err := buildReconciler(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("🔄 Converging %s to ABSENT...\n", name)
	if err := rec.EnsureAbsent(ctx, name); err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}

	fmt.Printf("✅ %s is absent\n", name)
	return nil
}

// consoleReader is implemented by providers that can fetch serial
// console output.
type consoleReader interface {
	ConsoleOutput(ctx context.Context, instanceID string) (string, error)
}

func runVMStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	compute, err := openCompute(ctx, cfg)
	if err != nil {
		return err
	}

	record, err := compute.FindByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", name, err)
	}

	fmt.Printf("%s: %s\n", name, types.StatusOf(record))
	if record != nil {
		fmt.Printf("   Instance: %s (%s)\n", record.ID, record.InstanceType)
		if record.PublicIP != "" {
			fmt.Printf("   Public IP: %s\n", record.PublicIP)
		}
		if record.PrivateIP != "" {
			fmt.Printf("   Private IP: %s\n", record.PrivateIP)
		}
		if !record.LaunchedAt.IsZero() {
			fmt.Printf("   Launched: %s\n", formatAge(record.LaunchedAt))
		}
	}

	if err := printRecordedState(cfg, name); err != nil {
		return err
	}

	if statusConsole {
		if record == nil {
			return fmt.Errorf("no instance to read console from")
		}
		reader, ok := compute.(consoleReader)
		if !ok {
			return fmt.Errorf("provider %s does not expose console output", compute.Name())
		}
		output, err := reader.ConsoleOutput(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("failed to fetch console output: %w", err)
		}
		fmt.Printf("\n--- console output ---\n%s\n", output)
	}

	return nil
}

// printRecordedState shows what the observation store knows about the
// VM. A missing store or unknown VM is informational, not an error.
func printRecordedState(cfg *config.Config, name string) error {
	if _, err := os.Stat(cfg.DataDir); err != nil {
		fmt.Println("\nNo recorded observations")
		return nil
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open observation store: %w", err)
	}
	defer func() { _ = store.Close() }()

	state, err := store.Get(name)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Println("\nNo recorded observations")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read observation store: %w", err)
	}

	fmt.Printf("\nRecorded: %s over revisions %d..%d", state.State, state.FirstSeenRev, state.LastSeenRev)
	if !state.Exists {
		fmt.Printf(" (disappeared at revision %d)", state.DisappearedRev)
	}
	fmt.Println()

	if statusHistory <= 0 {
		return nil
	}

	history, err := store.History(name, statusHistory)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	fmt.Println("\nHistory (newest first):")
	for _, obs := range history {
		fmt.Println(formatObservation(obs))
	}

	if transitions := storage.Transitions(name, history); len(transitions) > 0 {
		fmt.Println("\nTransitions:")
		for _, tr := range transitions {
			fmt.Printf("   rev %-6d %s -> %s\n", tr.Revision, tr.From, tr.To)
		}
	}

	return nil
}

func runVMList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	compute, err := openCompute(ctx, cfg)
	if err != nil {
		return err
	}

	records, err := compute.ListManaged(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	switch listOutput {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	case "table":
		if len(records) == 0 {
			fmt.Println("No managed instances found")
			return nil
		}
		return renderInstanceTable(os.Stdout, records)
	default:
		return fmt.Errorf("invalid output format: %s (must be one of: table, json)", listOutput)
	}
}

// renderInstanceTable prints managed instances as a table.
func renderInstanceTable(w io.Writer, records []types.InstanceRecord) error {
	table := tablewriter.NewWriter(w)
	table.Header("NAME", "INSTANCE", "STATE", "TYPE", "PUBLIC IP", "LAUNCHED")

	for _, record := range records {
		if err := table.Append([]string{
			record.Name,
			record.ID,
			string(record.Status()),
			record.InstanceType,
			orDash(record.PublicIP),
			formatAge(record.LaunchedAt),
		}); err != nil {
			return err
		}
	}

	return table.Render()
}

// formatObservation renders one history line.
func formatObservation(obs storage.Observation) string {
	when := obs.ObservedAt.Format(time.RFC3339)
	if obs.Tombstone || obs.Record == nil {
		return fmt.Sprintf("   rev %-6d %s  disappeared", obs.Revision, when)
	}
	return fmt.Sprintf("   rev %-6d %s  %s (%s)", obs.Revision, when, obs.Record.Status(), obs.Record.ID)
}

// formatAge renders a timestamp as a rough age.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(age.Hours()/24))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
