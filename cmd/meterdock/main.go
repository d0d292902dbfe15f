package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// buildRoot creates the root command
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "meterdock",
		Short: "JMeter test-plan execution service",
		Long: `Meterdock runs JMeter test plans in non-GUI mode behind an HTTP API:
upload plans, submit executions with bounded concurrency, download dashboard
reports and summaries, and manage the JMeter installation.

Examples:
  meterdock serve --config=meterdock.toml
  meterdock plan upload ./load.jmx
  meterdock run --plan=<plan-id>
  meterdock status
  meterdock install --archive=apache-jmeter-5.6.3.zip`,
	}

	root.PersistentFlags().StringVar(&globalFlags.APIUrl, "api-url", "", "daemon URL (default http://localhost:8080/api)")
	root.PersistentFlags().DurationVar(&globalFlags.APITimeout, "api-timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		createServeCommand(),
		createPlanCommand(globalFlags),
		createRunCommand(globalFlags),
		createStatusCommand(globalFlags),
		createReportCommand(globalFlags),
		createSummaryCommand(globalFlags),
		createInstallCommand(globalFlags),
		createInstallationCommand(globalFlags),
	)

	return root
}
