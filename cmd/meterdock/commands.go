package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newClient(g *GlobalFlags) (*APIClient, error) {
	c := NewAPIClient(g.APIUrl, g.APITimeout)
	if !c.IsReachable() {
		url := g.APIUrl
		if url == "" {
			url = "http://localhost:8080/api"
		}
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'meterdock serve'", url)
	}
	return c, nil
}

// createPlanCommand creates the plan subcommand group
func createPlanCommand(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage test plans",
		Long: `Upload and list JMeter test plans stored by the daemon.

Examples:
  meterdock plan upload ./load.jmx
  meterdock plan list`,
	}

	upload := &cobra.Command{
		Use:   "upload <file.jmx>",
		Short: "Upload a test plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			result, err := c.UploadPlan(args[0])
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored test plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			result, err := c.ListPlans()
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	cmd.AddCommand(upload, list)
	return cmd
}

// createRunCommand creates the run subcommand
func createRunCommand(g *GlobalFlags) *cobra.Command {
	var planID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit an execution",
		Long: `Submit a new execution of an uploaded test plan. The execution is
queued and starts as soon as a concurrency slot is free.

Examples:
  meterdock run --plan=2f1b3c4d-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			result, err := c.SubmitExecution(planID)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&planID, "plan", "", "plan id (required)")
	if err := cmd.MarkFlagRequired("plan"); err != nil {
		panic(err)
	}
	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(g *GlobalFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show execution status",
		Long: `Show execution records known to the daemon.

Examples:
  meterdock status                  # all executions
  meterdock status --id=<exec-id>   # one execution`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			result, err := c.GetExecution(id)
			if err != nil {
				return err
			}
			printExecutions(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "execution id (optional)")
	return cmd
}

// createReportCommand creates the report subcommand
func createReportCommand(g *GlobalFlags) *cobra.Command {
	var id, output string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Download an execution's dashboard report",
		Long: `Download the zipped dashboard report of a completed execution.

Examples:
  meterdock report --id=<exec-id>
  meterdock report --id=<exec-id> --output=./report.zip`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			out := output
			if out == "" {
				out = "report-" + id + ".zip"
			}
			f, err := os.Create(filepath.Clean(out))
			if err != nil {
				return err
			}
			if err := c.DownloadReport(id, f); err != nil {
				_ = f.Close()
				_ = os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			color.Green("report written to %s", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "execution id (required)")
	cmd.Flags().StringVar(&output, "output", "", "output file (defaults to report-<id>.zip)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createSummaryCommand creates the summary subcommand
func createSummaryCommand(g *GlobalFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show an execution's sample statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			result, err := c.GetSummary(id)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "execution id (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createInstallCommand creates the install subcommand
func createInstallCommand(g *GlobalFlags) *cobra.Command {
	var archive, path string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a JMeter distribution",
		Long: `Install a JMeter distribution, either by uploading an archive for the
daemon to extract and activate, or by pointing the daemon at a directory
already present on its host.

Examples:
  meterdock install --archive=apache-jmeter-5.6.3.zip
  meterdock install --path=/opt/apache-jmeter-5.6.3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (archive == "") == (path == "") {
				return fmt.Errorf("exactly one of --archive or --path is required")
			}
			c, err := newClient(g)
			if err != nil {
				return err
			}
			var result interface{}
			if archive != "" {
				result, err = c.InstallArchive(archive)
			} else {
				result, err = c.ConfigureInstallation(path)
			}
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&archive, "archive", "", "distribution archive to upload (.zip or .tgz)")
	cmd.Flags().StringVar(&path, "path", "", "existing installation directory on the daemon host")
	return cmd
}

// createInstallationCommand creates the installation subcommand group
func createInstallationCommand(g *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "installation",
		Short: "Inspect or clear the JMeter installation",
		Long: `Inspect or clear the daemon's JMeter installation configuration.

Examples:
  meterdock installation status
  meterdock installation verify
  meterdock installation clear`,
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show installation configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			result, err := c.InstallationStatus()
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Probe the configured installation",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			result, err := c.VerifyInstallation()
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear the installation configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(g)
			if err != nil {
				return err
			}
			if err := c.ClearInstallation(); err != nil {
				return err
			}
			color.Green("installation cleared")
			return nil
		},
	}

	cmd.AddCommand(status, verify, clear)
	return cmd
}
