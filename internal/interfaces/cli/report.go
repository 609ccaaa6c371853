package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// NewReportCmd creates the report command group.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate and download protest reports",
		Long:  "Finalize a session, queue report generation, poll for completion, and download the rendered report.",
	}

	cmd.AddCommand(
		newReportGenerateCmd(),
		newReportStatusCmd(),
		newReportDownloadCmd(),
	)

	return cmd
}

func newReportGenerateCmd() *cobra.Command {
	var (
		wait         bool
		pollInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate <session-id>",
		Short: "Finalize a session and queue report generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			rep, err := cliCtx.Client.Sessions().GenerateReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("report %s queued (status: %s)", rep.ID, rep.Status))

			if !wait {
				return nil
			}

			rep, err = cliCtx.Client.Reports().WaitForCompletion(cmd.Context(), rep.ID, pollInterval)
			if err != nil {
				return err
			}

			PrintSuccess(cmd, fmt.Sprintf("report %s completed (%d bytes)", rep.ID, rep.SizeBytes))
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the report completes")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 2*time.Second, "polling interval when --wait is set")

	return cmd
}

func newReportStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <report-id>",
		Short: "Show report generation status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			rep, err := cliCtx.Client.Reports().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if cliCtx.OutputFormat == "json" {
				return PrintResult(cmd, rep)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report:    %s\n", rep.ID)
			fmt.Fprintf(out, "Session:   %s\n", rep.SessionID)
			fmt.Fprintf(out, "Status:    %s\n", rep.Status)
			fmt.Fprintf(out, "File Name: %s\n", rep.FileName)
			if rep.GeneratedAt != nil {
				fmt.Fprintf(out, "Generated: %s\n", rep.GeneratedAt.Format(time.RFC3339))
			}
			if rep.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", rep.Error)
			}
			return nil
		},
	}
}

func newReportDownloadCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "download <report-id>",
		Short: "Download a completed report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			body, err := cliCtx.Client.Reports().Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer body.Close()

			if outPath == "" {
				_, err = io.Copy(cmd.OutOrStdout(), body)
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()

			written, err := io.Copy(f, body)
			if err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			PrintSuccess(cmd, fmt.Sprintf("report written to %s (%d bytes)", outPath, written))
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "file", "", "output file path (default: stdout)")

	return cmd
}
