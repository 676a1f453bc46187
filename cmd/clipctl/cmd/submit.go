package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit <url>",
	Short: "Submit a video URL for download and analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Success bool   `json:"success"`
			JobID   string `json:"jobId"`
			Message string `json:"message"`
		}
		payload := map[string]string{"url": args[0]}
		if err := apiPost("/api/jobs/url", payload, &resp); err != nil {
			return err
		}

		if outputFormat != "table" {
			return renderStructured(resp)
		}
		fmt.Printf("Job submitted: %s\n", resp.JobID)
		fmt.Printf("Track it with: clipctl jobs status %s --follow\n", resp.JobID)
		return nil
	},
}

var (
	exportStart float64
	exportEnd   float64
	exportRatio float64
)

var exportCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Export a clip from an analyzed job",
	Long:  `Export cuts a segment out of the source video of a completed analysis job and renders it as a standalone clip.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("start") || !cmd.Flags().Changed("end") {
			return fmt.Errorf("--start and --end are required")
		}

		payload := map[string]interface{}{
			"jobId": args[0],
			"start": exportStart,
			"end":   exportEnd,
		}
		if cmd.Flags().Changed("ratio") {
			payload["ratio"] = exportRatio
		}

		var resp struct {
			Success     bool   `json:"success"`
			ExportJobID string `json:"exportJobId"`
		}
		if err := apiPost("/api/jobs/export", payload, &resp); err != nil {
			return err
		}

		if outputFormat != "table" {
			return renderStructured(resp)
		}
		fmt.Printf("Export job submitted: %s\n", resp.ExportJobID)
		fmt.Printf("Track it with: clipctl jobs status %s --follow\n", resp.ExportJobID)
		return nil
	},
}

func init() {
	exportCmd.Flags().Float64Var(&exportStart, "start", 0, "clip start in seconds")
	exportCmd.Flags().Float64Var(&exportEnd, "end", 0, "clip end in seconds")
	exportCmd.Flags().Float64Var(&exportRatio, "ratio", 0, "output aspect ratio as width/height (default 9/16)")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(exportCmd)
}
