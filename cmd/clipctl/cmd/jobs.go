package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clipper-ai/clipperd/pkg/models"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect jobs on the server",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var jobs []models.Job
		if err := apiGet("/api/jobs", &jobs); err != nil {
			return err
		}

		if outputFormat != "table" {
			return renderStructured(jobs)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Type", "Status", "Progress", "Created", "Error")
		for _, job := range jobs {
			table.Append(
				job.ID,
				string(job.Type),
				string(job.Status),
				fmt.Sprintf("%d%%", job.Progress),
				job.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				truncate(job.Error, 40),
			)
		}
		table.Render()
		return nil
	},
}

var followJob bool

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a single job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !followJob {
			job, err := fetchJob(args[0])
			if err != nil {
				return err
			}
			return printJob(job)
		}

		for {
			job, err := fetchJob(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("[%s] %s  %s  %d%%\n",
				time.Now().Format("15:04:05"), job.ID, job.Status, job.Progress)
			if job.Status.Terminal() {
				return printJob(job)
			}
			time.Sleep(2 * time.Second)
		}
	},
}

var jobsClipsCmd = &cobra.Command{
	Use:   "clips <job-id>",
	Short: "Show the highlight clips detected for a completed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := fetchJob(args[0])
		if err != nil {
			return err
		}
		if job.Result == nil || len(job.Result.Clips) == 0 {
			fmt.Println("No clips available for this job")
			return nil
		}

		if outputFormat != "table" {
			return renderStructured(job.Result.Clips)
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Start", "End", "Score", "Text")
		for i, clip := range job.Result.Clips {
			table.Append(
				strconv.Itoa(i+1),
				formatSeconds(clip.Start),
				formatSeconds(clip.End),
				fmt.Sprintf("%.2f", clip.Score),
				truncate(clip.Text, 60),
			)
		}
		table.Render()
		return nil
	},
}

func fetchJob(id string) (*models.Job, error) {
	var job models.Job
	if err := apiGet("/api/jobs/"+id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func printJob(job *models.Job) error {
	if outputFormat != "table" {
		return renderStructured(job)
	}

	fmt.Printf("ID:       %s\n", job.ID)
	fmt.Printf("Type:     %s\n", job.Type)
	fmt.Printf("Status:   %s\n", job.Status)
	fmt.Printf("Progress: %d%%\n", job.Progress)
	fmt.Printf("Created:  %s\n", job.CreatedAt.Local().Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("Started:  %s\n", job.StartedAt.Local().Format(time.RFC3339))
	}
	if job.EndedAt != nil {
		fmt.Printf("Ended:    %s\n", job.EndedAt.Local().Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Printf("Error:    %s\n", job.Error)
	}
	if job.Result != nil {
		if job.Result.OutputFilename != "" {
			fmt.Printf("Output:   %s\n", job.Result.OutputFilename)
			fmt.Printf("Download: %s/api/jobs/download/%s\n", GetServerURL(), job.Result.OutputFilename)
		}
		if len(job.Result.Clips) > 0 {
			fmt.Printf("Clips:    %d detected\n", len(job.Result.Clips))
		}
	}
	return nil
}

// renderStructured prints v as json or yaml depending on the output flag
func renderStructured(v interface{}) error {
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	return fmt.Sprintf("%02d:%05.2f", int(d.Minutes()), s-float64(int(d.Minutes()))*60)
}

func init() {
	jobsStatusCmd.Flags().BoolVarP(&followJob, "follow", "f", false, "poll until the job reaches a terminal state")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsClipsCmd)
	rootCmd.AddCommand(jobsCmd)
}
