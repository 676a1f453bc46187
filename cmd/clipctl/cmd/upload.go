package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a local video file for analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()

		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("video", filepath.Base(args[0]))
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, file); err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		if err := writer.Close(); err != nil {
			return err
		}

		resp, err := httpClient.Post(GetServerURL()+"/api/jobs/upload", writer.FormDataContentType(), &buf)
		if err != nil {
			return fmt.Errorf("failed to reach server: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return apiError(resp.StatusCode, body)
		}

		var result struct {
			Success bool   `json:"success"`
			JobID   string `json:"jobId"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		if outputFormat != "table" {
			return renderStructured(result)
		}
		fmt.Printf("Upload accepted: %s\n", result.JobID)
		fmt.Printf("Track it with: clipctl jobs status %s --follow\n", result.JobID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
