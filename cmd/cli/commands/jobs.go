package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sellerdesk/sellerdesk/internal/api/v1/handlers"
	"github.com/sellerdesk/sellerdesk/internal/db/models"
)

// jobOutput represents the filtered output for a job
type jobOutput struct {
	ID              uint   `json:"id"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	Processed       int    `json:"processed"`
	Total           int    `json:"total"`
	Error           string `json:"error,omitempty"`
}

func toJobOutput(job models.Job) jobOutput {
	return jobOutput{
		ID:              job.ID,
		Type:            string(job.Type),
		Status:          string(job.Status),
		ProgressPercent: job.ProgressPercent,
		Processed:       job.ProcessedCount,
		Total:           job.TotalCount,
		Error:           job.Error,
	}
}

func printJSON(v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	fmt.Println(string(prettyJSON))
	return nil
}

func init() {
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(submitJobCmd)
	jobsCmd.AddCommand(pauseJobCmd)
	jobsCmd.AddCommand(resumeJobCmd)
	jobsCmd.AddCommand(cancelJobCmd)
	jobsCmd.AddCommand(forceStopJobCmd)

	listJobsCmd.Flags().IntP("limit", "l", 0, "Limit the number of jobs returned")
	listJobsCmd.Flags().String("status", "", "Filter jobs by status")

	submitJobCmd.Flags().String("type", "", "Job type to run")
	submitJobCmd.Flags().String("params", "", "Job parameters as a JSON object")
	submitJobCmd.Flags().Int("priority", 0, "Scheduling priority")
	_ = submitJobCmd.MarkFlagRequired("type")

	for _, cmd := range []*cobra.Command{getJobCmd, pauseJobCmd, resumeJobCmd, cancelJobCmd, forceStopJobCmd} {
		cmd.Flags().UintP("id", "i", 0, "Job ID")
		_ = cmd.MarkFlagRequired("id")
	}
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage long-running jobs",
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")

		opts := &models.ListOptions{Limit: limit}
		jobs, err := apiClient.ListJobs(context.Background(), status, opts)
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}

		output := make([]jobOutput, len(jobs))
		for i, job := range jobs {
			output[i] = toJobOutput(job)
		}
		return printJSON(output)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get",
	Short: "Get a specific job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetUint("id")
		job, err := apiClient.GetJob(context.Background(), jobID)
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		return printJSON(job)
	},
}

var submitJobCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		jobType, _ := cmd.Flags().GetString("type")
		params, _ := cmd.Flags().GetString("params")
		priority, _ := cmd.Flags().GetInt("priority")

		req := handlers.SubmitJobRequest{Type: jobType, Priority: priority}
		if params != "" {
			if !json.Valid([]byte(params)) {
				return fmt.Errorf("params must be a valid JSON object")
			}
			req.Params = json.RawMessage(params)
		}

		job, err := apiClient.SubmitJob(context.Background(), req)
		if err != nil {
			return fmt.Errorf("error submitting job: %w", err)
		}
		return printJSON(toJobOutput(job))
	},
}

var pauseJobCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause a running job",
	RunE:  controlRunE(func(ctx context.Context, id uint) (models.Job, error) { return apiClient.PauseJob(ctx, id) }),
}

var resumeJobCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused job",
	RunE:  controlRunE(func(ctx context.Context, id uint) (models.Job, error) { return apiClient.ResumeJob(ctx, id) }),
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a job",
	RunE:  controlRunE(func(ctx context.Context, id uint) (models.Job, error) { return apiClient.CancelJob(ctx, id) }),
}

var forceStopJobCmd = &cobra.Command{
	Use:   "force-stop",
	Short: "Force stop a job stuck in cancelling",
	RunE:  controlRunE(func(ctx context.Context, id uint) (models.Job, error) { return apiClient.ForceStopJob(ctx, id) }),
}

func controlRunE(op func(ctx context.Context, id uint) (models.Job, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		jobID, _ := cmd.Flags().GetUint("id")
		job, err := op(context.Background(), jobID)
		if err != nil {
			return fmt.Errorf("error controlling job: %w", err)
		}
		return printJSON(toJobOutput(job))
	}
}

// GetJobsCmd returns the jobs command
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}
