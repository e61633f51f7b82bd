package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	cancelJob bool
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVar(&cancelJob, "cancel", false, "Cancel the given job")
	rootCmd.AddCommand(statusCmd)
}

// jobView is the subset of the server's job JSON shown by the CLI.
// Fitness fields are pointers because non-finite values arrive as null.
type jobView struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Config struct {
		Objective string `json:"objective"`
		Dim       int    `json:"dim"`
		PopSize   int    `json:"popSize"`
		Iters     int    `json:"iters"`
		Seed      int64  `json:"seed"`
	} `json:"config"`
	BestPosition   []float64 `json:"bestPosition"`
	BestFitness    *float64  `json:"bestFitness"`
	InitialFitness *float64  `json:"initialFitness"`
	Generations    int       `json:"generations"`
	Evaluations    int       `json:"evaluations"`
	Stopped        string    `json:"stopped"`
	Elapsed        float64   `json:"elapsed"`
	EPS            float64   `json:"eps"`
	Error          string    `json:"error"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := strings.TrimRight(serverURL, "/")
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		if cancelJob {
			return fmt.Errorf("--cancel needs a job ID")
		}
		return listJobs(out, base+"/api/v1/jobs")
	}

	jobID := args[0]
	if cancelJob {
		return cancelRemoteJob(out, base+"/api/v1/jobs/"+jobID, jobID)
	}
	return getJobStatus(out, base+"/api/v1/jobs/"+jobID+"/status", jobID)
}

func listJobs(out io.Writer, url string) error {
	var jobs []jobView
	if err := getJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Objective: %s (dim %d)\n", job.Config.Objective, job.Config.Dim)
		fmt.Fprintf(out, "  Generation: %d/%d\n", job.Generations, job.Config.Iters)
		if job.InitialFitness != nil && job.BestFitness != nil {
			fmt.Fprintf(out, "  Fitness: %g -> %g\n", *job.InitialFitness, *job.BestFitness)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func getJobStatus(out io.Writer, url, jobID string) error {
	var job jobView
	if err := getJSON(url, &job); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return fmt.Errorf("job not found: %s", jobID)
		}
		return err
	}

	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "State: %s\n", job.State)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Objective: %s\n", job.Config.Objective)
	fmt.Fprintf(out, "  Dimensions: %d\n", job.Config.Dim)
	fmt.Fprintf(out, "  Generations: %d\n", job.Config.Iters)
	fmt.Fprintf(out, "  Population: %d\n", job.Config.PopSize)
	fmt.Fprintf(out, "  Seed: %d\n", job.Config.Seed)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Generation: %d\n", job.Generations)
	fmt.Fprintf(out, "  Evaluations: %d\n", job.Evaluations)
	if job.InitialFitness != nil {
		fmt.Fprintf(out, "  Initial Fitness: %g\n", *job.InitialFitness)
	}
	if job.BestFitness != nil {
		fmt.Fprintf(out, "  Best Fitness: %g\n", *job.BestFitness)
	}
	if len(job.BestPosition) > 0 {
		fmt.Fprintf(out, "  Best Position: %v\n", job.BestPosition)
	}
	if job.Stopped != "" {
		fmt.Fprintf(out, "  Stopped: %s\n", job.Stopped)
	}

	elapsed := time.Duration(job.Elapsed * float64(time.Second))
	fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if job.EPS > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f evaluations/sec\n", job.EPS)
	}

	if job.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", job.Error)
	}
	return nil
}

func cancelRemoteJob(out io.Writer, url, jobID string) error {
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		fmt.Fprintf(out, "Cancelling job %s\n", jobID)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("job not found: %s", jobID)
	default:
		return serverError(resp)
	}
}

// statusError is a non-2xx server response.
type statusError struct {
	Code int
	Msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Msg)
}

func getJSON(url string, v any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func serverError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &statusError{Code: resp.StatusCode, Msg: msg}
}
