package server

import (
	"net/http"

	"github.com/cwbudde/batopt/internal/ui"
)

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	jobs := s.jobManager.ListJobs()
	items := make([]ui.JobListItem, len(jobs))
	for i, job := range jobs {
		items[i] = ui.JobListItem{
			ID:             job.ID,
			State:          string(job.State),
			Objective:      job.Config.Objective,
			Dim:            job.Config.Dim,
			Generations:    job.Generations,
			Iters:          job.Config.Iters,
			BestFitness:    float64(job.BestFitness),
			InitialFitness: float64(job.InitialFitness),
			StartTime:      job.StartTime,
			EndTime:        job.EndTime,
			Error:          job.Error,
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.JobList(items).Render(r.Context(), w); err != nil {
		s.logger.Error("Failed to render page", "error", err)
	}
}
