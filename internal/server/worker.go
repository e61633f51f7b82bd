package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cwbudde/batopt/internal/bat"
	"github.com/cwbudde/batopt/internal/runner"
	"github.com/cwbudde/batopt/internal/store"
)

// progressInterval throttles SSE progress events per job.
const progressInterval = 250 * time.Millisecond

// runJob executes an optimization job in the background. Finished runs are
// saved to s.store when one is configured.
func (s *Server) runJob(ctx context.Context, jobID string) error {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		return ErrJobNotFound
	}
	logger := s.logger.With("job_id", jobID)

	// Cancelled before the worker got going
	if err := ctx.Err(); err != nil {
		s.markJobCancelled(jobID)
		return err
	}

	s.jobManager.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	s.metrics.jobsRunning.Inc()
	defer s.metrics.jobsRunning.Dec()
	s.broadcastState(jobID)

	logger.Info("Starting job", "objective", job.Config.Objective, "dim", job.Config.Dim)

	var trace *store.TraceWriter
	if s.traceDir != "" {
		tw, err := store.NewTraceWriter(s.traceDir, jobID, false)
		if err != nil {
			logger.Warn("Trace disabled", "error", err)
		} else {
			trace = tw
			defer func() {
				if err := tw.Close(); err != nil {
					logger.Warn("Failed to close trace", "error", err)
				}
			}()
		}
	}

	start := time.Now()
	var lastEvent time.Time

	progress := func(snap bat.Snapshot) {
		s.jobManager.UpdateJob(jobID, func(j *Job) {
			j.Generations = snap.Generation
			j.Evaluations = snap.Evaluations
			j.BestFitness = jsonFloat(snap.BestFitness)
			if snap.Generation == 0 {
				j.InitialFitness = jsonFloat(snap.BestFitness)
			}
		})

		now := time.Now()
		if now.Sub(lastEvent) < progressInterval && snap.Generation != 0 {
			return
		}
		lastEvent = now
		s.jobManager.broadcaster.Broadcast(ProgressEvent{
			JobID:       jobID,
			State:       StateRunning,
			Generation:  snap.Generation,
			Evaluations: snap.Evaluations,
			BestFitness: jsonFloat(snap.BestFitness),
			EPS:         perSecond(snap.Evaluations, now.Sub(start)),
			Timestamp:   now,
		})
	}

	result, err := runner.Run(ctx, job.Config, runner.Options{
		RunID:    jobID,
		Logger:   logger,
		Trace:    trace,
		Progress: progress,
	})
	elapsed := time.Since(start)
	if err != nil {
		current, _ := s.jobManager.GetJob(jobID)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.metrics.finished(StateCancelled, current.Evaluations, elapsed.Seconds())
			s.markJobCancelled(jobID)
		} else {
			s.metrics.finished(StateFailed, current.Evaluations, elapsed.Seconds())
			s.markJobFailed(jobID, err)
		}
		s.broadcastState(jobID)
		return err
	}

	// Save before publishing the completed state.
	if s.store != nil {
		if err := s.store.SaveRun(context.WithoutCancel(ctx), jobID, result.Record(job.Config)); err != nil {
			logger.Warn("Failed to save run", "error", err)
		}
	}
	s.metrics.finished(StateCompleted, result.Evaluations, elapsed.Seconds())
	s.metrics.bestFitness.WithLabelValues(job.Config.Objective).Set(result.BestFitness)

	endTime := time.Now()
	s.jobManager.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestPosition = result.BestPosition
		j.BestFitness = jsonFloat(result.BestFitness)
		j.InitialFitness = jsonFloat(result.InitialFitness)
		j.Generations = result.Generations
		j.Evaluations = result.Evaluations
		j.Stopped = result.Stopped
		j.EndTime = &endTime
	})

	logger.Info("Job completed",
		"elapsed", elapsed,
		"initial_fitness", result.InitialFitness,
		"best_fitness", result.BestFitness,
		"evaluations_per_second", perSecond(result.Evaluations, elapsed),
	)

	s.broadcastState(jobID)
	return nil
}

// broadcastState sends the job's current state to stream subscribers.
func (s *Server) broadcastState(jobID string) {
	job, ok := s.jobManager.GetJob(jobID)
	if !ok {
		return
	}
	s.jobManager.broadcaster.Broadcast(ProgressEvent{
		JobID:       jobID,
		State:       job.State,
		Generation:  job.Generations,
		Evaluations: job.Evaluations,
		BestFitness: job.BestFitness,
		EPS:         perSecond(job.Evaluations, job.Elapsed()),
		Timestamp:   time.Now(),
	})
}

// markJobFailed marks a job as failed with an error message
func (s *Server) markJobFailed(jobID string, err error) {
	endTime := time.Now()
	s.jobManager.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	s.logger.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func (s *Server) markJobCancelled(jobID string) {
	endTime := time.Now()
	s.jobManager.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	s.logger.Info("Job cancelled", "job_id", jobID)
}

func perSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
