package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const jobTimeout = 30 * time.Minute

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	runs, err := s.Store.ListRuns(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid run id"})
	}
	run, err := s.Store.GetRun(c.Request().Context(), id)
	if errors.Is(err, db.ErrRunNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Run not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleTriggerRun(c echo.Context) error {
	return s.startJob(c, models.StageAll)
}

func (s *Server) handleTriggerStage(c echo.Context) error {
	stage := models.Stage(c.Param("stage"))
	if !stage.Valid() || stage == models.StageAll {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "stage must be one of discover, analyze, sync"})
	}
	return s.startJob(c, stage)
}

// startJob runs the pipeline in the background and answers 202 with a poll
// URL. Only one API-triggered job runs at a time.
func (s *Server) startJob(c echo.Context, stage models.Stage) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A pipeline job is already running",
			"job_id": job.ID,
		})
	}

	// The job outlives the request; it keeps request values but gets its own deadline.
	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), jobTimeout)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Stage:     stage,
		Status:    "running",
		StartedAt: s.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	trigger := "manual"
	go func() {
		defer jobCancel()
		report, err := s.Runner.RunStage(jobCtx, trigger, stage)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = s.Now()
		job.Result = report
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.WithFields(log.Fields{"job_id": jobID, "stage": stage}).WithError(err).Error("api: pipeline job failed")
			return
		}
		job.Status = "completed"
		log.WithFields(log.Fields{"job_id": jobID, "stage": stage}).Info("api: pipeline job completed")
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": fmt.Sprintf("Pipeline job started (%s)", stage),
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/runs/jobs/%s", jobID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job := s.runningJob
	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	resp := map[string]any{
		"id":         job.ID,
		"stage":      job.Stage,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}
