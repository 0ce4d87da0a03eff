package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunPartial means the run finished but some items failed.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Stage names a pipeline stage; StageAll runs discover, analyze and sync in order.
type Stage string

const (
	StageAll      Stage = "all"
	StageDiscover Stage = "discover"
	StageAnalyze  Stage = "analyze"
	StageSync     Stage = "sync"
)

func (s Stage) Valid() bool {
	switch s {
	case StageAll, StageDiscover, StageAnalyze, StageSync:
		return true
	}
	return false
}

// RunCounts are the aggregate statistics of one pipeline run.
type RunCounts struct {
	Discovered     int `json:"discovered"`
	Persisted      int `json:"persisted"`
	Analyzed       int `json:"analyzed"`
	AnalysisFailed int `json:"analysis_failed"`
	Indexed        int `json:"indexed"`
	Deindexed      int `json:"deindexed"`
	SyncFailed     int `json:"sync_failed"`
}

// Failures is the number of items that failed in any stage.
func (c RunCounts) Failures() int {
	return c.AnalysisFailed + c.SyncFailed
}

type PipelineRun struct {
	ID         uuid.UUID  `json:"id"`
	Trigger    string     `json:"trigger"`
	Stage      Stage      `json:"stage"`
	Status     RunStatus  `json:"status"`
	Counts     RunCounts  `json:"counts"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Stats summarizes the product table.
type Stats struct {
	Total            int                    `json:"total"`
	Analyzed         int                    `json:"analyzed"`
	AverageScore     float64                `json:"average_score"`
	ByCatalogStatus  map[CatalogStatus]int  `json:"by_catalog_status"`
	ByRecommendation map[Recommendation]int `json:"by_recommendation"`
	BySource         map[Source]int         `json:"by_source"`
}
