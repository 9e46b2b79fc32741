package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageTaskStart  Stage = "TASK_START"
	StageTaskDone   Stage = "TASK_DONE"
	StageTaskFailed Stage = "TASK_FAILED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for task completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of a run or one of its tasks.
type Event struct {
	// RunID identifies the run that emitted the event.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Site scopes task events to a host label.
	Site     string
	EntityID string
	URL      string
	// Bytes is the size of the fetched page.
	Bytes       int64
	StatusClass StatusClass
	// FailureKind is set on TASK_FAILED.
	FailureKind crawler.FailureKind
	// Degraded lists the record fields no strategy could fill.
	Degraded []string
	// Dur is the task latency, or the run wall time on RUN_DONE/RUN_ERROR.
	Dur time.Duration
	// Counts carries the run summary on RUN_DONE.
	Counts *crawler.Summary
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTaskStart:
		if e.Site == "" || e.EntityID == "" {
			return errors.New("task start requires site and entity id")
		}
	case StageTaskDone:
		if e.Site == "" || e.EntityID == "" {
			return errors.New("task done requires site and entity id")
		}
		if e.StatusClass == "" {
			return errors.New("task done requires status class")
		}
	case StageTaskFailed:
		if e.Site == "" || e.EntityID == "" {
			return errors.New("task failed requires site and entity id")
		}
		if e.FailureKind == "" {
			return errors.New("task failed requires failure kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for task events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
