// Package entity はingestフィーチャーのドメインモデルを定義します。
package entity

import (
	"fmt"
	"time"

	decks "cube_wizard/internal/feature/decks/domain/entity"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
)

// State is the lifecycle state of a submission unit.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// CanTransition reports whether a unit may move from s to next.
//
//	pending    -> processing
//	processing -> completed | failed | pending (crash recovery)
//	failed     -> processing (retry)
func (s State) CanTransition(next State) bool {
	switch s {
	case StatePending:
		return next == StateProcessing
	case StateProcessing:
		return next == StateCompleted || next == StateFailed || next == StatePending
	case StateFailed:
		return next == StateProcessing
	default:
		return false
	}
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageMetadata       Stage = "metadata"
	StageExtraction     Stage = "extraction"
	StageReconciliation Stage = "reconciliation"
	StagePersistence    Stage = "persistence"
	StageRelocation     Stage = "relocation"
)

// StageError ties a failure to the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Metadata is what a submission says about its deck.
type Metadata struct {
	Pilot   decks.Pilot `json:"pilot"`
	CubeRef string      `json:"cube_ref,omitempty"` // as written by the submitter
	CubeID  string      `json:"cube_id,omitempty"`
	Source  string      `json:"source"` // "csv", "filename" or "request"
}

// ImageCheckpoint is the saved progress of one image of a unit.
type ImageCheckpoint struct {
	SHA256     string                 `json:"sha256"`
	DeckID     string                 `json:"deck_id"`
	Extraction *extraction.Extraction `json:"extraction,omitempty"`
	Persisted  bool                   `json:"persisted"`
	Stage      Stage                  `json:"stage,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// SubmissionState is persisted inside the unit folder between runs.
type SubmissionState struct {
	State     State                      `json:"state"`
	Stage     Stage                      `json:"stage,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	Attempts  int                        `json:"attempts"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Images    map[string]ImageCheckpoint `json:"images,omitempty"`
}

// NewSubmissionState returns the state of a unit never seen before.
func NewSubmissionState() SubmissionState {
	return SubmissionState{State: StatePending, Images: map[string]ImageCheckpoint{}}
}

// Transition moves the state to next, rejecting illegal moves.
func (s *SubmissionState) Transition(next State, now time.Time) error {
	if !s.State.CanTransition(next) {
		return fmt.Errorf("illegal submission transition %s -> %s", s.State, next)
	}
	s.State = next
	s.UpdatedAt = now.UTC()
	if next != StateFailed {
		s.Stage = ""
		s.Reason = ""
	}
	return nil
}

// Unit is one submission folder found under the submission root.
type Unit struct {
	Name    string
	Path    string
	CSVPath string   // empty when the folder has no CSV
	Images  []string // absolute paths, sorted
	// ScanErr is set when the folder could not be read during discovery.
	// Such a unit is reported as failed and its state file is left alone.
	ScanErr error
}

// UnitOutcome is the report line for one unit.
type UnitOutcome struct {
	Name        string   `json:"name"`
	State       State    `json:"state"`
	Stage       Stage    `json:"stage,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	DeckIDs     []string `json:"deck_ids,omitempty"`
	Destination string   `json:"destination,omitempty"`
}

// BatchReport summarizes one run over a submission root.
type BatchReport struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Units      []UnitOutcome `json:"units"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"` // not started because the run was canceled
}
