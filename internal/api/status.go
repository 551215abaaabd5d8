package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/crateloft/cratesync/internal/progress"
)

// statusResponse is the JSON shape of GET /status.
type statusResponse struct {
	RunID     string       `json:"run_id"`
	Total     int          `json:"total"`
	Completed int          `json:"completed"`
	Errors    int          `json:"errors"`
	Active    int          `json:"active"`
	StartedAt time.Time    `json:"started_at"`
	Shutdown  bool         `json:"shutdown"`
	Slots     []slotStatus `json:"slots"`
	Log       []string     `json:"log"`
}

type slotStatus struct {
	Index     int       `json:"index"`
	Status    string    `json:"status"`
	ReleaseID int64     `json:"release_id,omitempty"`
	Title     string    `json:"title,omitempty"`
	Step      string    `json:"step,omitempty"`
	Percent   int       `json:"percent"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Artifacts []string  `json:"artifacts,omitempty"`
}

func toStatusResponse(snap progress.Snapshot) statusResponse {
	resp := statusResponse{
		RunID:     uuid.UUID(snap.RunID).String(),
		Total:     snap.Total,
		Completed: snap.Completed,
		Errors:    snap.Errors,
		Active:    snap.Active,
		StartedAt: snap.StartedAt,
		Shutdown:  snap.Shutdown,
		Slots:     make([]slotStatus, 0, len(snap.Slots)),
		Log:       snap.Log,
	}
	for _, sl := range snap.Slots {
		resp.Slots = append(resp.Slots, slotStatus{
			Index:     sl.Index,
			Status:    string(sl.Status),
			ReleaseID: sl.ItemID,
			Title:     sl.Title,
			Step:      sl.Step,
			Percent:   sl.Percent,
			Error:     sl.Error,
			StartedAt: sl.StartedAt,
			Artifacts: sl.Artifacts,
		})
	}
	return resp
}
