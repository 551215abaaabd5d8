package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind denotes the milestone represented by an Event.
type Kind string

// Supported progress kinds.
const (
	KindItemStart Kind = "ITEM_START"
	KindStep      Kind = "STEP"
	KindArtifact  Kind = "ARTIFACT"
	KindItemDone  Kind = "ITEM_DONE"
	KindItemError Kind = "ITEM_ERROR"
)

// Event captures a single slot-tagged progress milestone. The JSON form is
// the wire format between process-substrate children and the parent.
type Event struct {
	// RunID identifies the sync run using the 16-byte UUID form. The
	// aggregator stamps it; trackers leave it zero.
	RunID [16]byte `json:"run_id"`
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time `json:"ts"`
	// Kind denotes which milestone occurred.
	Kind Kind `json:"kind"`
	// Slot is the fixed index of the reporting worker slot.
	Slot int `json:"slot"`
	// Seq is the global item sequence index. The aggregator assigns it on
	// ITEM_START and echoes it on later events for the same slot.
	Seq int64 `json:"seq,omitempty"`
	// ItemID names the release being processed.
	ItemID int64 `json:"item_id,omitempty"`
	// Title is the human-readable item name (ITEM_START only).
	Title string `json:"title,omitempty"`
	// Step is the current step description (STEP only).
	Step string `json:"step,omitempty"`
	// Percent is the item-level progress 0..100 (STEP only).
	Percent int `json:"percent,omitempty"`
	// Artifact is a produced file path (ARTIFACT only).
	Artifact string `json:"artifact,omitempty"`
	// Note carries the failure message on ITEM_ERROR.
	Note string `json:"note,omitempty"`
	// Dur captures the item wall time on completion events.
	Dur time.Duration `json:"dur,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Slot < 0 {
		return errors.New("slot must be >= 0")
	}
	switch e.Kind {
	case KindItemStart:
		if e.ItemID == 0 {
			return errors.New("item start requires item id")
		}
	case KindStep:
		if e.Step == "" {
			return errors.New("step requires description")
		}
	case KindArtifact:
		if e.Artifact == "" {
			return errors.New("artifact requires path")
		}
	case KindItemDone, KindItemError:
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Clock abstracts time so aggregate behavior is testable.
type Clock interface {
	Now() time.Time
}
