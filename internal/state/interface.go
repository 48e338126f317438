package state

import (
	"io"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// FrameStore records swarm runs.
type FrameStore interface {
	CreateFrame(f *Frame) error
	CloseFrame(id string, out FrameOutcome) error
	GetFrame(id string) (*Frame, error)
	ListFrames(limit int) ([]Frame, error)
}

// EventJournal persists the coordination log.
type EventJournal interface {
	AppendEvent(swarmID string, ev models.CoordinationEvent) error
	ListEvents(swarmID string) ([]models.CoordinationEvent, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// AuditStore is the full audit sink used by the swarm.
type AuditStore interface {
	io.Closer
	Migrator
	FrameStore
	EventJournal
}

var (
	_ AuditStore   = (*DB)(nil)
	_ FrameStore   = (*DB)(nil)
	_ EventJournal = (*DB)(nil)
)
