// Package store persists a local ledger of research runs, so reports can be
// found and unfinished interactions resumed across invocations.
package store

import (
	"context"
	"time"

	"github.com/nstogner/deepprobe/pkg/research"
)

// Run is one research run tracked in the ledger. A run exists from the
// moment an interaction identifier is known, before any result does; its
// status and token count are filled in as the run progresses.
type Run struct {
	ID            string
	InteractionID string
	Topic         string
	Status        research.Status
	ReportPath    string
	TotalTokens   int
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// CompletedAt is zero until the run reaches a completed status.
	CompletedAt time.Time
}

// RunStore manages the persistence of research runs.
type RunStore interface {
	// Create persists a new run. The ID field must be set by the caller.
	Create(ctx context.Context, run *Run) error

	// Get retrieves a run by its interaction ID.
	// Returns an error if the run does not exist.
	Get(ctx context.Context, interactionID string) (*Run, error)

	// List returns all runs, ordered by creation time descending.
	List(ctx context.Context) ([]Run, error)

	// Update persists changes to an existing run, keyed by interaction ID.
	Update(ctx context.Context, run *Run) error
}
