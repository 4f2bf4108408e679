// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/timecards/internal/model"
)

// TimecardRepository stores timecard aggregates with optimistic concurrency on RecordVersion.
type TimecardRepository interface {
	// Create inserts a new aggregate and assigns its RecordIdentity.
	Create(ctx context.Context, tc *model.Timecard) error

	// Get loads a single aggregate by identity.
	Get(ctx context.Context, id model.TimecardIdentity) (*model.Timecard, error)

	// List returns all aggregates ordered by RecordIdentity.
	List(ctx context.Context) ([]*model.Timecard, error)

	// Save persists tc if the stored version equals baseVer and returns the new version.
	Save(ctx context.Context, tc *model.Timecard, baseVer int) (int, error)

	// Delete removes an aggregate with base version check.
	Delete(ctx context.Context, id model.TimecardIdentity, baseVer int) error
}
