package repositories

import (
	"context"

	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
)

// ErrEncounterNotFound is returned by Read when the FHIR store has no such encounter.
// Callers treat it as "nothing linked yet" rather than a failure.
var ErrEncounterNotFound = apperrors.NewNotFoundError("encounter not found")

// EncounterRepository defines access to Encounter resources in the clinical data store
type EncounterRepository interface {
	// Read retrieves an encounter by ID, or ErrEncounterNotFound
	Read(ctx context.Context, id string) (*entities.Encounter, error)

	// Create stores a new encounter and returns the stored resource
	Create(ctx context.Context, encounter *entities.Encounter) (*entities.Encounter, error)

	// Update replaces an encounter and returns the stored resource. When the
	// encounter carries a version ID the write is conditional on it.
	Update(ctx context.Context, encounter *entities.Encounter) (*entities.Encounter, error)
}
