package healthcare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/domain/repositories"
	apperrors "github.com/zatekoja/telehealth-meet/pkg/errors"
	"google.golang.org/api/googleapi"
	healthcare "google.golang.org/api/healthcare/v1"
	"google.golang.org/api/option"
)

const fhirContentType = "application/fhir+json;charset=utf-8"

// FHIRStoreAdapter implements EncounterRepository on a Cloud Healthcare FHIR store
type FHIRStoreAdapter struct {
	fhir  *healthcare.ProjectsLocationsDatasetsFhirStoresFhirService
	store string
}

// NewFHIRStoreAdapter creates an encounter repository for the FHIR store at
// store, e.g. projects/p/locations/l/datasets/d/fhirStores/s
func NewFHIRStoreAdapter(ctx context.Context, store string, opts ...option.ClientOption) (repositories.EncounterRepository, error) {
	svc, err := healthcare.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create healthcare service: %w", err)
	}
	return &FHIRStoreAdapter{
		fhir:  svc.Projects.Locations.Datasets.FhirStores.Fhir,
		store: strings.TrimSuffix(store, "/"),
	}, nil
}

func (a *FHIRStoreAdapter) resourceName(id string) string {
	return fmt.Sprintf("%s/fhir/%s/%s", a.store, entities.ResourceTypeEncounter, id)
}

// Read fetches an encounter by id
func (a *FHIRStoreAdapter) Read(ctx context.Context, id string) (*entities.Encounter, error) {
	resp, err := a.fhir.Read(a.resourceName(id)).Context(ctx).Do()
	if err != nil {
		return nil, apperrors.NewExternalError("failed to read encounter", err)
	}
	return decodeEncounter(resp, "read")
}

// Create stores a new encounter; the store assigns its id
func (a *FHIRStoreAdapter) Create(ctx context.Context, enc *entities.Encounter) (*entities.Encounter, error) {
	if enc == nil {
		return nil, apperrors.NewValidationError("encounter is required")
	}

	body, err := encodeEncounter(enc)
	if err != nil {
		return nil, err
	}

	call := a.fhir.Create(a.store, entities.ResourceTypeEncounter, body)
	call.Header().Set("Content-Type", fhirContentType)

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, apperrors.NewExternalError("failed to create encounter", err)
	}
	return decodeEncounter(resp, "create")
}

// Update replaces the encounter with enc. When enc carries a version id the
// write only succeeds if the stored version still matches.
func (a *FHIRStoreAdapter) Update(ctx context.Context, enc *entities.Encounter) (*entities.Encounter, error) {
	if enc == nil || enc.ID == "" {
		return nil, apperrors.NewValidationError("encounter id is required")
	}

	versionID := enc.VersionID()
	body, err := encodeEncounter(enc)
	if err != nil {
		return nil, err
	}

	call := a.fhir.Update(a.resourceName(enc.ID), body)
	call.Header().Set("Content-Type", fhirContentType)
	if versionID != "" {
		call.Header().Set("If-Match", fmt.Sprintf(`W/"%s"`, versionID))
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, apperrors.NewExternalError("failed to update encounter", err)
	}
	return decodeEncounter(resp, "update")
}

// encodeEncounter serializes enc without the meta fields the store assigns
func encodeEncounter(enc *entities.Encounter) (io.Reader, error) {
	out := enc.Clone()
	if out.ResourceType == "" {
		out.ResourceType = entities.ResourceTypeEncounter
	}
	if out.Meta != nil {
		out.Meta.VersionID = ""
		out.Meta.LastUpdated = ""
		if len(out.Meta.Tag) == 0 {
			out.Meta = nil
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode encounter", err)
	}
	return bytes.NewReader(data), nil
}

func decodeEncounter(resp *http.Response, op string) (*entities.Encounter, error) {
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, mapStoreError(err, op)
	}

	var enc entities.Encounter
	if err := json.NewDecoder(resp.Body).Decode(&enc); err != nil {
		return nil, apperrors.NewExternalError(fmt.Sprintf("failed to decode %s response", op), err)
	}
	return &enc, nil
}

func mapStoreError(err error, op string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusGone:
			return repositories.ErrEncounterNotFound
		case http.StatusPreconditionFailed:
			return apperrors.NewConflictError("encounter was modified concurrently", err)
		}
		log.Warn().Int("status", gerr.Code).Str("operation", op).Msg("FHIR store request failed")
	}
	return apperrors.NewExternalError(fmt.Sprintf("failed to %s encounter", op), err)
}
