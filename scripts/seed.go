package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/telehealth-meet/internal/adapters/healthcare"
	"github.com/zatekoja/telehealth-meet/internal/adapters/providers/calendar"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/clients/google"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/observability"
	"github.com/zatekoja/telehealth-meet/pkg/config"
)

// Seeds demo encounters into the configured FHIR store. With -linked every
// other encounter gets a mock meeting link so both UI states can be tried.
func main() {
	var count int
	var linked bool

	flag.IntVar(&count, "count", 4, "Number of encounters to create")
	flag.BoolVar(&linked, "linked", false, "Attach a mock meeting link to every other encounter")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	observability.InitLogger("telehealth-meet-seed", cfg.Server.Env, cfg.Settings.DebugLogging)

	ctx := context.Background()

	creds, err := google.NewServiceCredentials(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve Google credentials")
	}
	repo, err := healthcare.NewFHIRStoreAdapter(ctx, cfg.Settings.FHIRStore, creds.ClientOptions()...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create FHIR store adapter")
	}
	mock := calendar.NewMockAdapter()

	start := time.Now().UTC().Truncate(time.Hour).Add(time.Hour)
	for i := 0; i < count; i++ {
		slot := start.Add(time.Duration(i) * time.Hour)
		encounter := &entities.Encounter{
			ResourceType: entities.ResourceTypeEncounter,
			Status:       "planned",
			Period: &entities.Period{
				Start: slot.Format(time.RFC3339),
				End:   slot.Add(entities.DefaultMeetingLength).Format(time.RFC3339),
			},
		}

		created, err := repo.Create(ctx, encounter)
		if err != nil {
			log.Error().Err(err).Int("index", i).Msg("Failed to create encounter")
			continue
		}

		if linked && i%2 == 0 {
			event, err := mock.CreateEvent(ctx, nil, entities.MeetingRequest{
				EncounterID: created.ID,
				Start:       slot,
				End:         slot.Add(entities.DefaultMeetingLength),
			})
			if err != nil {
				log.Error().Err(err).Str("encounter_id", created.ID).Msg("Failed to create mock meeting")
				continue
			}
			updated, err := repo.Update(ctx, entities.WithMeetingURL(created, event.URL))
			if err != nil {
				log.Error().Err(err).Str("encounter_id", created.ID).Msg("Failed to link mock meeting")
				continue
			}
			created = updated
		}

		fmt.Printf("%s\t%s\t%s\n", created.ID, encounter.Period.Start, entities.MeetingURL(created))
	}
}
