package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/telehealth-meet/internal/adapters/database"
	"github.com/zatekoja/telehealth-meet/internal/domain/entities"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/telehealth-meet/internal/infrastructure/observability"
	"github.com/zatekoja/telehealth-meet/pkg/config"
)

// Lists meeting events from the ledger, by encounter or by status. Orphaned
// events are calendar events that could not be deleted after a failed link.
func main() {
	var encounterID string
	var status string
	var limit int

	flag.StringVar(&encounterID, "encounter", "", "List every event recorded for one encounter")
	flag.StringVar(&status, "status", string(entities.MeetingEventStatusOrphaned), "Status to list: linked, cancelled or orphaned")
	flag.IntVar(&limit, "limit", 100, "Max events to list by status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	observability.InitLogger("telehealth-meet-ledger", cfg.Server.Env, cfg.Settings.DebugLogging)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pgClient.Close()

	ledger := database.NewMeetingEventAdapter(pgClient.DB())

	var events []*entities.MeetingEvent
	if encounterID != "" {
		events, err = ledger.ListByEncounter(ctx, encounterID)
	} else {
		events, err = ledger.ListByStatus(ctx, entities.MeetingEventStatus(status), limit)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list meeting events")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tENCOUNTER\tEVENT\tSTATUS\tURL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.EncounterID, e.EventID, e.Status, e.URL)
	}
	if err := w.Flush(); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}
	log.Debug().Int("count", len(events)).Msg("Listed meeting events")
}
