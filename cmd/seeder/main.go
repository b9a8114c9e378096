package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/sharpsend/sendqueue/internal/config"
	"github.com/sharpsend/sendqueue/internal/logging"
	"github.com/sharpsend/sendqueue/internal/model"
	"github.com/sharpsend/sendqueue/internal/repository"
)

// Seeds a demo publisher with recipients across two segments and a couple of
// campaigns, enough to exercise expansion and dispatch locally.
func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	stores, err := repository.Open(cfg.Database, cfg.Queue.ScheduleGraceWindow)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer stores.DB.Close()

	ctx := context.Background()
	publisherID := os.Getenv("SEED_PUBLISHER_ID")
	if publisherID == "" {
		publisherID = "pub-demo"
	}

	recipients := []model.Recipient{
		{PublisherID: publisherID, Email: "amina@example.com", Name: "Amina Njoroge", Segment: "newsletter",
			Attributes: map[string]string{"plan": "pro", "city": "Nairobi"}},
		{PublisherID: publisherID, Email: "brian@example.com", Name: "Brian Otieno", Segment: "newsletter",
			Attributes: map[string]string{"plan": "free", "city": "Mombasa"}},
		{PublisherID: publisherID, Email: "carol@example.com", Name: "Carol Wanjiru", Segment: "trial",
			Attributes: map[string]string{"plan": "trial", "city": "Kisumu"}},
		{PublisherID: publisherID, Email: "david@example.com", Name: "David Kimani", Segment: "trial",
			Attributes: map[string]string{"plan": "trial", "city": "Nakuru"}},
		{PublisherID: publisherID, Email: "esther@example.com", Name: "Esther Achieng", Segment: "newsletter",
			Attributes: map[string]string{"plan": "pro", "city": "Eldoret"}},
	}
	for i := range recipients {
		if err := stores.Recipients.Create(ctx, &recipients[i]); err != nil {
			logger.Fatal().Err(err).Str("email", recipients[i].Email).Msg("seed recipient")
		}
		logger.Info().Str("id", recipients[i].ID).Str("email", recipients[i].Email).Msg("seeded recipient")
	}

	campaigns := []model.Campaign{
		{
			PublisherID:  publisherID,
			Name:         "September Newsletter",
			Subject:      "{name}, here is what's new",
			BaseTemplate: "Hi {name}, thanks for being on the {plan} plan. News from {city} and beyond inside.",
			Urgency:      model.UrgencyNormal,
		},
		{
			PublisherID:  publisherID,
			Name:         "Trial Expiry Reminder",
			Subject:      "Your trial ends soon, {name}",
			BaseTemplate: "Hi {name}, your trial is almost over. Upgrade today to keep sending.",
			Urgency:      model.UrgencyHigh,
		},
	}
	for i := range campaigns {
		if err := stores.Campaigns.Create(ctx, &campaigns[i]); err != nil {
			logger.Fatal().Err(err).Str("name", campaigns[i].Name).Msg("seed campaign")
		}
		logger.Info().Str("id", campaigns[i].ID).Str("name", campaigns[i].Name).Msg("seeded campaign")
	}

	fmt.Printf("Seeding completed for publisher %s\n", publisherID)
}
