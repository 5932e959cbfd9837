package main

import (
	"context"
	"log"

	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/sta1300/notifier-backend/internal/firebase"
	"github.com/sta1300/notifier-backend/internal/logging"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/store"
)

// Deletes registrations carrying an already registered token, one document per token value stays.
func main() {

	ctx := context.Background()

	conf, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("error loading config: %v\n", err)
	}
	ctx = logging.WithLogger(ctx, logging.NewLogger(conf.LogLevel))

	clients, err := firebase.NewClients(ctx, conf.Firebase)
	if err != nil {
		log.Fatalf("error initializing app: %v\n", err)
	}
	defer clients.Close()

	service := registry.NewService(registry.NewFirestoreRepository(store.NewClient(clients.Firestore)))

	report, err := service.CleanDuplicates(ctx)
	if err != nil {
		log.Fatalf("error cleaning duplicates: %v\n", err)
	}

	log.Printf("Checked %d registrations: %d duplicates, %d deleted, %d failed\n",
		report.Total, report.Duplicates, report.Deleted, len(report.Failed))
	for _, f := range report.Failed {
		log.Printf("failed to delete %v: %v\n", f.ID, f.Err)
	}
}
