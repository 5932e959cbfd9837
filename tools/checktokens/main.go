package main

import (
	"context"
	"log"

	"github.com/sta1300/notifier-backend/internal/config"
	"github.com/sta1300/notifier-backend/internal/firebase"
	"github.com/sta1300/notifier-backend/internal/registry"
	"github.com/sta1300/notifier-backend/internal/store"
)

// Lists registered devices. Configured by the same environment as the server.
func main() {

	ctx := context.Background()

	conf, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("error loading config: %v\n", err)
	}

	clients, err := firebase.NewClients(ctx, conf.Firebase)
	if err != nil {
		log.Fatalf("error initializing app: %v\n", err)
	}
	defer clients.Close()

	service := registry.NewService(registry.NewFirestoreRepository(store.NewClient(clients.Firestore)))

	summaries, err := service.Inventory(ctx)
	if err != nil {
		log.Fatalf("error listing registrations: %v\n", err)
	}

	log.Printf("Found %d registered devices\n", len(summaries))
	for _, s := range summaries {
		lastUsed := "never"
		if s.LastUsed != nil {
			lastUsed = s.LastUsed.Format("2006-01-02 15:04:05")
		}
		log.Printf("%v: token %v platform %v created %v last used %v\n",
			s.ID, s.TokenPrefix, s.Platform, s.CreatedAt.Format("2006-01-02 15:04:05"), lastUsed)
	}
}
