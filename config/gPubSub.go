package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			// Uses Application Default Credentials (Cloud Run service account or GOOGLE_APPLICATION_CREDENTIALS).
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				// Another goroutine won the race; close ours.
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// PublishResultNotification publishes a result-ready notification payload and
// returns the Pub/Sub server-assigned message ID.
func PublishResultNotification(ctx context.Context, payload any) (string, error) {
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	topicName := os.Getenv("WHATSAPP_TOPIC")
	if topicName == "" {
		return "", errors.New("WHATSAPP_TOPIC is required")
	}

	t := client.Topic(topicName)
	msgJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
	})

	id, err := result.Get(ctx)
	return id, err
}
