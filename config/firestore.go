package config

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

var (
	fsClient   *firestore.Client
	fsClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getFirestoreProjectID() string {
	if v := os.Getenv("FIRESTORE_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return ""
}

// GetFirestoreClient returns the shared Firestore client, initializing it
// with retries on first use. Uses Application Default Credentials unless
// FIRESTORE_CREDENTIALS_JSON is provided.
func GetFirestoreClient(ctx context.Context) (*firestore.Client, error) {
	fsClientMu.Lock()
	if fsClient != nil {
		c := fsClient
		fsClientMu.Unlock()
		return c, nil
	}
	fsClientMu.Unlock()

	projectID := getFirestoreProjectID()
	if projectID == "" {
		return nil, errors.New("FIRESTORE_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("FIRESTORE_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *firestore.Client
			err error
		)
		if credJSON != "" {
			c, err = firestore.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = firestore.NewClient(ctx, projectID)
		}
		if err == nil {
			fsClientMu.Lock()
			if fsClient == nil {
				fsClient = c
			} else {
				_ = c.Close()
			}
			c2 := fsClient
			fsClientMu.Unlock()

			log.Printf("firestore client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to init firestore client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		time.Sleep(sleep)
	}
}
