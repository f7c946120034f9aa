package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// getGoogleClient initializes a Google Cloud Storage client.
// Prefers ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS);
// set GCS_CREDENTIALS_JSON to provide explicit JSON locally.
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// GCSExportsEnabled reports whether generated exports should be archived to
// a bucket.
func GCSExportsEnabled() bool {
	return strings.TrimSpace(os.Getenv("GCS_BUCKET")) != ""
}

// UploadExportToGCS archives a generated .xlsx export and returns the object
// path. Requires GCS_BUCKET.
func UploadExportToGCS(ctx context.Context, objectName string, data []byte) (string, error) {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return "", errors.New("GCS_BUCKET is required")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = xlsxContentType
	if err := writeAndClose(wc, data); err != nil {
		return "", err
	}
	return "gs://" + bucketName + "/" + objectName, nil
}

// writeAndClose writes the object body and always closes the writer; a failed
// write must still close so the upload is abandoned instead of leaking.
func writeAndClose(wc io.WriteCloser, data []byte) error {
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to upload export to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}
