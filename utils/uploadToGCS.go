package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

// detectSpreadsheetMime mirrors http.DetectContentType, which reports xlsx as a zip archive.
func detectSpreadsheetMime(objectName string, data []byte) string {
	mimeType := http.DetectContentType(data)
	if mimeType == "application/zip" && strings.HasSuffix(strings.ToLower(objectName), ".xlsx") {
		return xlsxMimeType
	}
	return mimeType
}

func UploadBytesToGCS(ctx context.Context, objectName string, data []byte, contentType string) error {
	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return errors.New("GCS_BUCKET is required")
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		return fmt.Errorf("failed to upload bytes to Google Cloud Storage: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %v", err)
	}
	return nil
}

// ArchiveSpreadsheet keeps a copy of an imported driver sheet under driver-imports/yyyy/mm/.
// Returns the object key.
func ArchiveSpreadsheet(ctx context.Context, fileName string, data []byte) (string, error) {
	if GetStorageProvider() != StorageProviderGCS {
		return "", fmt.Errorf("storage provider %q not supported", GetStorageProvider())
	}
	mimeType := detectSpreadsheetMime(fileName, data)
	if mimeType != xlsxMimeType {
		return "", fmt.Errorf("unsupported file type: %s", mimeType)
	}

	now := time.Now().UTC()
	objectKey := path.Join("driver-imports", now.Format("2006"), now.Format("01"), GenerateUniqueFilename()+"_"+path.Base(fileName))
	if err := UploadBytesToGCS(ctx, objectKey, data, mimeType); err != nil {
		return "", err
	}
	return objectKey, nil
}
