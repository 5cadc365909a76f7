package utils

import (
	"os"
	"strings"
)

const (
	StorageProviderGCS  = "gcs"
	StorageProviderNone = "none"
)

// STORAGE_PROVIDER defaults to gcs.
func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderGCS
	}
	return provider
}
