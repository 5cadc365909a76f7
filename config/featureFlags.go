package config

import (
	"os"
	"strings"
)

// DriverImportArchiveEnabled stores a copy of every uploaded driver spreadsheet in object storage.
//
// Set via env:
// - DRIVER_IMPORT_ARCHIVE=true
func DriverImportArchiveEnabled() bool {
	return envTrue("DRIVER_IMPORT_ARCHIVE")
}

// NotificationsViaPubSub publishes operator notifications to NOTIFICATION_TOPIC
// in addition to the structured log.
//
// Set via env:
// - NOTIFY_PUBSUB=true
func NotificationsViaPubSub() bool {
	return envTrue("NOTIFY_PUBSUB")
}

// IsProduction reports GO_ENV=production.
func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

func envTrue(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
