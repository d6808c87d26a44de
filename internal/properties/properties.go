// Package properties reads runtime settings from the environment. A .env file
// in the working directory is loaded first when present.
package properties

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads the given .env files, or ./.env when none is given. Variables
// already set in the environment win. Missing files are not an error.
func Load(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func RootPath() string {
	if p := os.Getenv("ROOT_PATH"); p != "" {
		return p
	}
	return "."
}

func DataDir() string {
	return stringOr("DATA_DIR", filepath.Join(RootPath(), "data"))
}

func CacheDir() string {
	return stringOr("CACHE_DIR", filepath.Join(DataDir(), "cache"))
}

func ImagesDir() string {
	return stringOr("IMAGES_DIR", filepath.Join(DataDir(), "images"))
}

// ExportURL is the default bucket for exports, e.g. file:///data/out or
// s3://bucket?region=eu-west-1.
func ExportURL() string {
	return os.Getenv("EXPORT_URL")
}

func LogLevel() string {
	return stringOr("LOG_LEVEL", "info")
}

func LogJSON() bool {
	return boolOr("LOG_JSON", false)
}

func BatchSize() int {
	return intOr("MOSAIC_BATCH_SIZE", 10)
}

func Workers() int {
	return intOr("WORKERS", 0)
}

func CopernicusClientIDs() string {
	return os.Getenv("COPERNICUS_CLIENT_ID")
}

func CopernicusClientSecrets() string {
	return os.Getenv("COPERNICUS_CLIENT_SECRET")
}

func CopernicusTokenURL() string {
	return os.Getenv("COPERNICUS_TOKEN_URL")
}

func CopernicusProcessURL() string {
	return os.Getenv("COPERNICUS_PROCESS_URL")
}

func CopernicusRetries() int {
	return intOr("COPERNICUS_RETRIES", 10)
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intOr(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func boolOr(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}
