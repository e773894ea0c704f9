package properties

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func DataPath() string {
	return filepath.Join(RootPath(), "data")
}

func GpkgPath() string {
	return getEnv("GPKG_PATH", filepath.Join(DataPath(), "raw", "datos.gpkg"))
}

func RasterPath() string {
	return getEnv("RASTER_PATH", filepath.Join(DataPath(), "raw", "bosque_no_bosque_2023.tif"))
}

func LayerConfigPath() string {
	return os.Getenv("LAYER_CONFIG_PATH")
}

func ResultPath() string {
	return getEnv("RESULT_PATH", filepath.Join(DataPath(), "result"))
}

func HttpPort() int {
	return getEnvInt("HTTP_PORT", 8080)
}

func DefaultGrpcPort() int {
	return getEnvInt("GRPC_PORT", 50051)
}

func LogFormat() string {
	return getEnv("LOG_FORMAT", "cli")
}

func GroqApiKey() string {
	return os.Getenv("GROQ_API_KEY")
}

func GroqBaseUrl() string {
	return getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1")
}

func GbifBaseUrl() string {
	return getEnv("GBIF_BASE_URL", "https://api.gbif.org")
}

func GoogleCloudProject() string {
	return os.Getenv("GOOGLE_CLOUD_PROJECT")
}

func EarthEngineBaseUrl() string {
	return getEnv("EE_BASE_URL", "https://earthengine.googleapis.com")
}

// GoogleOAuthClientID and GoogleOAuthClientSecret identify the installed-app
// client used when application default credentials are not available.
func GoogleOAuthClientID() string {
	return os.Getenv("GOOGLE_OAUTH_CLIENT_ID")
}

func GoogleOAuthClientSecret() string {
	return os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET")
}

func OpenDataBaseUrl() string {
	return getEnv("OPEN_DATA_BASE_URL", "https://www.datos.gov.co")
}

// SourceTimeout bounds every external call of a diagnostic run.
func SourceTimeout() time.Duration {
	return getEnvDuration("SOURCE_TIMEOUT", 90*time.Second)
}

func ChatTimeout() time.Duration {
	return getEnvDuration("CHAT_TIMEOUT", 2*time.Minute)
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}
func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

// GbifTimeout bounds each taxon group query.
func GbifTimeout() time.Duration {
	return getEnvDuration("GBIF_TIMEOUT", 30*time.Second)
}

// VectorMode is "overlay" (default) or "intersects_join".
func VectorMode() string {
	return getEnv("VECTOR_MODE", "overlay")
}
