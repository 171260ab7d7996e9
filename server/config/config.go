package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Camera    CameraConfig    `json:"camera"`
	Detection DetectionConfig `json:"detection"`
	Stream    StreamConfig    `json:"stream"`
	Alert     AlertConfig     `json:"alert"`
	Location  LocationConfig  `json:"location"`
	Security  SecurityConfig  `json:"security"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
	StaticDir    string        `json:"static_dir"`
}

type CameraConfig struct {
	Mode         string        `json:"mode"`
	URL          string        `json:"url"`
	StreamPath   string        `json:"stream_path"`
	SnapshotPath string        `json:"snapshot_path"`
	DeviceID     int           `json:"device_id"`
	JPEGQuality  int           `json:"jpeg_quality"`
	StaleAfter   time.Duration `json:"stale_after"`
	MaxBackoff   time.Duration `json:"max_backoff"`
}

type DetectionConfig struct {
	Endpoint  string        `json:"endpoint"`
	Transport string        `json:"transport"`
	Method    string        `json:"method"`
	Timeout   time.Duration `json:"timeout"`
}

type StreamConfig struct {
	CaptureRetryDelay time.Duration `json:"capture_retry_delay"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
}

type AlertConfig struct {
	WarningSound  string `json:"warning_sound"`
	CriticalSound string `json:"critical_sound"`
	Player        string `json:"player"`
	PlayerCommand string `json:"player_command"`
}

type LocationConfig struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type SecurityConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst"`
	MaxRequestSize int64    `json:"max_request_size"`
	APIToken       string   `json:"-"`
}

type DatabaseConfig struct {
	Path       string          `json:"path"`
	MaxHazards int             `json:"max_hazards"`
	RecordFrom models.Priority `json:"record_from"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig reads .env (if present) and then the environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8090),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
			StaticDir:    getEnv("STATIC_DIR", "./client"),
		},
		Camera: CameraConfig{
			Mode:         getEnv("CAMERA_MODE", "mjpeg"),
			URL:          getEnv("CAMERA_URL", ""),
			StreamPath:   getEnv("CAMERA_STREAM_PATH", "/video"),
			SnapshotPath: getEnv("CAMERA_SNAPSHOT_PATH", "/shot.jpg"),
			DeviceID:     getEnvAsInt("CAMERA_DEVICE_ID", 0),
			JPEGQuality:  getEnvAsInt("CAMERA_JPEG_QUALITY", 60),
			StaleAfter:   getEnvAsDuration("CAMERA_STALE_AFTER", 5*time.Second),
			MaxBackoff:   getEnvAsDuration("CAMERA_MAX_BACKOFF", 10*time.Second),
		},
		Detection: DetectionConfig{
			Endpoint:  getEnv("DETECTION_ENDPOINT", "http://localhost:8080"),
			Transport: getEnv("DETECTION_TRANSPORT", "grpcweb"),
			Method:    getEnv("DETECTION_METHOD", "/hazard.HazardDetection/DetectHazard"),
			Timeout:   getEnvAsDuration("DETECTION_TIMEOUT", 15*time.Second),
		},
		Stream: StreamConfig{
			CaptureRetryDelay: getEnvAsDuration("CAPTURE_RETRY_DELAY", 100*time.Millisecond),
			ShutdownTimeout:   getEnvAsDuration("STREAM_SHUTDOWN_TIMEOUT", 20*time.Second),
		},
		Alert: AlertConfig{
			WarningSound:  getEnv("ALERT_WARNING_SOUND", "/static/warning.mp3"),
			CriticalSound: getEnv("ALERT_CRITICAL_SOUND", "/static/error.mp3"),
			Player:        getEnv("ALERT_PLAYER", "none"),
			PlayerCommand: getEnv("ALERT_PLAYER_COMMAND", "mpg123 -q"),
		},
		Location: LocationConfig{
			Latitude:  getEnvAsFloat("LOCATION_LATITUDE", 26.15),
			Longitude: getEnvAsFloat("LOCATION_LONGITUDE", 91.77),
		},
		Security: SecurityConfig{
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
			MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 64*1024),
			APIToken:       getEnv("API_TOKEN", ""),
		},
		Database: DatabaseConfig{
			Path:       getEnv("DB_PATH", "./hazard-cam.db"),
			MaxHazards: getEnvAsInt("DB_MAX_HAZARDS", 10000),
			RecordFrom: models.Priority(getEnvAsInt("HAZARD_LOG_MIN_PRIORITY", int(models.PriorityWarning))),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	switch c.Camera.Mode {
	case "mjpeg", "snapshot":
		if c.Camera.URL == "" {
			logger.Warn("Camera URL not set, waiting for it to be submitted")
		}
	case "device":
	default:
		errors = append(errors, fmt.Sprintf("unknown camera mode %q", c.Camera.Mode))
	}

	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		errors = append(errors, "JPEG quality must be between 1 and 100")
	}

	if c.Detection.Endpoint == "" {
		errors = append(errors, "detection endpoint is required")
	}

	if c.Detection.Transport != "grpcweb" && c.Detection.Transport != "grpc" {
		errors = append(errors, fmt.Sprintf("unknown detection transport %q", c.Detection.Transport))
	}

	if !strings.HasPrefix(c.Detection.Method, "/") {
		errors = append(errors, "detection method must be a full /package.Service/Method path")
	}

	if c.Detection.Timeout == 0 {
		logger.Warn("Detection timeout disabled, a stalled request will hold the loop")
	} else if c.Detection.Timeout < 0 {
		errors = append(errors, "detection timeout must not be negative")
	}

	if c.Alert.Player != "none" && c.Alert.Player != "command" {
		errors = append(errors, fmt.Sprintf("unknown alert player %q", c.Alert.Player))
	}

	if c.Alert.Player == "command" && strings.TrimSpace(c.Alert.PlayerCommand) == "" {
		errors = append(errors, "alert player command is required for the command player")
	}

	if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		errors = append(errors, "latitude must be between -90 and 90")
	}

	if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		errors = append(errors, "longitude must be between -180 and 180")
	}

	if c.Stream.CaptureRetryDelay <= 0 {
		errors = append(errors, "capture retry delay must be positive")
	}

	if c.Security.RateLimitRPS <= 0 || c.Security.RateLimitBurst <= 0 {
		errors = append(errors, "rate limit rps and burst must be positive")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Security.APIToken == "" && c.Server.Environment == "production" {
		logger.Warn("API_TOKEN not set, control routes are open to anyone who can reach the server")
	}

	if c.Database.Path == "" {
		errors = append(errors, "database path is required")
	}

	if !c.Database.RecordFrom.Valid() {
		errors = append(errors, "hazard log minimum priority must be between 0 and 3")
	}

	if c.Database.MaxHazards <= 0 {
		logger.Warn("Hazard log retention disabled, the database grows without bound")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
