package config

import (
	"strings"
	"testing"
	"time"

	"github.com/san-kum/hazard-cam/server/models"
	"go.uber.org/zap"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.Camera.JPEGQuality != 60 {
		t.Errorf("JPEGQuality = %d, want 60", cfg.Camera.JPEGQuality)
	}
	if cfg.Camera.StreamPath != "/video" {
		t.Errorf("StreamPath = %q, want /video", cfg.Camera.StreamPath)
	}
	if cfg.Detection.Transport != "grpcweb" {
		t.Errorf("Transport = %q, want grpcweb", cfg.Detection.Transport)
	}
	if cfg.Detection.Method != "/hazard.HazardDetection/DetectHazard" {
		t.Errorf("Method = %q", cfg.Detection.Method)
	}
	if cfg.Database.RecordFrom != models.PriorityWarning || cfg.Database.MaxHazards != 10000 {
		t.Errorf("Database = %+v, want warnings and above with 10000 rows kept", cfg.Database)
	}
	if cfg.Location.Latitude != 26.15 || cfg.Location.Longitude != 91.77 {
		t.Errorf("Location = %v,%v, want placeholder 26.15,91.77", cfg.Location.Latitude, cfg.Location.Longitude)
	}
	if err := cfg.ValidateConfig(zap.NewNop()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("CAMERA_URL", "http://192.168.1.20:8080")
	t.Setenv("DETECTION_TIMEOUT", "3s")
	t.Setenv("LOCATION_LATITUDE", "12.5")
	t.Setenv("ALLOWED_ORIGINS", "http://a,http://b")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg := LoadConfig()

	if cfg.Camera.URL != "http://192.168.1.20:8080" {
		t.Errorf("Camera.URL = %q", cfg.Camera.URL)
	}
	if cfg.Detection.Timeout != 3*time.Second {
		t.Errorf("Detection.Timeout = %v, want 3s", cfg.Detection.Timeout)
	}
	if cfg.Location.Latitude != 12.5 {
		t.Errorf("Location.Latitude = %v, want 12.5", cfg.Location.Latitude)
	}
	if len(cfg.Security.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want 2 entries", cfg.Security.AllowedOrigins)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("unparseable port should fall back to default, got %d", cfg.Server.Port)
	}
}

func TestValidateConfig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"bad mode", func(c *Config) { c.Camera.Mode = "webrtc" }, "unknown camera mode"},
		{"bad quality", func(c *Config) { c.Camera.JPEGQuality = 101 }, "JPEG quality"},
		{"no endpoint", func(c *Config) { c.Detection.Endpoint = "" }, "detection endpoint"},
		{"bad transport", func(c *Config) { c.Detection.Transport = "rest" }, "unknown detection transport"},
		{"bad method", func(c *Config) { c.Detection.Method = "DetectHazard" }, "detection method"},
		{"negative timeout", func(c *Config) { c.Detection.Timeout = -time.Second }, "timeout must not be negative"},
		{"bad player", func(c *Config) { c.Alert.Player = "speaker" }, "unknown alert player"},
		{"empty command", func(c *Config) { c.Alert.Player = "command"; c.Alert.PlayerCommand = " " }, "player command"},
		{"bad latitude", func(c *Config) { c.Location.Latitude = 91 }, "latitude"},
		{"no db", func(c *Config) { c.Database.Path = "" }, "database path"},
		{"bad record priority", func(c *Config) { c.Database.RecordFrom = 4 }, "minimum priority"},
		{"zero retry delay", func(c *Config) { c.Stream.CaptureRetryDelay = 0 }, "capture retry delay"},
		{"negative retry delay", func(c *Config) { c.Stream.CaptureRetryDelay = -time.Millisecond }, "capture retry delay"},
		{"zero rate", func(c *Config) { c.Security.RateLimitRPS = 0 }, "rate limit"},
		{"zero burst", func(c *Config) { c.Security.RateLimitBurst = 0 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			tt.mutate(cfg)
			err := cfg.ValidateConfig(zap.NewNop())
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
