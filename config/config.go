package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Source      SourceConfig      `mapstructure:"source"`
	Detection   DetectionConfig   `mapstructure:"detection"`
	Tracking    TrackingConfig    `mapstructure:"tracking"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	API         APIConfig         `mapstructure:"api"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DataDir  string `mapstructure:"data_dir"`
	Timezone string `mapstructure:"timezone"`
}

// LogConfig contains log settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig contains database settings (SQLite).
type DBConfig struct {
	File string `mapstructure:"file"`
}

// SourceConfig describes the video source and its fault-tolerance knobs.
type SourceConfig struct {
	// URL is a webcam index ("0"), a stream URL (rtsp/http/rtmp) or a file path.
	URL                  string `mapstructure:"url"`
	MaxWidth             int    `mapstructure:"max_width"`
	MaxHeight            int    `mapstructure:"max_height"`
	ReconnectDelaySec    int    `mapstructure:"reconnect_delay_sec"`
	MaxReconnectAttempts int    `mapstructure:"max_reconnect_attempts"` // 0 = unlimited
	ReadFailureThreshold int    `mapstructure:"read_failure_threshold"`
	LivenessWindowSec    int    `mapstructure:"liveness_window_sec"`
}

// DetectionConfig configures the person detector and its batching scheduler.
type DetectionConfig struct {
	Backend             string  `mapstructure:"backend"` // "dnn"
	ModelPath           string  `mapstructure:"model_path"`
	ConfigPath          string  `mapstructure:"config_path"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	BatchSize           int     `mapstructure:"batch_size"`
	BatchWindowMs       int     `mapstructure:"batch_window_ms"`
	QueueSize           int     `mapstructure:"queue_size"`
	IntervalMs          int     `mapstructure:"interval_ms"` // orchestrator cycle interval
	MinArea             int     `mapstructure:"min_area"`
	MinAspectRatio      float64 `mapstructure:"min_aspect_ratio"`
	MaxAspectRatio      float64 `mapstructure:"max_aspect_ratio"`
	MinWidth            int     `mapstructure:"min_width"`
	MaxWidth            int     `mapstructure:"max_width"`
	MinHeight           int     `mapstructure:"min_height"`
	MaxHeight           int     `mapstructure:"max_height"`
}

// TrackingConfig configures the IoU tracker.
type TrackingConfig struct {
	IoUThreshold   float64 `mapstructure:"iou_threshold"`
	MaxAge         int     `mapstructure:"max_age"`
	MinHits        int     `mapstructure:"min_hits"`
	FaceMemorySec  float64 `mapstructure:"face_memory_sec"`
	GracePeriodSec float64 `mapstructure:"grace_period_sec"`
}

// RecognitionConfig configures face localization, quality gating and matching.
type RecognitionConfig struct {
	Locator          string  `mapstructure:"locator"`  // "cascade"
	Embedder         string  `mapstructure:"embedder"` // "sface" or "dlib"
	CascadePath      string  `mapstructure:"cascade_path"`
	EmbedderModel    string  `mapstructure:"embedder_model"`
	DlibModelDir     string  `mapstructure:"dlib_model_dir"`
	Tolerance        float64 `mapstructure:"tolerance"`
	QualityThreshold float64 `mapstructure:"quality_threshold"`
}

// MQTTConfig contains the settings for the outbound MQTT publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// APIConfig contains API authentication settings.
type APIConfig struct {
	RequireKey bool `mapstructure:"require_key"`
}

// CleanupConfig contains retention settings.
type CleanupConfig struct {
	RetentionDays           int `mapstructure:"retention_days"`
	AttendanceRetentionDays int `mapstructure:"attendance_retention_days"` // 0 = keep forever
	CheckIntervalMin        int `mapstructure:"check_interval_min"`
}

// Load reads the configuration from file, environment and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables override the file.
	v.AutomaticEnv()
	v.SetEnvPrefix("LOOKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot start with.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url must not be empty")
	}
	if c.Detection.BatchSize < 1 {
		return fmt.Errorf("detection.batch_size must be at least 1, got %d", c.Detection.BatchSize)
	}
	if c.Detection.MinAspectRatio <= 0 || c.Detection.MaxAspectRatio <= c.Detection.MinAspectRatio {
		return fmt.Errorf("detection aspect ratio band [%f, %f] is invalid",
			c.Detection.MinAspectRatio, c.Detection.MaxAspectRatio)
	}
	if c.Tracking.IoUThreshold <= 0 || c.Tracking.IoUThreshold >= 1 {
		return fmt.Errorf("tracking.iou_threshold must be in (0, 1), got %f", c.Tracking.IoUThreshold)
	}
	if c.Recognition.Tolerance <= 0 {
		return fmt.Errorf("recognition.tolerance must be positive, got %f", c.Recognition.Tolerance)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.timezone", "UTC")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// DB
	v.SetDefault("db.file", "/data/lookout.db")

	// Source
	v.SetDefault("source.url", "0")
	v.SetDefault("source.max_width", 1280)
	v.SetDefault("source.max_height", 720)
	v.SetDefault("source.reconnect_delay_sec", 5)
	v.SetDefault("source.max_reconnect_attempts", 0)
	v.SetDefault("source.read_failure_threshold", 30)
	v.SetDefault("source.liveness_window_sec", 5)

	// Detection
	v.SetDefault("detection.backend", "dnn")
	v.SetDefault("detection.model_path", "/models/person/frozen_inference_graph.pb")
	v.SetDefault("detection.config_path", "/models/person/ssd_mobilenet_v2.pbtxt")
	v.SetDefault("detection.confidence_threshold", 0.5)
	v.SetDefault("detection.batch_size", 4)
	v.SetDefault("detection.batch_window_ms", 50)
	v.SetDefault("detection.queue_size", 16)
	v.SetDefault("detection.interval_ms", 500)
	v.SetDefault("detection.min_area", 3000)
	v.SetDefault("detection.min_aspect_ratio", 0.3)
	v.SetDefault("detection.max_aspect_ratio", 4.0)
	v.SetDefault("detection.min_width", 20)
	v.SetDefault("detection.max_width", 800)
	v.SetDefault("detection.min_height", 40)
	v.SetDefault("detection.max_height", 1200)

	// Tracking
	v.SetDefault("tracking.iou_threshold", 0.3)
	v.SetDefault("tracking.max_age", 3)
	v.SetDefault("tracking.min_hits", 1)
	v.SetDefault("tracking.face_memory_sec", 3.0)
	v.SetDefault("tracking.grace_period_sec", 2.0)

	// Recognition
	v.SetDefault("recognition.locator", "cascade")
	v.SetDefault("recognition.embedder", "sface")
	v.SetDefault("recognition.cascade_path", "/models/face/haarcascade_frontalface_default.xml")
	v.SetDefault("recognition.embedder_model", "/models/face/face_recognition_sface_2021dec.onnx")
	v.SetDefault("recognition.dlib_model_dir", "/models/dlib")
	v.SetDefault("recognition.tolerance", 0.6)
	v.SetDefault("recognition.quality_threshold", 0.25)

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "lookout")
	v.SetDefault("mqtt.topic", "lookout/events")

	// API
	v.SetDefault("api.require_key", false)

	// Cleanup
	v.SetDefault("cleanup.retention_days", 30)
	v.SetDefault("cleanup.attendance_retention_days", 365)
	v.SetDefault("cleanup.check_interval_min", 60)
}

func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return nil
}
