package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pch10086/BUPT-Hotel/internal/types"
)

// EnvConfigPath names the config file when no --config flag is given.
const EnvConfigPath = "HOTEL_CONFIG"

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Hotel        HotelConfig        `yaml:"hotel"`
	Notification NotificationConfig `yaml:"notification"`
	HTTP         HTTPConfig         `yaml:"http"`
	Log          LogConfig          `yaml:"log"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds the sqlite connection configuration.
type DatabaseConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// SchedulerConfig 调度器参数
type SchedulerConfig struct {
	MaxServiceUnits  int           `yaml:"max_service_units"`
	TimeSliceSeconds int           `yaml:"time_slice_seconds"`
	TimeScaleMs      int64         `yaml:"time_scale_ms"`
	TickInterval     time.Duration `yaml:"tick_interval"`
}

// HotelConfig 开机时缺省的空调参数与房间初始化开关
type HotelConfig struct {
	DefaultTargetTemp float64        `yaml:"default_target_temp"`
	DefaultFanSpeed   types.FanSpeed `yaml:"default_fan_speed"`
	DefaultMode       types.Mode     `yaml:"default_mode"`
	SeedRooms         bool           `yaml:"seed_rooms"`
	PDFFontPath       string         `yaml:"pdf_font_path"` // UTF-8 TTF 字体，空则使用 Helvetica
}

// NotificationConfig holds the VAPID keys and worker pool size for web push.
type NotificationConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Workers         int    `yaml:"workers"`
	QueueSize       int    `yaml:"queue_size"`
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
	TTL             int    `yaml:"ttl"`
}

type HTTPConfig struct {
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	ReportCacheTTL time.Duration `yaml:"report_cache_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path:         "hotel.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Scheduler: SchedulerConfig{
			MaxServiceUnits:  3,
			TimeSliceSeconds: 120,
			TimeScaleMs:      10000,
			TickInterval:     time.Second,
		},
		Hotel: HotelConfig{
			DefaultTargetTemp: 25,
			DefaultFanSpeed:   types.SpeedMiddle,
			DefaultMode:       types.ModeCool,
			SeedRooms:         true,
		},
		Notification: NotificationConfig{
			Workers:    2,
			QueueSize:  100,
			Subscriber: "mailto:frontdesk@hotel.local",
			TTL:        60,
		},
		HTTP: HTTPConfig{
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			ReportCacheTTL: 10 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the configuration from the given path on top of the defaults.
// An empty path falls back to $HOTEL_CONFIG; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, cfg.Validate()
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the scheduler cannot run with.
func (c *Config) Validate() error {
	s := c.Scheduler
	if s.MaxServiceUnits < 1 {
		return fmt.Errorf("scheduler.max_service_units must be >= 1, got %d", s.MaxServiceUnits)
	}
	if s.TimeSliceSeconds <= 0 {
		return fmt.Errorf("scheduler.time_slice_seconds must be > 0, got %d", s.TimeSliceSeconds)
	}
	if s.TimeScaleMs <= 0 {
		return fmt.Errorf("scheduler.time_scale_ms must be > 0, got %d", s.TimeScaleMs)
	}
	if s.TickInterval < time.Second {
		return fmt.Errorf("scheduler.tick_interval must be at least 1s, got %s", s.TickInterval)
	}

	h := c.Hotel
	if !h.DefaultMode.Valid() {
		return fmt.Errorf("hotel.default_mode %q is invalid", h.DefaultMode)
	}
	if !h.DefaultFanSpeed.Valid() {
		return fmt.Errorf("hotel.default_fan_speed %q is invalid", h.DefaultFanSpeed)
	}
	if !types.TempRanges[h.DefaultMode].Contains(h.DefaultTargetTemp) {
		return fmt.Errorf("hotel.default_target_temp %.1f is out of range for %s", h.DefaultTargetTemp, h.DefaultMode)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is invalid", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	n := c.Notification
	if n.Enabled && (n.VAPIDPublicKey == "" || n.VAPIDPrivateKey == "") {
		return errors.New("notification.enabled requires vapid_public_key and vapid_private_key")
	}
	if n.Workers <= 0 {
		c.Notification.Workers = 1
	}
	if n.QueueSize <= 0 {
		c.Notification.QueueSize = 100
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 10
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = int(c.HTTP.RateLimitRPS) + 1
	}
	return nil
}
