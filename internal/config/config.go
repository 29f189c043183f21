package config

import (
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/commercegrid/adsync-api/internal/scheduler"
)

type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	AppID             string        `mapstructure:"app_id"`
	Secret            string        `mapstructure:"secret"`
	AccessToken       string        `mapstructure:"access_token"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	PageSize          int           `mapstructure:"page_size"`
	HydrateBatch      int           `mapstructure:"hydrate_batch"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	WorkerID           string        `mapstructure:"worker_id"`
	LockWait           time.Duration `mapstructure:"lock_wait"`
	TriggerMinInterval time.Duration `mapstructure:"trigger_min_interval"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
}

type Config struct {
	DatabaseURL string               `mapstructure:"database_url"`
	ServerPort  string               `mapstructure:"server_port"`
	Provider    ProviderConfig       `mapstructure:"provider"`
	Dispatch    DispatchConfig       `mapstructure:"dispatch"`
	Temporal    TemporalConfig       `mapstructure:"temporal"`
	Schedules   []scheduler.Schedule `mapstructure:"schedules"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.DatabaseURL == "" {
		log.Fatal("database_url must be set in the config file")
	}

	if config.Provider.BaseURL == "" {
		log.Fatal("provider.base_url must be set in the config file")
	}
	if config.Provider.RequestsPerSecond <= 0 {
		config.Provider.RequestsPerSecond = 8
	}
	if config.Provider.Burst <= 0 {
		config.Provider.Burst = 4
	}
	if config.Provider.PageSize <= 0 {
		config.Provider.PageSize = 100
	}
	if config.Provider.HydrateBatch <= 0 {
		config.Provider.HydrateBatch = 50
	}
	if config.Provider.Timeout <= 0 {
		config.Provider.Timeout = 30 * time.Second
	}

	if config.Dispatch.WorkerID == "" {
		config.Dispatch.WorkerID = "adsync-worker-1"
	}
	if config.Dispatch.LockWait <= 0 {
		config.Dispatch.LockWait = 5 * time.Second
	}

	if config.Temporal.HostPort == "" {
		config.Temporal.HostPort = "localhost:7233"
	}
	if config.Temporal.Namespace == "" {
		config.Temporal.Namespace = "default"
	}

	return &config
}
