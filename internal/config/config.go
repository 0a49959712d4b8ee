package config

import (
	"errors"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/crossfire-map/internal/domain"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	Email      string
	Password   string
	BaseURL    string
	APITimeout time.Duration

	ShapefilePath     string
	BoundaryNameField string
	OutputPath        string
	MapTitle          string
	LegendLabel       string

	VictimPolicy  domain.VictimPolicy
	MatchStrategy domain.MatchStrategy

	// HTTPAddr enables the map/metrics server after the run when non-empty.
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	LogFormat       string

	// Kafka publication is enabled when brokers are configured.
	KafkaBrokers     []string
	KafkaRowsTopic   string
	KafkaCountsTopic string
}

// KafkaEnabled reports whether flat rows should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	apiTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("API_TIMEOUT", "30s"))
	if err != nil || apiTimeout <= 0 {
		return nil, errors.New("invalid API_TIMEOUT")
	}

	victimPolicy, err := domain.ParseVictimPolicy(sharedcfg.EnvOrDefault("VICTIM_POLICY", "last"))
	if err != nil {
		return nil, errors.New("invalid VICTIM_POLICY: " + err.Error())
	}

	matchStrategy, err := domain.ParseMatchStrategy(sharedcfg.EnvOrDefault("MATCH_STRATEGY", "exact-first"))
	if err != nil {
		return nil, errors.New("invalid MATCH_STRATEGY: " + err.Error())
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		Email:      os.Getenv("FOGO_CRUZADO_EMAIL"),
		Password:   os.Getenv("FOGO_CRUZADO_PASSWORD"),
		BaseURL:    sharedcfg.EnvOrDefault("FOGO_CRUZADO_BASE_URL", "https://api-service.fogocruzado.org.br/api/v2"),
		APITimeout: apiTimeout,

		ShapefilePath:     sharedcfg.EnvOrDefault("SHAPEFILE_PATH", "data/BR_UF_2023.shp"),
		BoundaryNameField: sharedcfg.EnvOrDefault("BOUNDARY_NAME_FIELD", "NM_UF"),
		OutputPath:        sharedcfg.EnvOrDefault("OUTPUT_PATH", "ocorrencias.svg"),
		MapTitle:          sharedcfg.EnvOrDefault("MAP_TITLE", "Mapa de Ocorrências no Brasil"),
		LegendLabel:       sharedcfg.EnvOrDefault("LEGEND_LABEL", "Número de Ocorrências por Estado"),

		VictimPolicy:  victimPolicy,
		MatchStrategy: matchStrategy,

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),

		KafkaBrokers:     brokers,
		KafkaRowsTopic:   sharedcfg.EnvOrDefault("KAFKA_ROWS_TOPIC", "crossfire-occurrences"),
		KafkaCountsTopic: sharedcfg.EnvOrDefault("KAFKA_COUNTS_TOPIC", "crossfire-state-counts"),
	}

	if cfg.Email == "" {
		return nil, errors.New("FOGO_CRUZADO_EMAIL is required")
	}
	if cfg.Password == "" {
		return nil, errors.New("FOGO_CRUZADO_PASSWORD is required")
	}
	if cfg.ShapefilePath == "" {
		return nil, errors.New("SHAPEFILE_PATH is required")
	}
	if cfg.OutputPath == "" {
		return nil, errors.New("OUTPUT_PATH is required")
	}
	if cfg.KafkaEnabled() && (cfg.KafkaRowsTopic == "" || cfg.KafkaCountsTopic == "") {
		return nil, errors.New("KAFKA_ROWS_TOPIC and KAFKA_COUNTS_TOPIC are required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}
