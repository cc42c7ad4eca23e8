package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-organizer/internal/cluster"
	"github.com/kozaktomas/face-organizer/internal/face"
	"github.com/kozaktomas/face-organizer/internal/roster"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Perception PerceptionConfig
	Database   DatabaseConfig
	Thumbnails ThumbnailConfig
	Roster     RosterConfig
	Web        WebConfig
	Clustering ClusteringDefaults
}

type PerceptionConfig struct {
	URL  string // defaults to http://localhost:8000
	Mode string // face | face_context, defaults to face
}

type DatabaseConfig struct {
	Driver       string // postgres | mariadb, defaults to postgres
	URL          string // connection URL / DSN
	MaxOpenConns int    // maximum open connections (default 25)
	MaxIdleConns int    // maximum idle connections (default 5)
}

type ThumbnailConfig struct {
	Dir string // defaults to ./thumbnails
}

type RosterConfig struct {
	// Auto-match knobs; zero means use the built-in policy default.
	Threshold     float64
	MinConfidence float64
	MinGap        float64
}

type WebConfig struct {
	Port int // defaults to 8080
}

// ClusteringDefaults carries the per-mode clustering defaults from the
// embedded defaults.yaml.
type ClusteringDefaults struct {
	Modes map[string]ModeDefaults `yaml:"modes"`
}

// ModeDefaults mirrors cluster.Options for one recognition mode.
type ModeDefaults struct {
	Strategy      string  `yaml:"strategy"`
	Threshold     float64 `yaml:"threshold"`
	QualityGate   float64 `yaml:"quality_gate"`
	Iterations    int     `yaml:"iterations"`
	QualityMix    float64 `yaml:"quality_mix"`
	PrimaryWeight float64 `yaml:"primary_weight"`
	ContextWeight float64 `yaml:"context_weight"`
	Margin        float64 `yaml:"margin"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative
// float. Returns the default value if the env var is unset, empty, or
// invalid. Zero is a valid override; an explicit "0" is honored.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults ClusteringDefaults
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// Embedded file, cannot fail in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Perception: PerceptionConfig{
			URL:  os.Getenv("PERCEPTION_URL"),
			Mode: envString("RECOGNITION_MODE", string(face.ModeFaceOnly)),
		},
		Database: DatabaseConfig{
			Driver:       envString("DATABASE_DRIVER", "postgres"),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Thumbnails: ThumbnailConfig{
			Dir: envString("THUMBNAIL_DIR", "./thumbnails"),
		},
		// -1 marks unset; envFloat never returns negatives, so an explicit
		// "0" survives as a valid override.
		Roster: RosterConfig{
			Threshold:     envFloat("MATCH_THRESHOLD", -1),
			MinConfidence: envFloat("MATCH_MIN_CONFIDENCE", -1),
			MinGap:        envFloat("MATCH_MIN_GAP", -1),
		},
		Web: WebConfig{
			Port: envInt("WEB_PORT", 8080),
		},
		Clustering: defaults,
	}
}

// ClusterOptions builds cluster.Options for the given recognition mode,
// starting from the embedded per-mode defaults and applying CLUSTER_*
// environment overrides. Unknown modes fall back to face-only defaults.
func (c *Config) ClusterOptions(mode face.RecognitionMode) cluster.Options {
	opts := cluster.DefaultOptions()

	if m, ok := c.Clustering.Modes[string(mode)]; ok {
		opts.Strategy = cluster.Strategy(m.Strategy)
		opts.Threshold = m.Threshold
		opts.QualityGate = m.QualityGate
		opts.Iterations = m.Iterations
		opts.QualityMix = m.QualityMix
		opts.PrimaryWeight = m.PrimaryWeight
		opts.ContextWeight = m.ContextWeight
		opts.Margin = m.Margin
	}

	if s := os.Getenv("CLUSTER_STRATEGY"); s != "" {
		opts.Strategy = cluster.Strategy(s)
	}
	opts.Threshold = envFloat("CLUSTER_THRESHOLD", opts.Threshold)
	opts.QualityGate = envFloat("CLUSTER_QUALITY_GATE", opts.QualityGate)
	opts.Iterations = envInt("CLUSTER_ITERATIONS", opts.Iterations)
	opts.Margin = envFloat("CLUSTER_MARGIN", opts.Margin)

	return opts
}

// AutoMatchPolicy merges the env-configured roster knobs over the built-in
// policy defaults.
func (c *Config) AutoMatchPolicy() roster.AutoMatchPolicy {
	p := roster.DefaultAutoMatchPolicy()
	if c.Roster.Threshold >= 0 {
		p.Threshold = c.Roster.Threshold
	}
	if c.Roster.MinConfidence >= 0 {
		p.MinConfidence = c.Roster.MinConfidence
	}
	if c.Roster.MinGap >= 0 {
		p.MinGap = c.Roster.MinGap
	}
	return p
}
