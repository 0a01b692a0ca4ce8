// Package config loads the routing service's configuration through
// koanf (github.com/knadh/koanf/v2, its yaml parser, file and env/v2
// providers): a base config/<env>.yaml is loaded first, then
// environment variables of the form HTTP_PORT override individual
// keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const defaultPath = "."

// Config is the root configuration tree for the routing service.
type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port"`
		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Graph      GraphConfig      `json:"graph" yaml:"graph"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Elevation  ElevationConfig  `json:"elevation" yaml:"elevation"`
	Routing    RoutingConfig    `json:"routing" yaml:"routing"`
	LoopConfig LoopSearchConfig `json:"loop" yaml:"loop" koanf:"loop"`
}

// GraphConfig locates the OSM PBF extract a graphbuilder.Builder reads
// from, and sizes its worker pool.
type GraphConfig struct {
	PBFPath string  `json:"pbfPath" yaml:"pbfPath"`
	Workers int     `json:"workers" yaml:"workers"`
	MarginM float64 `json:"marginM" yaml:"marginM"`
}

// CacheConfig configures the graphcache three-tier pipeline: tier-1 LRU
// capacity and the tier-2 blob directory.
type CacheConfig struct {
	Dir            string  `json:"dir" yaml:"dir"`
	Capacity       int     `json:"capacity" yaml:"capacity"`
	MaxBBoxAreaKM2 float64 `json:"maxBboxAreaKm2" yaml:"maxBboxAreaKm2"`

	// DatabaseURL is carried but never dialed by this module: an
	// out-of-scope persistence collaborator inspects its
	// presence/absence to decide whether to shadow-write cache
	// metadata externally.
	DatabaseURL string `json:"databaseUrl" yaml:"databaseUrl"`
}

// ElevationConfig configures the DEM-first, remote-fallback elevation
// Source.
type ElevationConfig struct {
	LocalDEMPath   string        `json:"localDemPath" yaml:"localDemPath"`
	RemoteBaseURL  string        `json:"remoteBaseUrl" yaml:"remoteBaseUrl"`
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"`
}

// RoutingConfig carries the default edge-weighting parameters applied
// when a request does not override them.
type RoutingConfig struct {
	PavedWeight      float64 `json:"pavedWeight" yaml:"pavedWeight"`
	PopulationWeight float64 `json:"populationWeight" yaml:"populationWeight"`
}

// LoopSearchConfig carries the defaults for loop-route generation.
type LoopSearchConfig struct {
	DefaultCandidateCount int     `json:"defaultCandidateCount" yaml:"defaultCandidateCount"`
	DefaultToleranceKM    float64 `json:"defaultToleranceKm" yaml:"defaultToleranceKm"`
}

type Log struct {
	Pretty       bool          `json:"pretty" yaml:"pretty"`
	Level        string        `json:"level" yaml:"level"`
	Path         string        `json:"path" yaml:"path"`
	MaxAge       time.Duration `json:"maxAge" yaml:"maxAge"`
	RotationTime time.Duration `json:"rotationTime" yaml:"rotationTime"`
}

// LoadWithEnv loads a <currEnv>.yaml file through koanf, then overlays
// environment variables (HTTP_PORT -> http.port) on top of it.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, fmt.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read %s config failed: %w", currEnv, err)
	}

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to env.var.name
			key := strings.ReplaceAll(strings.ToLower(k), "_", ".")

			return key, v
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load env variables failed: %w", err)
	}

	// Unmarshal into the config struct
	if err := koanfInstance.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal %s config failed: %w", currEnv, err)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects a config with a negative max_bbox_area_km2 or
// graph cache capacity, surfacing the problem at startup rather than
// silently operating on a nonsensical value.
func (c *Config) Validate() error {
	if c.Cache.MaxBBoxAreaKM2 < 0 {
		return fmt.Errorf("cache.maxBboxAreaKm2 must be non-negative, got %f", c.Cache.MaxBBoxAreaKM2)
	}

	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must be non-negative, got %d", c.Cache.Capacity)
	}

	return nil
}
