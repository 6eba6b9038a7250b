// Package config loads the YAML configuration shared by the CLI and the
// host server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/tobsdb/jsondb"
	"github.com/tobsdb/jsondb/codec"
	"github.com/tobsdb/jsondb/internal/parser"
	"github.com/tobsdb/jsondb/pkg"
	"github.com/tobsdb/jsondb/storage"
	"gopkg.in/yaml.v3"
)

const (
	StorageDir    = "dir"
	StorageBolt   = "bolt"
	StorageMemory = "memory"
)

var VALID_STORAGE = []string{StorageDir, StorageBolt, StorageMemory}

// name of the bolt file inside DataDir
const bolt_file = "jsondb.bolt"

type Config struct {
	DataDir     string `yaml:"data_dir"`
	Storage     string `yaml:"storage"`
	Codec       string `yaml:"codec"`
	Compression string `yaml:"compression"`
	LogLevel    string `yaml:"log_level"`
	// Schema is an optional DSL file applied when the database opens.
	Schema string       `yaml:"schema,omitempty"`
	Server ServerConfig `yaml:"server"`
}

type ServerConfig struct {
	Port          int           `yaml:"port"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	// RateLimit is the number of requests per second allowed on one
	// connection. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

func Default() *Config {
	return &Config{
		DataDir:     "./data",
		Storage:     StorageDir,
		Codec:       codec.Default.Name(),
		Compression: codec.NoCompression{}.Name(),
		LogLevel:    "error",
		Server: ServerConfig{
			Port:          7085,
			FlushInterval: time.Second,
			Burst:         16,
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		pkg.DebugLog("config file not found, using defaults", "path", path)
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if !slices.Contains(VALID_STORAGE, c.Storage) {
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if c.Storage != StorageMemory && c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return err
	}
	if _, err := codec.CompressorByName(c.Compression); err != nil {
		return err
	}
	if _, err := pkg.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.FlushInterval < 0 {
		return errors.New("flush_interval must not be negative")
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		return errors.New("rate_limit and burst must not be negative")
	}
	return nil
}

func (c *Config) ApplyLogLevel() error {
	level, err := pkg.ParseLogLevel(c.LogLevel)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)
	return nil
}

// Options opens the configured storage and maps the rest of the config to
// database options. The caller owns the storage once the database is open.
func (c *Config) Options() (jsondb.Options, error) {
	if err := c.Validate(); err != nil {
		return jsondb.Options{}, err
	}
	cd, _ := codec.ByName(c.Codec)
	comp, _ := codec.CompressorByName(c.Compression)
	opts := jsondb.Options{Codec: cd, Compressor: comp}

	switch c.Storage {
	case StorageDir:
		s, err := storage.NewDirStorage(c.DataDir)
		if err != nil {
			return opts, err
		}
		opts.Storage = s
	case StorageBolt:
		if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
			return opts, fmt.Errorf("failed to create data dir: %w", err)
		}
		s, err := storage.NewBoltStorage(filepath.Join(c.DataDir, bolt_file))
		if err != nil {
			return opts, err
		}
		opts.Storage = s
	case StorageMemory:
		opts.Storage = storage.NewMemStorage()
	}
	return opts, nil
}

// Open opens the database described by c.
func (c *Config) Open() (*jsondb.JsonDatabase, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}
	db, err := jsondb.Open(opts)
	if err != nil {
		opts.Storage.Close()
		return nil, err
	}
	if c.Schema == "" {
		return db, nil
	}

	if err := c.applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (c *Config) applySchema(db *jsondb.JsonDatabase) error {
	data, err := os.ReadFile(c.Schema)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	defs, err := parser.ParseSchema(string(data))
	if err != nil {
		return err
	}
	created, err := parser.Apply(db, defs)
	if err != nil {
		return err
	}
	if len(created) > 0 {
		pkg.InfoLog("tables created from schema", "schema", c.Schema, "tables", created)
	}
	return nil
}
