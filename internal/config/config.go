// Package config loads CLI settings from .elm.yaml, ELM_* environment
// variables and .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/folkelib/elm/mapping"
)

var AppFs = afero.NewOsFs()

// ErrNoMapping is returned when no mapping descriptor is configured.
var ErrNoMapping = errors.New("no mapping file configured (set mapping in .elm.yaml or pass --mapping)")

// Config holds the application configuration
type Config struct {
	Dialect     string
	DSN         string
	MappingPath string
	Naming      string
	Debug       bool
	// Requires is a version constraint the CLI must satisfy.
	Requires    string
}

// New returns a viper instance with the search paths, environment prefix
// and defaults of the CLI.
func New() (*viper.Viper, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigName(".elm")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "elm"))

	v.SetEnvPrefix("ELM")
	v.AutomaticEnv()

	v.SetDefault("dialect", "sqlite")
	v.SetDefault("mapping", "elm.yaml")
	v.SetDefault("naming", "default")
	v.SetDefault("debug", false)
	return v, nil
}

// loadEnv applies .env and then .env.local, which wins.
func loadEnv() {
	if _, err := AppFs.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		_ = godotenv.Overload(".env.local")
	}
}

// Load reads the configuration. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	loadEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Dialect:     v.GetString("dialect"),
		DSN:         v.GetString("dsn"),
		MappingPath: v.GetString("mapping"),
		Naming:      v.GetString("naming"),
		Debug:       v.GetBool("debug"),
		Requires:    v.GetString("requires"),
	}
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// Save writes cfg to ~/.config/elm/.elm.yaml.
func Save(cfg *Config) (string, error) {
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("dialect", cfg.Dialect)
	v.Set("mapping", cfg.MappingPath)
	v.Set("naming", cfg.Naming)
	v.Set("debug", cfg.Debug)

	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}

	configPath := filepath.Join(home, ".config", "elm")
	if err := AppFs.MkdirAll(configPath, 0o755); err != nil {
		return "", err
	}
	file := filepath.Join(configPath, ".elm.yaml")
	return file, v.WriteConfigAs(file)
}

// Mapper builds a mapper with the configured naming strategy and registers
// the descriptor file.
func (c *Config) Mapper() (*mapping.Mapper, error) {
	naming, err := mapping.NamingByName(c.Naming)
	if err != nil {
		return nil, err
	}
	m := mapping.NewMapper(mapping.WithNaming(naming))
	if c.MappingPath == "" {
		return nil, ErrNoMapping
	}
	f, err := AppFs.Open(c.MappingPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoMapping, c.MappingPath)
		}
		return nil, err
	}
	defer f.Close()

	d, err := mapping.ParseDescriptor(f)
	if err != nil {
		return nil, err
	}
	if err := m.RegisterDescriptors(d); err != nil {
		return nil, err
	}
	return m, nil
}

// Mappings returns the table mappings of the descriptor sorted by name,
// skipping complex types.
func Mappings(m *mapping.Mapper) ([]*mapping.TypeMapping, error) {
	var out []*mapping.TypeMapping
	for _, name := range m.Descriptors() {
		tm, err := m.ByName(name)
		if err != nil {
			return nil, err
		}
		if !tm.IsComplexType {
			out = append(out, tm)
		}
	}
	return out, nil
}
