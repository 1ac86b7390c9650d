package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. KANADECK_DB.
const EnvPrefix = "KANADECK_"

// Config holds the application settings.
type Config struct {
	DB      string `koanf:"db" validate:"required"`
	Addr    string `koanf:"addr" validate:"required"`
	Log     string `koanf:"log" validate:"oneof=dev prod"`
	Deck    string `koanf:"deck" validate:"required"`
	Repos   string `koanf:"repos" validate:"required"`
	Workers int    `koanf:"workers" validate:"min=1,max=32"`
	Seed    bool   `koanf:"seed"`
}

// RegisterFlags adds the config flags, with their defaults, to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "kanadeck.yaml", "Path to an optional YAML config file")
	flags.String("db", "kanadeck.db", "Path to the SQLite database file")
	flags.String("addr", ":8080", "Address the HTTP API listens on")
	flags.String("log", "dev", "Log mode: dev or prod")
	flags.String("deck", "default", "Deck used by commands that act on a single deck")
	flags.String("repos", "repos", "Directory git sources are checked out into")
	flags.Int("workers", 4, "Number of sources synced concurrently")
	flags.Bool("seed", true, "Seed new decks with example cards")
}

// Load builds the configuration from, in increasing priority: the YAML file
// named by --config (if it exists), KANADECK_* environment variables, and
// flags set on the command line. Flag defaults fill anything left unset.
func Load(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path, err := flags.GetString("config")
	if err != nil {
		return Config{}, fmt.Errorf("config flag: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return Config{}, fmt.Errorf("read flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks cfg for missing or out of range values.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
