package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"tinyrsa/tinyrsa"
)

// Config holds the settings shared by the server and the CLI.
type Config struct {
	ListenAddr      string   `json:"listen_addr"`
	DBPath          string   `json:"db_path"`
	Rounds          int      `json:"rounds"`
	MinBitLength    int      `json:"min_bit_length"`
	MaxBitLength    int      `json:"max_bit_length"`
	GenerateTimeout Duration `json:"generate_timeout"`
	H2C             bool     `json:"h2c"`
	LogLevel        string   `json:"log_level"`
}

// Duration is a time.Duration read from a string such as "30s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parse duration %q", s)
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		DBPath:          "./rsa.db",
		Rounds:          tinyrsa.DefaultRounds,
		MinBitLength:    2,
		MaxBitLength:    1024,
		GenerateTimeout: Duration(30 * time.Second),
		LogLevel:        "info",
	}
}

// Load reads a JSON config file over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Validate checks the ranges of every field.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.Rounds < 1 {
		return errors.Errorf("invalid rounds: %d", c.Rounds)
	}
	if c.MinBitLength < 2 {
		return errors.Errorf("invalid min_bit_length: %d", c.MinBitLength)
	}
	if c.MaxBitLength < c.MinBitLength {
		return errors.Errorf("max_bit_length %d below min_bit_length %d", c.MaxBitLength, c.MinBitLength)
	}
	if c.GenerateTimeout < 0 {
		return errors.Errorf("invalid generate_timeout: %s", time.Duration(c.GenerateTimeout))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log_level")
	}
	return nil
}

// CheckBitLength reports whether l is inside the configured range.
func (c *Config) CheckBitLength(l int) error {
	if l < c.MinBitLength || l > c.MaxBitLength {
		return errors.Wrapf(tinyrsa.ErrInvalidParameter, "bit length %d outside %d..%d", l, c.MinBitLength, c.MaxBitLength)
	}
	return nil
}

// Generator returns a key generator using the configured round count.
func (c *Config) Generator() *tinyrsa.Generator {
	return tinyrsa.NewGenerator(c.Rounds)
}

// Logger returns a logrus logger at the configured level.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return log
}
