package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinyrsa/tinyrsa"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": ":9090", "rounds": 12, "generate_timeout": "2m", "h2c": true, "log_level": "debug"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 12, cfg.Rounds)
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.GenerateTimeout))
	assert.True(t, cfg.H2C)
	assert.Equal(t, "./rsa.db", cfg.DBPath)
	assert.Equal(t, 1024, cfg.MaxBitLength)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, logrus.DebugLevel, cfg.Logger().GetLevel())
	assert.Equal(t, 12, cfg.Generator().Rounds)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"generate_timeout": "soon"}`))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `{"listen": ":80"}`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"rounds":    func(c *Config) { c.Rounds = 0 },
		"min":       func(c *Config) { c.MinBitLength = 1 },
		"max":       func(c *Config) { c.MaxBitLength = 1 },
		"db":        func(c *Config) { c.DBPath = "" },
		"timeout":   func(c *Config) { c.GenerateTimeout = Duration(-time.Second) },
		"log level": func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestCheckBitLength(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.CheckBitLength(2))
	assert.NoError(t, cfg.CheckBitLength(1024))
	assert.ErrorIs(t, cfg.CheckBitLength(1), tinyrsa.ErrInvalidParameter)
	assert.ErrorIs(t, cfg.CheckBitLength(1025), tinyrsa.ErrInvalidParameter)
}
