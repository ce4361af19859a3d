package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromReaderAppliesOverridesOverDefault(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("data_dir: /tmp/pgstore\nstrict: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/pgstore", cfg.DataDir)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 100, cfg.BatchSize) // untouched default
}

func TestLoadFromReaderEmptyUsesDefault(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("bogus_field: true\n"))
	require.Error(t, err)
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	err := Validate(Config{DataDir: "", BatchSize: 1})
	require.Error(t, err)
}

func TestValidateRejectsNegativeBatchSize(t *testing.T) {
	err := Validate(Config{DataDir: "x", BatchSize: -1})
	require.Error(t, err)
}
