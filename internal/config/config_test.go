package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequiresNode(t *testing.T) {
	_, err := Parse([]string{"--bitfinex", "--warning-increase-threshold=20", "--halt-increase-threshold=30", "--warning-decrease-threshold=20", "--halt-decrease-threshold=30"})
	assert.Error(t, err)
}

func TestParseRequiresSource(t *testing.T) {
	_, err := Parse([]string{"--node=localhost:10000", "--warning-increase-threshold=20", "--halt-increase-threshold=30", "--warning-decrease-threshold=20", "--halt-decrease-threshold=30"})
	assert.Error(t, err)
}

func TestParseRejectsConflictingKeySources(t *testing.T) {
	_, err := Parse([]string{
		"--node=localhost:10000", "--bitfinex",
		"--secret-names=gov-key", "--local-keys=/tmp/key.json",
		"--warning-increase-threshold=20", "--halt-increase-threshold=30",
		"--warning-decrease-threshold=20", "--halt-decrease-threshold=30",
	})
	assert.Error(t, err)
}

func TestParseRejectsAllThreeKeySources(t *testing.T) {
	_, err := Parse([]string{
		"--node=localhost:10000", "--bitfinex",
		"--secret-names=gov-key", "--local-keys=/tmp/key.json", "--env-keys=gov-key",
		"--warning-increase-threshold=20", "--halt-increase-threshold=30",
		"--warning-decrease-threshold=20", "--halt-decrease-threshold=30",
	})
	assert.Error(t, err)
}

func TestParseOK(t *testing.T) {
	cfg, err := Parse([]string{
		"--node=localhost:10000", "--bitfinex", "--coin-gecko",
		"--warning-increase-threshold=20", "--halt-increase-threshold=30",
		"--warning-decrease-threshold=20", "--halt-decrease-threshold=30",
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Sources, 2)
	assert.Equal(t, "eu-central-1", cfg.AWSRegion)
	assert.Equal(t, 8112, cfg.PrometheusPort)
}
