package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remancore.yaml")
	yml := `
service_id: plant-a
messaging:
  backend: kafka
  kafka:
    brokers: ["k1:9092", "k2:9092"]
pipeline:
  estimate_timeout: 3s
  selection_timeout: 2m
workflows:
  refurbish: [Cleaning, Grinding]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "plant-a", cfg.ServiceID)
	assert.Equal(t, "kafka", cfg.Messaging.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Messaging.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.EstimateTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.SelectionTimeout)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.ConfirmTimeout)
	assert.Equal(t, []string{"Cleaning", "Grinding"}, cfg.Workflows.Refurbish)
	assert.NotEmpty(t, cfg.Workflows.Upgrade)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service_id: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Web.Port = 9999
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Web.Port)
	assert.Equal(t, cfg.Pipeline, loaded.Pipeline)
}

func TestScopeIdentity(t *testing.T) {
	cfg := Defaults()
	cfg.Messaging.ScopeIdentity("remanprovider-p1")
	assert.Equal(t, "remanprovider-p1", cfg.Messaging.MQTT.ClientID)
	assert.Equal(t, "remanprovider-p1", cfg.Messaging.Kafka.GroupID)

	// Explicit settings are kept.
	cfg = Defaults()
	cfg.Messaging.MQTT.ClientID = "shop-7"
	cfg.Messaging.Kafka.GroupID = ""
	cfg.Messaging.ScopeIdentity("remanprovider-p2")
	assert.Equal(t, "shop-7", cfg.Messaging.MQTT.ClientID)
	assert.Equal(t, "remanprovider-p2", cfg.Messaging.Kafka.GroupID)
}
