package appconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
client_id: kafcored-test
brokers:
  - localhost:9092
subscription_groups:
  - id: sg1
    group_id: orders-consumers
    max_wait_time: 2s
    topics:
      - name: orders
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kafcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_AppliesDefaultsForUnsetKnobs(t *testing.T) {
	path := writeConfig(t, validYAML)

	raw, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kafcored-test", raw.ClientID)
	assert.Equal(t, 1, raw.Concurrency, "concurrency defaults to 1")
	assert.Equal(t, time.Second, raw.MaxWaitTime, "top-level max_wait_time defaults to 1s")
	assert.Equal(t, 30*time.Second, raw.ShutdownTimeout)
	require.Len(t, raw.SubscriptionGroups, 1)
	assert.Equal(t, 2*time.Second, raw.SubscriptionGroups[0].MaxWaitTime, "explicit value overrides the default")
	require.Len(t, raw.SubscriptionGroups[0].Topics, 1)
	assert.Equal(t, "orders", raw.SubscriptionGroups[0].Topics[0].Name)
}

func TestLoad_FailsValidationWhenRequiredFieldMissing(t *testing.T) {
	missingBrokers := `
client_id: kafcored-test
subscription_groups:
  - id: sg1
    group_id: orders-consumers
    topics:
      - name: orders
`
	path := writeConfig(t, missingBrokers)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_FailsValidationWhenNoTopicsInGroup(t *testing.T) {
	noTopics := `
client_id: kafcored-test
brokers:
  - localhost:9092
subscription_groups:
  - id: sg1
    group_id: orders-consumers
    topics: []
`
	path := writeConfig(t, noTopics)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
