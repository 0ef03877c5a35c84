package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppVersionFlag(t *testing.T) {
	app := App()
	err := app.Run([]string{"kinesis-producer", "--version"})
	require.NoError(t, err)
}

func TestLoadConfigDefaultsOnMissingPath(t *testing.T) {
	conf, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), conf.RPSPerShard)
	assert.Equal(t, "INFO", conf.LogLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/to/config.yaml")
	require.Error(t, err)
}
