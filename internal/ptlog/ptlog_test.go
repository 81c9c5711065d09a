package ptlog_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptouchraster/rastertoptch/internal/ptlog"
)

func TestNewDefaultsToInfoOnUnknownLevel(t *testing.T) {
	logger := ptlog.New(ptlog.Config{LevelName: "bogus"})
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestNewTagsRunID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger := ptlog.New(ptlog.Config{LogFile: path})
	logger.Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "run_id="))
}
