package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsToInfoLevelAndJSONFormat(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Options{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	_, ok := log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	log.Info("hello")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, filepath.Ext(entries[0].Name()) == ".log")
}

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New(Options{Level: "not-a-level"})
	require.Error(t, err)
}
