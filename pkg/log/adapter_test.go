package log

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiscardEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestBadgerLogrusAdapter_Methods(t *testing.T) {
	adapter := NewBadgerLogrusAdapter(newDiscardEntry())

	assert.NotPanics(t, func() { adapter.Errorf("error %s", "test") })
	assert.NotPanics(t, func() { adapter.Warningf("warning %d", 42) })
	assert.NotPanics(t, func() { adapter.Infof("info %v", true) })
	assert.NotPanics(t, func() { adapter.Debugf("debug") })
}

func TestBadgerLogrusAdapter_DemotesInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.InfoLevel)
	adapter := NewBadgerLogrusAdapter(logrus.NewEntry(logger))

	adapter.Infof("replaying value log")
	adapter.Debugf("level 0 compaction")
	assert.Empty(t, buf.String())

	adapter.Warningf("value log truncated")
	assert.Contains(t, buf.String(), "value log truncated")
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	Component(logger, "crawler").Debug("hello")
	assert.Contains(t, buf.String(), "component=crawler")
	assert.Contains(t, buf.String(), "hello")

	logger, err = New(io.Discard, "loud")
	assert.Error(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
