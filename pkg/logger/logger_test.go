package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFormat_ProductionUsesJSONAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("production", "", &buf)

	log.Debug("hidden")
	log.Info("visible", "k", "v")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "v", entry["k"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewWithFormat_DevelopmentTextAtDebug(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("development", "", &buf)

	log.Debug("debug line")

	assert.Contains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "logger_test.go:")
}

func TestWithContext_AddsRunAndAccount(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("development", "json", &buf)

	ctx := context.WithValue(context.Background(), RunIDKey, "run-1")
	ctx = context.WithValue(ctx, AccountKey, "Checking")
	log.WithContext(ctx).Info("syncing")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "Checking", entry["account"])
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithFormat("development", "json", &buf)

	log.WithError(errors.New("boom")).Error("failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "boom", entry["error"])
}
