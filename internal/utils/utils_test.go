package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"sessionId": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc", body["sessionId"])
}

func TestJSONNilPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusNoContent, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, http.StatusNotFound, "session x not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "session x not found", body["error"])
}

func TestNewLoggerWithLevel(t *testing.T) {
	lg, err := NewLoggerWithLevel("debug")
	require.NoError(t, err)
	require.NotNil(t, lg)

	_, err = NewLoggerWithLevel("loud")
	assert.Error(t, err)
}

func TestLoggerKeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lg := FromZap(zap.New(core)).With("instance", "i-1")

	lg.Info("user joined", "sessionId", "s1", "userId", "u1")
	lg.Debug("frame dropped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "user joined", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "s1", fields["sessionId"])
	assert.Equal(t, "u1", fields["userId"])
	assert.Equal(t, "i-1", fields["instance"])
}
