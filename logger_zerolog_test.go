package auth_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	auth "github.com/goliatone/go-auth-lockout"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapZerologFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := auth.WrapZerolog(zerolog.New(buf))

	logger.Warn("login rejected", "email", testEmail, "attempts", 2, "error", errors.New("bad password"), "dangling")

	line := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "login rejected", line["message"])
	assert.Equal(t, testEmail, line["email"])
	assert.Equal(t, float64(2), line["attempts"])
	assert.Equal(t, "bad password", line["error"])
	assert.Equal(t, true, line["dangling"])
}

func TestNewZerologLoggerLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := auth.NewZerologLogger(buf, zerolog.InfoLevel)

	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Error("shown", "component_id", 7)
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "component")
}
