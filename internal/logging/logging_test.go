package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	initWithWriter(&buf, false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l, err := Component("runtime", "error")
	require.NoError(t, err)
	l.Warn().Msg("suppressed")
	l.Error().Msg("Step failed")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "Step failed")
	assert.Contains(t, out, "component")
	assert.Contains(t, out, "runtime")

	_, err = Component("runtime", "loud")
	assert.Error(t, err)

	l, err = Component("runtime", "")
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, l.GetLevel())
}

func TestComponent_DebugOverridesQuietLevel(t *testing.T) {
	var buf bytes.Buffer
	initWithWriter(&buf, true)
	t.Cleanup(func() {
		debugEnabled = false
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	l, err := Component("runtime", "error")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
	assert.True(t, DebugEnabled())
}
