package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "input %q", tt.in)
	}
}

func TestSetup_WritesConsoleAndFile(t *testing.T) {
	origLogger, origLevel, origTS := log.Logger, zerolog.GlobalLevel(), zerolog.TimestampFunc
	t.Cleanup(func() {
		log.Logger = origLogger
		zerolog.SetGlobalLevel(origLevel)
		zerolog.TimestampFunc = origTS
	})

	dir := filepath.Join(t.TempDir(), "logs")
	var console bytes.Buffer

	closer, err := Setup(Options{
		Console:  &console,
		Dir:      dir,
		Level:    "info",
		Location: time.FixedZone("KST", 9*60*60),
		NoColor:  true,
	})
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("response_file", "x.json").Msg("Model response persisted")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "Model response persisted")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"response_file":"x.json"`)
	assert.Contains(t, lines[0], "+09:00")
}

func TestSetup_NoDir(t *testing.T) {
	origLogger, origLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = origLogger
		zerolog.SetGlobalLevel(origLevel)
	})

	var console bytes.Buffer
	closer, err := Setup(Options{Console: &console, Level: "debug", NoColor: true})
	require.NoError(t, err)
	log.Debug().Msg("visible")
	assert.NoError(t, closer.Close())
	assert.Contains(t, console.String(), "visible")
}
