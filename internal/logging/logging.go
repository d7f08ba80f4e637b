// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileName is the JSON-lines log file inside the log directory.
const FileName = "app.log"

// Options controls Setup.
type Options struct {
	Console  io.Writer // defaults to os.Stderr
	Dir      string    // when empty, no log file is written
	Level    string
	Location *time.Location
	NoColor  bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup installs a console writer plus, when Dir is set, a JSON file writer
// on the global logger. The returned closer releases the log file.
func Setup(opts Options) (io.Closer, error) {
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))
	if opts.Location != nil {
		loc := opts.Location
		zerolog.TimestampFunc = func() time.Time { return time.Now().In(loc) }
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, NoColor: opts.NoColor, TimeFormat: time.DateTime}}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0750); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(opts.Dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		writers = append(writers, f)
		closer = f
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return closer, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
