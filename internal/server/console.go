package server

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"datetime_nexus/internal/shared/logger"
)

// maxConsoleLine bounds how much of one console line is kept. Longer lines
// are read to their end and ignored.
const maxConsoleLine = 4096

// ConsoleWatcher reads operator input line by line and triggers shutdown
// when the keyword is typed.
type ConsoleWatcher struct {
	in      io.Reader
	keyword string
	logger  zerolog.Logger
}

func NewConsoleWatcher(in io.Reader, keyword string) *ConsoleWatcher {
	return &ConsoleWatcher{
		in:      in,
		keyword: strings.TrimSpace(keyword),
		logger:  logger.WithComponent("console"),
	}
}

// Run blocks reading lines. On the keyword (trimmed, case-insensitive) it
// calls stop once and returns nil. End of input returns nil without calling
// stop.
func (w *ConsoleWatcher) Run(stop func()) error {
	reader := bufio.NewReader(w.in)
	for {
		line, oversized, err := readLine(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.logger.Warn().Msg("Console input closed, shutdown keyword can no longer be received.")
				return nil
			}
			return err
		}
		if oversized {
			w.logger.Debug().Int("limit", maxConsoleLine).Msg("Ignoring oversized console line")
			continue
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, w.keyword) {
			w.logger.Info().Msg("Shutting down server...")
			stop()
			return nil
		}
		if line != "" {
			w.logger.Debug().Str("input", line).Msgf("Ignoring console input, type %q to stop", w.keyword)
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// maxConsoleLine is consumed in full and reported as oversized.
func readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	oversized := false
	started := false
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if started {
				return string(buf), oversized, nil
			}
			return "", false, err
		}
		started = true
		if !oversized {
			if len(buf)+len(chunk) > maxConsoleLine {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), oversized, nil
		}
	}
}
