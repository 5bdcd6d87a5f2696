package logging

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"time"

	log "github.com/spf13/jwalterweatherman"
)

// Setup routes logging to stderr and, when dir is set, to a per-run log file
// card_golf_<timestamp>.log inside dir. The returned closer releases the file.
func Setup(dir string, verbose bool) (io.Closer, error) {
	log.SetStdoutOutput(os.Stderr)
	log.SetFlags(stdlog.Ldate | stdlog.Ltime)
	if verbose {
		log.SetStdoutThreshold(log.LevelDebug)
	} else {
		log.SetStdoutThreshold(log.LevelInfo)
	}

	if dir == "" {
		log.SetLogOutput(io.Discard)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create logging dir: %w", err)
	}
	name := filepath.Join(dir, "card_golf_"+time.Now().Format("2006-01-02_15:04:05")+".log")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.SetLogOutput(f)
	log.SetLogThreshold(log.LevelDebug)
	return f, nil
}

// Capture sends every level to w. Tests use it to assert on log lines.
func Capture(w io.Writer) {
	log.SetStdoutOutput(w)
	log.SetStdoutThreshold(log.LevelTrace)
	log.SetLogOutput(io.Discard)
}
