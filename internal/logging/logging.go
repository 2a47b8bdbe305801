package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ajramos/keycheck/internal/config"
)

// Prefix starts every log line
const Prefix = "[keycheck] "

// Flags are the log.Logger flags used for every keycheck logger
const Flags = log.LstdFlags | log.Lmicroseconds

// New returns a logger writing to w
func New(w io.Writer) *log.Logger {
	return log.New(w, Prefix, Flags)
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return New(io.Discard)
}

// Open opens (appending) the log file at path, or keycheck.log under the
// config directory when path is empty. The returned close function is never
// nil. When the file cannot be opened the logger discards.
func Open(path string) (*log.Logger, func()) {
	path = strings.TrimSpace(path)
	if path == "" {
		dir := config.DefaultLogDir()
		if dir == "" {
			return Discard(), func() {}
		}
		path = filepath.Join(dir, "keycheck.log")
	}
	path = config.ExpandHome(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Discard(), func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Discard(), func() {}
	}
	return New(f), func() { _ = f.Close() }
}
