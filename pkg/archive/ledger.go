// Package archive keeps the plain text list of video URLs that were already handled.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"castdl/pkg/utils"
)

// Ledger is an append-only set of processed video URLs backed by a text file,
// one URL per line. A Ledger with an empty path is disabled: it contains
// nothing and records nothing.
type Ledger struct {
	path       string
	known      map[string]struct{}
	appendMode bool // False until the file exists, so the first write truncates
	mu         sync.Mutex
}

// Load reads the ledger at path. A missing file is not an error.
func Load(path string) (*Ledger, error) {
	l := &Ledger{path: path, known: make(map[string]struct{})}
	if path == "" {
		return l, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", utils.ErrArchiveIO, path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			l.known[line] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", utils.ErrArchiveIO, path, err)
	}
	l.appendMode = true
	return l, nil
}

// Enabled reports whether the ledger is backed by a file.
func (l *Ledger) Enabled() bool {
	return l.path != ""
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Len returns the number of known URLs.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.known)
}

// Contains reports whether url was recorded, either in this run or a previous one.
func (l *Ledger) Contains(url string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.known[url]
	return ok
}

// Record adds url to the ledger and persists it immediately. Recording a
// known URL is a no-op.
func (l *Ledger) Record(url string) error {
	if !l.Enabled() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.known[url]; ok {
		return nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if l.appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(l.path, flags, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", utils.ErrArchiveIO, l.path, err)
	}
	if _, err := f.WriteString(url + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", utils.ErrArchiveIO, l.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: sync %s: %w", utils.ErrArchiveIO, l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", utils.ErrArchiveIO, l.path, err)
	}

	l.appendMode = true
	l.known[url] = struct{}{}
	return nil
}
