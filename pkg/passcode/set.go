// Package passcode unlocks passcode protected videos through a browser session.
package passcode

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"castdl/pkg/utils"
)

// Set is an ordered list of candidate passcodes. A candidate that unlocks a
// video is removed so later videos try the remaining ones first.
type Set struct {
	mu    sync.Mutex
	codes []string
}

// NewSet builds a Set from codes, trimming whitespace and dropping blanks and duplicates.
func NewSet(codes []string) *Set {
	s := &Set{}
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		s.codes = append(s.codes, c)
	}
	return s
}

// LoadFile reads one passcode per line from path.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: passcode file: %w", utils.ErrFilesystem, err)
	}
	defer f.Close()

	var codes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		codes = append(codes, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading passcode file %s: %w", utils.ErrFilesystem, path, err)
	}
	return NewSet(codes), nil
}

// Len returns the number of remaining candidates.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// Snapshot returns a copy of the remaining candidates in order.
func (s *Set) Snapshot() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.codes...)
}

// Remove drops code from the set.
func (s *Set) Remove(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.codes {
		if c == code {
			s.codes = append(s.codes[:i], s.codes[i+1:]...)
			return
		}
	}
}
