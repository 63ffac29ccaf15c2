// Package cookies loads the platform session cookies from a plain text file.
package cookies

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"castdl/pkg/utils"
)

var cookieLine = regexp.MustCompile(`.*(tc_id|tc_ss)\s(.*)`)

// Session holds the two cookies that identify a logged-in user
type Session struct {
	ID     string // tc_id
	Secret string // tc_ss
}

// Header formats the session as a Cookie header value.
func (s Session) Header() string {
	if s.ID == "" && s.Secret == "" {
		return ""
	}
	return fmt.Sprintf("tc_id=%s; tc_ss=%s", s.ID, s.Secret)
}

// Load reads path and extracts tc_id and tc_ss. Any whitespace-separated
// layout works, including Netscape cookie exports. Both keys are required.
func Load(path string) (Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", utils.ErrCookieFile, err)
	}
	defer f.Close()
	return parse(bufio.NewScanner(f), path)
}

func parse(scanner *bufio.Scanner, path string) (Session, error) {
	var s Session
	for scanner.Scan() {
		m := cookieLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch m[1] {
		case "tc_id":
			s.ID = value
		case "tc_ss":
			s.Secret = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Session{}, fmt.Errorf("%w: reading %s: %w", utils.ErrCookieFile, path, err)
	}
	if s.ID == "" || s.Secret == "" {
		return Session{}, fmt.Errorf("%w: %s must contain both tc_id and tc_ss", utils.ErrCookieFile, path)
	}
	return s, nil
}
