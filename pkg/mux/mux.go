// Package mux turns resolved stream manifests into local files, either by
// running ffmpeg or by recording the manifest URLs for later use.
package mux

import (
	"context"
	"strings"
)

// Job is one stream to materialize
type Job struct {
	Input      string // Manifest URL
	Output     string // Destination media file
	VideoID    string
	Title      string
	PageSource bool // Stream came from a video page (transport-stream audio needs a bitstream filter)
	Realtime   bool // Read input at native rate
}

// Sink consumes jobs. Dispatch blocks until the job is done.
type Sink interface {
	Dispatch(ctx context.Context, job Job) error
	Close() error
}

// StripParams cuts a manifest URL at its first '&'. The trailing parameters
// are session bound and make ffmpeg requests fail.
func StripParams(manifestURL string) string {
	if i := strings.IndexByte(manifestURL, '&'); i >= 0 {
		return manifestURL[:i]
	}
	return manifestURL
}
