// Package visualize draws aligned tide series with go-chart. A Surface is the
// drawable area served over HTTP; it hands out Tidal chart instances.
package visualize

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spencer-p/tidedash/pkg/lifecycle"
	"github.com/spencer-p/tidedash/pkg/timetricks"
)

var errNoSurface = errors.New("nil surface")

// Format is the image encoding of a frame.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" or "svg" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case PNG, SVG:
		return f, nil
	}
	return "", fmt.Errorf("unknown chart format %q", s)
}

// ContentType is the MIME type of frames in this format.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

// Surface holds the last frame drawn by its instance. Frames are read
// concurrently by HTTP handlers.
type Surface struct {
	width, height int
	format        Format
	norm          *timetricks.Normalizer

	mu        sync.RWMutex
	frame     []byte
	instances int
}

func NewSurface(width, height int, f Format, n *timetricks.Normalizer) *Surface {
	return &Surface{
		width:  width,
		height: height,
		format: f,
		norm:   n,
	}
}

// NewInstance returns a new *Tidal drawing onto s.
func (s *Surface) NewInstance(datasets []string) (lifecycle.Instance, error) {
	if s == nil {
		return nil, errNoSurface
	}
	if s.width <= 0 || s.height <= 0 {
		return nil, fmt.Errorf("surface has no area: %dx%d", s.width, s.height)
	}
	s.mu.Lock()
	s.instances++
	s.mu.Unlock()
	return newTidal(s, datasets), nil
}

// Frame returns the last published frame. ok is false until the first one
// and after a pass with nothing present clears it.
// The returned buffer must not be modified.
func (s *Surface) Frame() (buf []byte, contentType string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, "", false
	}
	return s.frame, s.format.ContentType(), true
}

// Instances counts instances created on this surface.
func (s *Surface) Instances() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances
}

func (s *Surface) publish(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = frame
}
