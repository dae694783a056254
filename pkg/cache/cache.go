package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Timed is a cache that invalidates elements on a timer basis. It is safe for
// concurrent use.
type Timed struct {
	ttl   time.Duration
	codec *codec

	mu    sync.Mutex
	cache map[string]element
}

// element holds a timestamped value to save.
type element struct {
	value    []byte
	creation time.Time
}

// codec compresses stored values with zstd.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewTimed creates a new Timed cache where elements will be invalidated after
// a time in cache corresponding to TTL.
func NewTimed(ttl time.Duration) *Timed {
	return &Timed{
		ttl:   ttl,
		cache: make(map[string]element),
	}
}

// NewCompressed is like NewTimed but keeps values zstd compressed in memory.
// Suited to large upstream payloads such as the station catalog.
func NewCompressed(ttl time.Duration) (*Timed, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	c := NewTimed(ttl)
	c.codec = &codec{encoder: encoder, decoder: decoder}
	return c, nil
}

// Set assigns a value to a key.
func (c *Timed) Set(key string, val []byte) {
	c.set(key, val, time.Now())
}

// set performs Set's work with the wall clock factored out.
func (c *Timed) set(key string, val []byte, t time.Time) {
	if c.codec != nil {
		val = c.codec.encoder.EncodeAll(val, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = element{
		value:    val,
		creation: t,
	}
}

// Get retrieves a value for a key. The value may not exist or have expired, in
// which case ok will be false.
func (c *Timed) Get(key string) (value []byte, ok bool) {
	return c.get(key, time.Now())
}

// get is like set in that the time is factored out
func (c *Timed) get(key string, t time.Time) (value []byte, ok bool) {
	c.mu.Lock()
	el, ok := c.cache[key]
	if ok && t.Sub(el.creation) > c.ttl {
		// in memory elements might still be invalid
		delete(c.cache, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	if c.codec == nil {
		return el.value, true
	}
	decoded, err := c.codec.decoder.DecodeAll(el.value, nil)
	if err != nil {
		return nil, false
	}
	return decoded, true
}
