package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/vsariola/kaiku"
	"github.com/vsariola/kaiku/graph"
	"golang.org/x/sync/singleflight"
)

type (
	// Decoder turns an asset key into decoded audio at the given sample
	// rate.
	Decoder interface {
		Decode(ctx context.Context, key string, sampleRate int) (*graph.Buffer, error)
	}

	// BufferCache maps asset keys to decoded buffers. Concurrent loads of
	// the same key share one decode; a key that fails to decode is not
	// retried, the same error is returned for the rest of the session.
	BufferCache struct {
		decoder    Decoder
		sampleRate int
		mu         sync.RWMutex
		buffers    map[string]*graph.Buffer
		failed     map[string]error
		group      singleflight.Group
	}
)

func NewBufferCache(decoder Decoder, sampleRate int) *BufferCache {
	return &BufferCache{
		decoder:    decoder,
		sampleRate: sampleRate,
		buffers:    map[string]*graph.Buffer{},
		failed:     map[string]error{},
	}
}

// Get returns the decoded buffer for key, if it has been loaded.
func (c *BufferCache) Get(key string) (*graph.Buffer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.buffers[key]
	return b, ok
}

// Put stores an already decoded buffer, e.g. a recorded take.
func (c *BufferCache) Put(key string, b *graph.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers[key] = b
	delete(c.failed, key)
}

// Load returns the buffer for key, decoding it if needed.
func (c *BufferCache) Load(ctx context.Context, key string) (*graph.Buffer, error) {
	c.mu.RLock()
	b, ok := c.buffers[key]
	err := c.failed[key]
	c.mu.RUnlock()
	if ok {
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	if c.decoder == nil {
		return nil, fmt.Errorf("%w: %v: no decoder", kaiku.ErrMissingAsset, key)
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if b, ok := c.Get(key); ok {
			return b, nil
		}
		b, err := c.decoder.Decode(ctx, key, c.sampleRate)
		if err != nil && ctx.Err() != nil {
			return nil, err // cancelled, may be retried
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			err = fmt.Errorf("%w: %v: %v", kaiku.ErrDecode, key, err)
			c.failed[key] = err
			return nil, err
		}
		c.buffers[key] = b
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Buffer), nil
}

// Failed reports whether key has failed to decode.
func (c *BufferCache) Failed(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.failed[key]
	return ok
}
