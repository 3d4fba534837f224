package credential

import (
	"context"
	"errors"
	"sync"
)

// flakyKV wraps MemoryKV and silently drops writes to selected keys, so the
// read-back never matches.
type flakyKV struct {
	*MemoryKV

	mu         sync.Mutex
	dropKeys   map[string]bool
	setCalls   map[string]int
	failGet    bool
	failDelete bool
}

func newFlakyKV(dropKeys ...string) *flakyKV {
	drop := make(map[string]bool)
	for _, k := range dropKeys {
		drop[k] = true
	}
	return &flakyKV{
		MemoryKV: NewMemoryKV(),
		dropKeys: drop,
		setCalls: make(map[string]int),
	}
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	f.setCalls[key]++
	drop := f.dropKeys[key]
	f.mu.Unlock()
	if drop {
		return nil
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errors.New("kv unavailable")
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *flakyKV) Delete(ctx context.Context, keys ...string) error {
	if f.failDelete {
		return errors.New("kv unavailable")
	}
	return f.MemoryKV.Delete(ctx, keys...)
}

func (f *flakyKV) calls(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCalls[key]
}

// heal stops dropping writes for key.
func (f *flakyKV) heal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dropKeys, key)
}

// corruptingKV stores a mangled value for the first limit writes to key, so
// those writes land but the read-back never matches. onLimit runs after the
// last mangled write; later writes pass through.
type corruptingKV struct {
	KV
	key     string
	limit   int
	onLimit func()

	mu    sync.Mutex
	calls int
}

func (c *corruptingKV) Set(ctx context.Context, key, value string) error {
	if key != c.key {
		return c.KV.Set(ctx, key, value)
	}

	c.mu.Lock()
	c.calls++
	calls := c.calls
	c.mu.Unlock()

	if calls > c.limit {
		return c.KV.Set(ctx, key, value)
	}
	err := c.KV.Set(ctx, key, "mangled-"+value)
	if calls == c.limit && c.onLimit != nil {
		c.onLimit()
	}
	return err
}
