package memory

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/becomeliminal/convctx/core"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var errBackendDown = errors.New("backend down")

// mapCache is an in-memory HashCache with a controllable clock.
type mapCache struct {
	mu      sync.Mutex
	data    map[string]map[string]string
	expires map[string]time.Time
	now     func() time.Time
	err     error
}

func newMapCache() *mapCache {
	return &mapCache{
		data:    make(map[string]map[string]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (c *mapCache) live(key string) map[string]string {
	if exp, ok := c.expires[key]; ok && !c.now().Before(exp) {
		delete(c.data, key)
		delete(c.expires, key)
	}
	return c.data[key]
}

func (c *mapCache) HSet(ctx context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	h := c.live(key)
	if h == nil {
		h = make(map[string]string)
		c.data[key] = h
	}
	h[field] = value
	return nil
}

func (c *mapCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	out := make(map[string]string)
	for k, v := range c.live(key) {
		out[k] = v
	}
	return out, nil
}

func (c *mapCache) HDel(ctx context.Context, key string, fields ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	h := c.live(key)
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (c *mapCache) HLen(ctx context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return len(c.live(key)), nil
}

func (c *mapCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.live(key) != nil {
		c.expires[key] = c.now().Add(ttl)
	}
	return nil
}

func (c *mapCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	delete(c.data, key)
	delete(c.expires, key)
	return nil
}

func (c *mapCache) Close() error { return nil }

// wordEmbedder hashes lowercase words into buckets. Vectors are non-negative,
// so texts sharing words score above zero and disjoint texts score near zero.
type wordEmbedder struct {
	dims int
}

func (e wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, fmt.Errorf("no words in %q", text)
	}
	vec := make([]float32, e.dims)
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(e.dims)]++
	}
	return Normalize(vec), nil
}

func (e wordEmbedder) Dimensions() int { return e.dims }

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errBackendDown
}

func (failingEmbedder) Dimensions() int { return 384 }

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func exchange(user string, minute int, msg, resp string) *core.Exchange {
	ts := testEpoch.Add(time.Duration(minute) * time.Minute)
	return &core.Exchange{
		ID:          core.NewExchangeID(user, ts),
		UserID:      user,
		UserMessage: msg,
		Response:    resp,
		Timestamp:   ts,
	}
}
