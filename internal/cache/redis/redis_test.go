package redis

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPattern(t *testing.T) {
	assert.False(t, hasPattern("yieldagg:events:live"))
	assert.True(t, hasPattern("yieldagg:*"))
	assert.True(t, hasPattern("events?"))
	assert.True(t, hasPattern("ev[ab]"))
}

func TestKeyNamespacing(t *testing.T) {
	c := wrap(nil, "")
	assert.Equal(t, "yieldagg:lock:settings", c.key("lock", "settings"))

	assert.Equal(t, "yieldagg:replay:0xabc:0xdef", c.key("replay", "0xabc:0xdef"))

	c = wrap(nil, "staging")
	assert.Equal(t, "staging:ratelimit:10.0.0.1", c.key("ratelimit", "10.0.0.1"))
}

func TestClientOptions(t *testing.T) {
	opts := ClientConfig{Addr: "cache:6379", DB: 2, PoolSize: 20, MaxRetries: 3}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Nil(t, opts.TLSConfig)

	opts = ClientConfig{Addr: "cache:6380", TLSEnabled: true}.options()
	if assert.NotNil(t, opts.TLSConfig) {
		assert.Equal(t, uint16(tls.VersionTLS12), opts.TLSConfig.MinVersion)
	}
}

func TestEntryData(t *testing.T) {
	b, ok := entryData(map[string]any{entryField: `{"event":"config_changed"}`})
	assert.True(t, ok)
	assert.Equal(t, []byte(`{"event":"config_changed"}`), b)

	b, ok = entryData(map[string]any{entryField: []byte("xyz")})
	assert.True(t, ok)
	assert.Equal(t, []byte("xyz"), b)

	_, ok = entryData(map[string]any{"payload": "abc"})
	assert.False(t, ok)
	_, ok = entryData(map[string]any{entryField: 42})
	assert.False(t, ok)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
