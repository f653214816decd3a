package luascript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisConn binds the Lua backend to a real Redis (or Redis-compatible)
// server through go-redis/v9, grounded on RedisConnection (original_
// source/src/redipy/redis/conn.py) for the prefix/EVALSHA-retry shape
// and on the teacher's own internal/handler/lua.go ScriptCache for the
// SHA1-keyed reload-on-NOSCRIPT pattern, adapted from a server-side cache
// (the teacher stores scripts the *client* uploaded) to a client-side one.
// When EVALSHA fails with NOSCRIPT, Eval falls back to EVAL with the text
// carried in the ScriptHandle and loads it again.
type RedisConn struct {
	client *redis.Client
	prefix string

	mu    sync.RWMutex
	cache map[string]string // sha1 -> source of every script loaded; written, never read
}

// NewRedisConn wraps client, prefixing every key with prefix (empty
// means no prefix).
func NewRedisConn(client *redis.Client, prefix string) *RedisConn {
	return &RedisConn{client: client, prefix: prefix, cache: map[string]string{}}
}

func (c *RedisConn) WithPrefix(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *RedisConn) Load(ctx context.Context, script string) (ScriptHandle, error) {
	sha, err := c.client.ScriptLoad(ctx, script).Result()
	if err != nil {
		return ScriptHandle{}, fmt.Errorf("script load: %w", err)
	}
	c.mu.Lock()
	c.cache[sha] = script
	c.mu.Unlock()
	return ScriptHandle{SHA1: sha, Text: script}, nil
}

func (c *RedisConn) Eval(ctx context.Context, h ScriptHandle, keys, args []string) (*string, error) {
	argv := make([]interface{}, len(args))
	for i, a := range args {
		argv[i] = a
	}
	res, err := c.client.EvalSha(ctx, h.SHA1, keys, argv...).Result()
	if err != nil && isNoScript(err) {
		res, err = c.client.Eval(ctx, h.Text, keys, argv...).Result()
		if err == nil {
			if sha, lerr := c.client.ScriptLoad(ctx, h.Text).Result(); lerr == nil {
				c.mu.Lock()
				c.cache[sha] = h.Text
				c.mu.Unlock()
			}
		}
	}
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	s, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected eval reply type %T (want string)", res)
	}
	return &s, nil
}

func isNoScript(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOSCRIPT")
}

// Exists reports, for each sha in shas, whether the server still holds
// that script in its script cache — the SCRIPT EXISTS supplement.
func (c *RedisConn) Exists(ctx context.Context, shas ...string) ([]bool, error) {
	return c.client.ScriptExists(ctx, shas...).Result()
}

// Flush clears both the server's script cache and this connection's own
// SHA1 reload cache — the SCRIPT FLUSH supplement.
func (c *RedisConn) Flush(ctx context.Context) error {
	c.mu.Lock()
	c.cache = map[string]string{}
	c.mu.Unlock()
	return c.client.ScriptFlush(ctx).Err()
}
