package guard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript は自分が確保したキーのみを削除する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard は複数インスタンス間で共有されるGuard。
// SET NX + TTLで確保するため、プロセスが落ちてもTTL経過後に自動で解放される。
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard はRedisGuardを生成する。ttlは操作の最大所要時間より長く設定する。
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

// Acquire はキーを確保する。
func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	owner := uuid.NewString()

	ok, err := g.client.SetNX(ctx, key, owner, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, ErrInFlight
	}

	return func() {
		// リクエストのctxがキャンセル済みでも解放できるよう独立したctxを使う
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.client, []string{key}, owner).Err(); err != nil {
			slog.Warn("実行中ガードの解放に失敗しました",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}, nil
}

// NewRedisClient はREDIS_URLからクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

var _ Guard = (*RedisGuard)(nil)
