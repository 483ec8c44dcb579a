// Package guard はカート操作の多重送信を防ぐ実行中ガードを提供する。
// 同じキー（セッション×商品）に対する操作が実行中の間、後続の操作を拒否する。
package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrInFlight は同じキーの操作が実行中であることを示す。
var ErrInFlight = errors.New("request already in progress")

// Guard はキー単位の排他を提供するインターフェース。
type Guard interface {
	// Acquire はキーを確保する。確保できた場合は解放関数を返す。
	// 既に確保されている場合はErrInFlightを返す。
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key はセッションと商品IDからガードキーを組み立てる。
func Key(sessionKey, productID string) string {
	return "cart-inflight:" + sessionKey + ":" + productID
}

// MemoryGuard は単一プロセス内で有効なGuard。
type MemoryGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewMemoryGuard はMemoryGuardを生成する。
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{inflight: make(map[string]struct{})}
}

// Acquire はキーを確保する。
func (g *MemoryGuard) Acquire(_ context.Context, key string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[key]; busy {
		return nil, ErrInFlight
	}
	g.inflight[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, key)
			g.mu.Unlock()
		})
	}, nil
}

// NoopGuard は常に確保に成功するGuard。ガード無効時に使用する。
type NoopGuard struct{}

// Acquire は何もしない解放関数を返す。
func (NoopGuard) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

var (
	_ Guard = (*MemoryGuard)(nil)
	_ Guard = NoopGuard{}
)
