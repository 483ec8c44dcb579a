package model

import "time"

// CachedImage は画像プロキシがキャッシュした商品画像。
type CachedImage struct {
	ID          string
	SourceURL   string
	ContentType string
	Data        []byte
	FetchedAt   time.Time
}

// Stale はttlを超えて古くなっているかを返す。
func (c *CachedImage) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.FetchedAt) > ttl
}
