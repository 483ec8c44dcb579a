package imageproxy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
)

// Signer は /images へのURLに署名を付与し、受信時に検証する。
// 画面に描画した商品画像以外をプロキシさせないために使う。
type Signer struct {
	key []byte
}

// NewSigner はsecretを鍵とするSignerを生成する。
func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret)}
}

// Sign は元画像URLの署名を返す。
func (s *Signer) Sign(src string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(src))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify はsigがsrcに対する正しい署名かどうかを返す。
func (s *Signer) Verify(src, sig string) bool {
	if src == "" || sig == "" {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(src))
	return hmac.Equal(got, mac.Sum(nil))
}

// URL は元画像URLを署名付きのプロキシパスに変換する。空の場合は空を返す。
func (s *Signer) URL(src string) string {
	if src == "" {
		return ""
	}
	return "/images?src=" + url.QueryEscape(src) + "&sig=" + s.Sign(src)
}
