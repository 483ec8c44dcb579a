// Package handler はHTTPハンドラーと画面テンプレートを提供する。
package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// 画面テンプレート名。
const (
	pageSignup    = "signup"
	pageLogin     = "login"
	pageDashboard = "dashboard"
)

// ImageURLBuilder は商品画像のプロキシURLを組み立てる。
type ImageURLBuilder interface {
	URL(src string) string
}

// RenderConfig はテンプレート描画の設定。
type RenderConfig struct {
	ImageURLs ImageURLBuilder // nil以外の場合、商品画像を /images 経由で配信する
}

// Renderer は画面ごとにレイアウトと結合済みのテンプレートを保持する。
type Renderer struct {
	pages map[string]*template.Template
}

// layoutData は全画面共通の表示データ。
type layoutData struct {
	Title     string
	CSRFToken string
	Session   *model.Session
	Refresh   string // meta refreshのcontent値（空なら出力しない）
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
func NewRenderer(cfg RenderConfig) (*Renderer, error) {
	funcs := template.FuncMap{
		"imageURL": func(src string) string {
			if cfg.ImageURLs != nil {
				return cfg.ImageURLs.URL(src)
			}
			return src
		},
		"pathEscape": url.PathEscape,
		"inc":        func(n int) int { return n + 1 },
		"dec":        func(n int) int { return n - 1 },
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{pageSignup, pageLogin, pageDashboard} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// Render は画面を描画する。描画に失敗した場合は500を返す。
// 途中まで書き込まれたレスポンスを返さないよう、一度バッファに描画する。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, ok := rd.pages[name]
	if !ok {
		slog.Error("unknown template", slog.String("template", name))
		middleware.WriteInternalServerError(w, r)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// newLayout はリクエストから共通表示データを組み立てる。
func newLayout(r *http.Request, title string) layoutData {
	return layoutData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Session:   middleware.SessionFromContext(r.Context()),
	}
}
