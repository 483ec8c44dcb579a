package cart

import "github.com/hitoshi/storefront/internal/model"

// State はストア＆カート画面の読み込み状態。
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateErrored State = "errored"
)

// Page は1回の読み込み結果を保持する。
// 状態遷移: idle → loading → ready | errored
type Page struct {
	State State
	Error string
	View  View
}

// NewPage はidle状態のPageを生成する。
func NewPage() *Page {
	return &Page{State: StateIdle, View: BuildView(nil)}
}

func (p *Page) begin() {
	p.State = StateLoading
	p.Error = ""
}

func (p *Page) succeed(snap *model.CatalogSnapshot) {
	p.State = StateReady
	p.View = BuildView(snap)
}

// fail はエラーを記録し、一覧を空にする。
func (p *Page) fail(msg string) {
	p.State = StateErrored
	p.Error = msg
	p.View = BuildView(nil)
}

// Loading は読み込み中かどうかを返す。
func (p *Page) Loading() bool {
	return p.State == StateIdle || p.State == StateLoading
}
