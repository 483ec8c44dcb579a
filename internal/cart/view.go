// Package cart はストア＆カート画面の状態管理とカート操作を提供する。
package cart

import (
	"strings"

	"github.com/hitoshi/storefront/internal/model"
)

// ProductCard はカタログ1件分の表示データ。
type ProductCard struct {
	ID       string
	Title    string
	Category string // 大文字表記
	Price    string
	Image    string
	InCart   int
}

// Line はカート欄の1行。商品が解決できた行のみ生成される。
type Line struct {
	ProductID string
	Title     string
	Image     string
	Price     string
	Quantity  int
	LineTotal string
}

// View はスナップショットから導出した画面表示用の状態。
// 商品IDは文字列表現で突き合わせる。
type View struct {
	Products    []ProductCard
	Lines       []Line
	ItemCount   int // 解決できない行も含むカート行数
	Subtotal    float64
	QtyByID     map[string]int
	ProductByID map[string]model.Product
}

// BuildView はカタログとカートから表示状態を導出する。
// 未知の商品IDを持つカート行は一覧から除外し、小計にも含めない。
// 同じ商品IDの行が複数ある場合、数量は後の行が優先される。
func BuildView(snap *model.CatalogSnapshot) View {
	v := View{
		Products:    []ProductCard{},
		Lines:       []Line{},
		QtyByID:     map[string]int{},
		ProductByID: map[string]model.Product{},
	}
	if snap == nil {
		return v
	}

	for _, p := range snap.Products {
		v.ProductByID[p.ID.String()] = p
	}

	var items []model.CartItem
	if snap.Cart != nil {
		items = snap.Cart.Items
	}
	v.ItemCount = len(items)

	for _, it := range items {
		v.QtyByID[it.ProductID.String()] = it.Quantity
	}

	for _, it := range items {
		p, ok := v.ProductByID[it.ProductID.String()]
		if !ok {
			continue
		}
		total := p.Price * float64(it.Quantity)
		v.Subtotal += total
		v.Lines = append(v.Lines, Line{
			ProductID: it.ProductID.String(),
			Title:     p.Title,
			Image:     p.Image,
			Price:     model.DisplayPrice(p.Price),
			Quantity:  it.Quantity,
			LineTotal: model.FormatPrice(total),
		})
	}

	for _, p := range snap.Products {
		v.Products = append(v.Products, ProductCard{
			ID:       p.ID.String(),
			Title:    p.Title,
			Category: strings.ToUpper(p.Category),
			Price:    model.DisplayPrice(p.Price),
			Image:    p.Image,
			InCart:   v.QtyByID[p.ID.String()],
		})
	}

	return v
}

// SubtotalText は小計を小数点以下2桁で返す。
func (v View) SubtotalText() string {
	return model.FormatPrice(v.Subtotal)
}

// CartEmpty はカートに1行もない場合にtrueを返す。
func (v View) CartEmpty() bool {
	return v.ItemCount == 0
}
