package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ProductID はストアAPIが返す商品IDを表す。
// APIはIDを数値または文字列のどちらでも返しうるため、文字列表現に正規化して比較する。
type ProductID string

// UnmarshalJSON は数値・文字列いずれのJSON表現も受け付ける。
func (id *ProductID) UnmarshalJSON(b []byte) error {
	s, err := ParseFlexibleID(b)
	if err != nil {
		return err
	}
	*id = ProductID(s)
	return nil
}

// ParseFlexibleID は数値または文字列で表現されたJSONのIDを文字列に正規化する。
// nullは空文字列として扱う。
func ParseFlexibleID(b []byte) (string, error) {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return "", nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return "", err
		}
		return str, nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// String はIDの文字列表現を返す。
func (id ProductID) String() string {
	return string(id)
}

// Product はストアAPIのカタログに含まれる商品。クライアントからは不変。
type Product struct {
	ID       ProductID `json:"id"`
	Title    string    `json:"title"`
	Price    float64   `json:"price"`
	Image    string    `json:"image"`
	Category string    `json:"category"`
}

// CartItem はカート内の1行（商品IDと数量）。
type CartItem struct {
	ProductID ProductID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// Cart はサーバー側が所有するカートのスナップショット。
type Cart struct {
	Items []CartItem `json:"items"`
}

// CatalogSnapshot は GET /api/cart/products-cart の応答。
type CatalogSnapshot struct {
	Products []Product `json:"products"`
	Cart     *Cart     `json:"cart"`
}

// FormatPrice は価格を小数点以下2桁の文字列に整形する。
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// DisplayPrice は価格を丸めずに最短表記で整形する（例: 109.95, 22.3, 25）。
func DisplayPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
