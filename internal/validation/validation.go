// Package validation はサインアップ・ログインフォームのクライアント側検証を提供する。
// 検証に失敗した入力はストアAPIへ送信しない。
package validation

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/storefront/internal/model"
)

// ユーザーに表示する検証メッセージ。
const (
	MsgFillAllFields    = "⚠ Please fill all fields"
	MsgPasswordMismatch = "⚠ Passwords do not match"
	MsgInvalidMobile    = "⚠ Mobile number must be 10 digits"
	MsgInvalidEmail     = "⚠ Invalid email address"
)

var (
	mobilePattern = regexp.MustCompile(`^[0-9]{10}$`)
	// emailPattern は部分一致で評価する（前後に任意の文字があってもよい）。
	// RE2の\SはASCII空白しか除外しないため、NBSPやUnicode空白も明示的に除外する。
	emailPattern = regexp.MustCompile(
		`[^` + emailSpace + `]+@[^` + emailSpace + `]+\.[^` + emailSpace + `]+`,
	)
)

// emailSpace はメール形式検証で空白とみなす文字のクラス。
// ASCII空白に加え、垂直タブ、NBSP、BOM、Zsカテゴリ、行・段落区切りを含む。
const emailSpace = `\s\v\x{a0}\x{feff}\p{Zs}\x{2028}\x{2029}`

// Error はフォーム検証エラー。Messageはそのまま画面に表示される。
type Error struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return e.Message
}

// IsValidationError はerrがフォーム検証エラーかどうかを返す。
func IsValidationError(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Validator はフォーム検証器。goroutineセーフ。
type Validator struct {
	v *validator.Validate
}

// New はValidatorを生成する。
func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateSignup はサインアップ入力を検証する。
// 検証順序: 必須項目 → パスワード一致 → 携帯番号形式 → メール形式。
// 最初に失敗した検証のエラーのみを返す。
func (v *Validator) ValidateSignup(c model.Credentials) error {
	if err := v.v.Struct(c); err != nil {
		return requiredError(err)
	}
	if c.Password != c.ConfirmPassword {
		return &Error{Field: "confirmPassword", Message: MsgPasswordMismatch}
	}
	if !mobilePattern.MatchString(c.MobileNo) {
		return &Error{Field: "mobileNo", Message: MsgInvalidMobile}
	}
	if !emailPattern.MatchString(c.Email) {
		return &Error{Field: "email", Message: MsgInvalidEmail}
	}
	return nil
}

// ValidateLogin はログイン入力を検証する。パスワード強度は検証しない。
func (v *Validator) ValidateLogin(f model.LoginForm) error {
	if err := v.v.Struct(f); err != nil {
		return requiredError(err)
	}
	if !emailPattern.MatchString(f.Email) {
		return &Error{Field: "email", Message: MsgInvalidEmail}
	}
	return nil
}

// requiredError はvalidatorのエラーを「全項目入力」エラーに変換する。
func requiredError(err error) error {
	field := ""
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field = verrs[0].Field()
	}
	return &Error{Field: field, Message: MsgFillAllFields}
}
