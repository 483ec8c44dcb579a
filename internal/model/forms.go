package model

// Credentials はサインアップフォームの入力値。
// JSONタグはストアAPIの /api/auth/signup が期待するフィールド名に一致させる。
type Credentials struct {
	Name            string `json:"name" validate:"required"`
	MobileNo        string `json:"mobileNo" validate:"required"`
	Email           string `json:"email" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// LoginForm はログインフォームの入力値。
type LoginForm struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}
