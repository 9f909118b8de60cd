package models

import "time"

// LoginRequest holds credentials for authenticating a user. Either the
// username or the email identifies the principal.
type LoginRequest struct {
	Username string `json:"username" validate:"omitempty,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest carries the fields needed to create a principal.
type RegisterRequest struct {
	Username   string `json:"username" validate:"required,max=64"`
	Email      string `json:"email" validate:"required,email"`
	FullName   string `json:"fullName" validate:"required,max=128"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	Avatar     string `json:"avatar" validate:"omitempty,url"`
	CoverImage string `json:"coverImage" validate:"omitempty,url"`
}

// RefreshTokenRequest carries a refresh token presented in the request body.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
}

// TokenPair is an access token together with its refresh token.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// LoginResponse returns the issued tokens and the user profile.
type LoginResponse struct {
	User *UserProfile `json:"user"`
	TokenPair
}
