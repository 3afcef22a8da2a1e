package ports

import (
	"context"
	"errors"
)

// ErrMFARequired is returned by the identity provider when the credentials
// were accepted but a second factor is still needed.
var ErrMFARequired = errors.New("two-factor authentication required")

// RejectedError carries the message the identity provider gave for a
// rejected request, e.g. a wrong password or an expired reset code.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "request rejected by identity provider"
	}
	return e.Message
}

func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Persist  bool   `json:"rememberMe"`
}

type LoginResponse struct {
	UserID string `json:"userId,omitempty"`
}

type NewPasswordRequest struct {
	UserID    string `json:"userId"`
	ResetCode string `json:"resetCode"`
	Password  string `json:"password"`
}

// IdentityProvider performs the remote calls behind the login forms.
type IdentityProvider interface {
	Login(ctx context.Context, req LoginRequest) (LoginResponse, error)
	RequestPasswordReset(ctx context.Context, username string) error
	SetNewPassword(ctx context.Context, req NewPasswordRequest) error
}
