package auth

import "github.com/Chitrarthrai/NeoCompliance/internal/apperr"

var (
	ErrTokenExpired         = apperr.Unauthorized("Token expired")
	ErrTokenInvalid         = apperr.Unauthorized("Invalid token")
	ErrMissingCredential    = apperr.Unauthorized("Authentication required")
	ErrRefreshTokenNotFound = apperr.Unauthorized("Unauthorized Access")
	ErrInvalidCredentials   = apperr.BadRequest("Invalid Email or Password")
	ErrAccountDisabled      = apperr.Forbidden("There is a problem with your account, please contact the admin")
	ErrRoleNotPermitted     = apperr.Forbidden("You are not allowed to access this resource")
	ErrUserNotFound         = apperr.NotFound("User not found")
)
