// Package auth gates the quote API by caller role and the admin API by a
// bcrypt-verified operator account (the dashboard's service login).
package auth

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidPassword = errors.New("invalid password")
)

type Role string

const (
	// RoleBot may request quotes and read tariffs.
	RoleBot Role = "bot"
	// RoleReadonly may read tariffs and usage only.
	RoleReadonly Role = "readonly"
	// RoleAdmin may do everything, including mutating pricing data.
	RoleAdmin Role = "admin"
)

type Permission string

const (
	PermissionQuoteCreate   Permission = "quote:create"
	PermissionTariffRead    Permission = "tariff:read"
	PermissionTariffWrite   Permission = "tariff:write"
	PermissionSettingsWrite Permission = "settings:write"
	PermissionUserWrite     Permission = "user:write"
	PermissionUsageRead     Permission = "usage:read"
	PermissionCallerManage  Permission = "caller:manage"
)

var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionQuoteCreate,
		PermissionTariffRead,
		PermissionTariffWrite,
		PermissionSettingsWrite,
		PermissionUserWrite,
		PermissionUsageRead,
		PermissionCallerManage,
	},
	RoleBot: {
		PermissionQuoteCreate,
		PermissionTariffRead,
	},
	RoleReadonly: {
		PermissionTariffRead,
		PermissionUsageRead,
	},
}

func HasPermission(role Role, permission Permission) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// AdminAccount is the single operator login for the admin API. An empty
// Username disables basic-auth gating (local development).
type AdminAccount struct {
	Username     string
	PasswordHash string
}

// BasicAuthMiddleware protects the admin routes with the operator account.
func BasicAuthMiddleware(account AdminAccount, next http.Handler) http.Handler {
	if account.Username == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username != account.Username || CheckPassword(account.PasswordHash, password) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="Pricing Admin API"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey string

const roleContextKey contextKey = "caller_role"

func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleContextKey, role)
}

func RoleFromContext(ctx context.Context) (Role, bool) {
	role, ok := ctx.Value(roleContextKey).(Role)
	return role, ok
}
