package domain

import "errors"

var (
	ErrTariffNotFound    = errors.New("tariff not found")
	ErrSettingsNotFound  = errors.New("system settings not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrCallerNotFound    = errors.New("caller not found")
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrInvalidUsage      = errors.New("invalid usage values")
	ErrUsageMismatch     = errors.New("usage shape does not match tariff price unit")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)
