// Package common defines constants and sentinel errors shared by the
// repositories, services and transport layers. Callers should use errors.Is
// to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Infrastructure failures that must not leak details to clients.
	ErrorInternal = errors.New("internal error")

	// Administration auth.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidToken   = errors.New("invalid token")
)
