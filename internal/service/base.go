// Package service contains business logic and integrations backing HTTP handlers.
package service

import "github.com/rs/zerolog"

// BaseService provides common dependencies for service types.
type BaseService struct {
	logger zerolog.Logger
}
