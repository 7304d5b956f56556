package domain

import (
	"errors"
	"strings"
)

// ErrCacheMiss is returned by cache adapters when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Actor is whoever triggered an operation.
type Actor struct {
	UserID string
	Role   string
}

const RoleSystem = "system"

// SystemActor is used by broker consumers and scheduled jobs.
func SystemActor() Actor { return Actor{UserID: "system", Role: RoleSystem} }

// Privileged actors skip group role checks.
func (a Actor) Privileged() bool {
	r := strings.ToLower(strings.TrimSpace(a.Role))
	return r == "admin" || r == RoleSystem
}
