package series

import (
	"strings"

	"github.com/baechuer/teamup/internal/application/access"
	"github.com/baechuer/teamup/internal/audit"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/google/uuid"
)

type Service struct {
	repo     Repo
	guard    *access.Guard
	waitlist WaitlistProcessor
	clock    Clock
	audit    *audit.Logger

	newID func() string
}

func New(repo Repo, members access.Membership, waitlist WaitlistProcessor, clock Clock, al *audit.Logger) *Service {
	if al == nil {
		al = audit.Nop()
	}
	return &Service{
		repo:     repo,
		guard:    access.NewGuard(members),
		waitlist: waitlist,
		clock:    clock,
		audit:    al,
		newID:    uuid.NewString,
	}
}

func requireID(name, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", domain.ErrValidation(name + " is required")
	}
	return v, nil
}
