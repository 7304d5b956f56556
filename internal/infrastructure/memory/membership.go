package memory

import (
	"context"
	"strings"
	"time"

	"github.com/baechuer/teamup/internal/application/access"
)

var _ access.Membership = (*Store)(nil)

const (
	RoleMember  = "member"
	RoleManager = "manager"
	RoleOwner   = "owner"
)

// AddMember registers a group membership. Role is member, manager or owner.
func (s *Store) AddMember(groupID, userID, role string, since time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[key(groupID, userID)] = member{role: strings.ToLower(role), since: since}
}

func (s *Store) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[key(groupID, userID)]
	return ok, nil
}

func (s *Store) CanManageGames(ctx context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[key(groupID, userID)]
	return ok && (m.role == RoleManager || m.role == RoleOwner), nil
}

func (s *Store) MemberSince(ctx context.Context, groupID, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[key(groupID, userID)].since, nil
}
