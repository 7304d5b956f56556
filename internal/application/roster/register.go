package roster

import (
	"context"
	"time"

	"github.com/baechuer/teamup/internal/contracts/event"
	"github.com/baechuer/teamup/internal/domain"
	"github.com/baechuer/teamup/internal/logger"
	"github.com/baechuer/teamup/internal/metrics"
)

// Register admits userID to the game or places them on the waitlist.
// An empty userID registers the actor. Registering someone else needs the
// manager role; a guest does not have to be a group member.
func (s *Service) Register(ctx context.Context, actor domain.Actor, gameID, userID string, isGuest bool) (RegisterResult, error) {
	if userID == "" {
		userID = actor.UserID
	}
	userID, err := requireID("user_id", userID)
	if err != nil {
		return RegisterResult{}, err
	}
	g, err := s.gameForActor(ctx, gameID)
	if err != nil {
		return RegisterResult{}, err
	}
	gameID = g.ID

	if err := s.guard.RequireSelfOrManager(ctx, actor, g.GroupID, userID); err != nil {
		return RegisterResult{}, err
	}
	if userID != actor.UserID && !isGuest {
		if err := s.guard.RequireMember(ctx, domain.Actor{UserID: userID}, g.GroupID); err != nil {
			return RegisterResult{}, domain.ErrValidationMeta("user is not a member of this group", map[string]string{"user_id": userID})
		}
	}
	if s.closedInCache(ctx, gameID) {
		return RegisterResult{}, domain.ErrStateConflict("game is not accepting registrations")
	}

	memberSince, err := s.guard.MemberSince(ctx, g.GroupID, userID)
	if err != nil {
		return RegisterResult{}, err
	}

	var (
		res    RegisterResult
		queued bool
	)
	err = s.runLocked(ctx, "register", gameID, func(ctx context.Context, tx LedgerTx, g *domain.Game) error {
		res = RegisterResult{GameID: g.ID, UserID: userID}
		if err := g.AcceptsRegistrations(); err != nil {
			return err
		}
		now := s.clock.Now()

		p, err := tx.GetParticipant(ctx, userID)
		switch {
		case err == nil && p.Status.Active():
			res.Status = p.Status
			res.PriorityScore = p.PriorityScore
			return nil
		case err == nil:
			// declined earlier; the row is reused
		case domain.IsCode(err, domain.CodeNotFound):
			p = &domain.Participant{GameID: g.ID, UserID: userID, RegisteredAt: now}
		default:
			return err
		}
		p.IsGuest = isGuest

		// A seat freed by a cancel whose promotion has not run yet still
		// belongs to the waitlist head, so newcomers queue behind it.
		admit := g.CanAdmit()
		if admit && !g.Unlimited() {
			head, err := tx.NextWaitlisted(ctx)
			if err != nil {
				return err
			}
			if head != nil {
				admit = false
				queued = true
			}
		}

		rk := event.RKParticipantConfirmed
		if admit {
			domain.Admit(g, p, now)
			if err := tx.SaveGame(ctx, g); err != nil {
				return err
			}
		} else {
			score, err := s.scoreFor(ctx, tx, g.GroupID, userID, memberSince, now)
			if err != nil {
				return err
			}
			domain.Waitlist(p, score, now)
			rk = event.RKParticipantWaitlisted
		}
		if err := tx.SaveParticipant(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, participantMessage(rk, g, p, now)); err != nil {
			return err
		}

		res.Status = p.Status
		res.PriorityScore = p.PriorityScore
		res.Created = true
		return nil
	})
	if err != nil {
		return RegisterResult{}, err
	}

	if res.Created {
		metrics.RecordRegistration(string(res.Status))
		s.audit.Registered(ctx, gameID, userID, actor.UserID, res.Status, res.PriorityScore)
	} else {
		metrics.RecordRegistration("existing")
	}

	if queued {
		s.settleQueued(ctx, &res)
	}
	return res, nil
}

// settleQueued hands free seats to the waitlist in priority order and
// reports where the newcomer ended up.
func (s *Service) settleQueued(ctx context.Context, res *RegisterResult) {
	n, err := s.processWaitlist(ctx, res.GameID, false)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("game_id", res.GameID).Msg("waitlist promotion after register failed")
	}
	if n == 0 {
		return
	}
	p, err := s.ledger.GetParticipant(ctx, res.GameID, res.UserID)
	if err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("game_id", res.GameID).Msg("reload participant after promotion failed")
		return
	}
	res.Status = p.Status
	res.PriorityScore = p.PriorityScore
}

// scoreFor gathers the factor snapshot inside the unit and scores it.
func (s *Service) scoreFor(ctx context.Context, tx LedgerTx, groupID, userID string, memberSince, now time.Time) (int, error) {
	attended, noShows, err := tx.AttendanceHistory(ctx, groupID, userID)
	if err != nil {
		return 0, err
	}
	override, err := tx.PriorityOverride(ctx, groupID, userID)
	if err != nil {
		return 0, err
	}
	return s.cfg.Weights.Score(domain.PriorityFactors{
		Attended:    attended,
		NoShows:     noShows,
		MemberSince: memberSince,
		Override:    override,
		EvaluatedAt: now,
	}), nil
}

func participantMessage(rk string, g *domain.Game, p *domain.Participant, now time.Time) domain.OutboxMessage {
	return domain.OutboxMessage{
		RoutingKey: rk,
		OccurredAt: now,
		Payload: event.ParticipantPayload{
			GameID:        g.ID,
			GroupID:       g.GroupID,
			UserID:        p.UserID,
			Status:        string(p.Status),
			IsGuest:       p.IsGuest,
			PriorityScore: p.PriorityScore,
		},
	}
}
