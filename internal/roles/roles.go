package roles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sadopc/teamworkflow/internal/store"
)

var (
	ErrForbidden        = errors.New("only admins can manage roles")
	ErrApprovalRequired = errors.New("demoting an admin requires approval from another admin")
	ErrLastAdmin        = errors.New("cannot demote the last admin")
	ErrSelfApproval     = errors.New("a demotion must be decided by an admin other than the requester and the target")
	ErrNotPending       = errors.New("demotion request is not pending")
	ErrDuplicateRequest = errors.New("a demotion request for this user is already pending")
	ErrNotAdmin         = errors.New("target is not an admin")
)

// Manager applies role changes. Admins may change any non-admin role
// directly; taking the admin role away goes through a request that a
// second admin approves.
type Manager struct {
	store *store.Store
	log   *log.Logger
	now   func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func New(s *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		log:   log.New(io.Discard),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ChangeRole sets the target's role. Demoting another admin returns
// ErrApprovalRequired; use RequestDemotion instead.
func (m *Manager) ChangeRole(ctx context.Context, actorID, targetID int64, role store.Role) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid role: %s: %w", role, store.ErrInvalid)
	}
	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		if err := requireAdmin(ctx, tx, actorID); err != nil {
			return err
		}
		target, err := tx.GetUser(ctx, targetID)
		if err != nil {
			return err
		}
		if target.Role == role {
			return nil
		}
		if target.Role == store.RoleAdmin {
			// Admins may step down themselves as long as another admin remains.
			if actorID != targetID {
				return ErrApprovalRequired
			}
			admins, err := tx.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}
		return tx.SetRole(ctx, targetID, role)
	})
	if err != nil {
		return err
	}
	m.log.Info("role changed", "actor", actorID, "user", targetID, "role", role)
	return nil
}

// RequestDemotion opens a pending request to take the admin role from targetID.
func (m *Manager) RequestDemotion(ctx context.Context, requesterID, targetID int64, reason string) (*store.DemotionRequest, error) {
	req := &store.DemotionRequest{
		ID:           uuid.NewString(),
		TargetUserID: targetID,
		RequestedBy:  requesterID,
		Reason:       reason,
		Status:       store.DemotionPending,
		CreatedAt:    m.now().UTC(),
	}
	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		if err := requireAdmin(ctx, tx, requesterID); err != nil {
			return err
		}
		target, err := tx.GetUser(ctx, targetID)
		if err != nil {
			return err
		}
		if target.Role != store.RoleAdmin {
			return ErrNotAdmin
		}
		if err := tx.InsertDemotion(ctx, req); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateRequest
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("demotion requested", "request", req.ID, "by", requesterID, "user", targetID)
	return req, nil
}

// ApproveDemotion applies a pending request. The target becomes an operator
// when linked to one, otherwise a guest.
func (m *Manager) ApproveDemotion(ctx context.Context, approverID int64, requestID string) (*store.DemotionRequest, error) {
	var out *store.DemotionRequest
	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		req, err := decidable(ctx, tx, approverID, requestID)
		if err != nil {
			return err
		}
		target, err := tx.GetUser(ctx, req.TargetUserID)
		if err != nil {
			return err
		}
		if target.Role == store.RoleAdmin {
			admins, err := tx.CountAdmins(ctx)
			if err != nil {
				return err
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
			role := store.RoleGuest
			if target.OperatorID != nil {
				role = store.RoleOperator
			}
			if err := tx.SetRole(ctx, target.ID, role); err != nil {
				return err
			}
		}
		if err := tx.DecideDemotion(ctx, requestID, store.DemotionApproved, approverID, m.now().UTC()); err != nil {
			return err
		}
		out, err = tx.GetDemotion(ctx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("demotion approved", "request", requestID, "by", approverID, "user", out.TargetUserID)
	return out, nil
}

func (m *Manager) RejectDemotion(ctx context.Context, deciderID int64, requestID string) (*store.DemotionRequest, error) {
	var out *store.DemotionRequest
	err := m.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := decidable(ctx, tx, deciderID, requestID); err != nil {
			return err
		}
		if err := tx.DecideDemotion(ctx, requestID, store.DemotionRejected, deciderID, m.now().UTC()); err != nil {
			return err
		}
		var err error
		out, err = tx.GetDemotion(ctx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.log.Info("demotion rejected", "request", requestID, "by", deciderID)
	return out, nil
}

func (m *Manager) PendingDemotions(ctx context.Context) ([]store.DemotionRequest, error) {
	return m.store.ListDemotions(ctx, store.DemotionPending)
}

// decidable loads a pending request that deciderID is allowed to decide.
func decidable(ctx context.Context, tx *store.Tx, deciderID int64, requestID string) (*store.DemotionRequest, error) {
	if err := requireAdmin(ctx, tx, deciderID); err != nil {
		return nil, err
	}
	req, err := tx.GetDemotion(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != store.DemotionPending {
		return nil, fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrNotPending)
	}
	if deciderID == req.RequestedBy || deciderID == req.TargetUserID {
		return nil, ErrSelfApproval
	}
	return req, nil
}

func requireAdmin(ctx context.Context, tx *store.Tx, userID int64) error {
	u, err := tx.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %d: %w", userID, ErrForbidden)
	}
	if err != nil {
		return err
	}
	if u.Role != store.RoleAdmin {
		return ErrForbidden
	}
	return nil
}
