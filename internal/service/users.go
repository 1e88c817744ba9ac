package service

import (
	"context"
	"fmt"
	"time"

	"github.com/skillboard-api/internal/domain"
)

// RegisterOrTouch creates a user record on first sight, otherwise bumps
// lastSeen and overwrites the external id when one is provided. The address
// joins the global known-address set on creation only.
func (s *SkillService) RegisterOrTouch(ctx context.Context, address string, fid int64) (*domain.User, error) {
	address = domain.NormalizeAddress(address)
	now := time.Now()

	user, err := s.store.GetUser(ctx, address)
	switch {
	case err == domain.ErrUserNotFound:
		user = &domain.User{
			Address:              address,
			FID:                  fid,
			FirstSeen:            now,
			LastSeen:             now,
			NotificationsEnabled: false,
		}
		if err := s.store.PutUser(ctx, *user); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		if _, err := s.store.AddKnownAddress(ctx, address); err != nil {
			return nil, fmt.Errorf("registering address: %w", err)
		}
	case err != nil:
		return nil, err
	default:
		user.LastSeen = now
		if fid != 0 {
			user.FID = fid
		}
		if err := s.store.PutUser(ctx, *user); err != nil {
			return nil, fmt.Errorf("updating user: %w", err)
		}
	}

	if s.archive != nil {
		if err := s.archive.UpsertUser(ctx, *user); err != nil {
			s.logger.Warn("failed to archive user", "address", address, "error", err)
		}
	}
	return user, nil
}

// GetUser returns a user by address
func (s *SkillService) GetUser(ctx context.Context, address string) (*domain.User, error) {
	return s.store.GetUser(ctx, domain.NormalizeAddress(address))
}

// ListUsers returns all registered users. Unbounded; the corpus is assumed
// small enough that pagination is not needed.
func (s *SkillService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.store.ListUsers(ctx)
}

// SetNotificationsEnabled flips a user's notification opt-in flag
func (s *SkillService) SetNotificationsEnabled(ctx context.Context, address string, enabled bool) error {
	address = domain.NormalizeAddress(address)

	user, err := s.store.GetUser(ctx, address)
	if err != nil {
		return err
	}

	user.NotificationsEnabled = enabled
	if err := s.store.PutUser(ctx, *user); err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	if s.archive != nil {
		if err := s.archive.UpsertUser(ctx, *user); err != nil {
			s.logger.Warn("failed to archive user", "address", address, "error", err)
		}
	}
	return nil
}

// EnableNotifications stores a delivery token for the given external id and
// flips the matching user's opt-in flag on. Called from the notification
// gateway webhook when a user enables notifications.
func (s *SkillService) EnableNotifications(ctx context.Context, fid int64, token string) error {
	if fid == 0 || token == "" {
		return domain.ErrInvalidRequest
	}

	user, err := s.FindByFID(ctx, fid)
	if err != nil {
		return err
	}

	if err := s.store.SetNotificationToken(ctx, fid, token); err != nil {
		return fmt.Errorf("storing notification token: %w", err)
	}
	return s.SetNotificationsEnabled(ctx, user.Address, true)
}

// DisableNotifications removes the delivery token for the given external id
// and flips the matching user's opt-in flag off. The token is deleted even
// when no user record matches the id anymore.
func (s *SkillService) DisableNotifications(ctx context.Context, fid int64) error {
	if fid == 0 {
		return domain.ErrInvalidRequest
	}

	if err := s.store.DeleteNotificationToken(ctx, fid); err != nil {
		return fmt.Errorf("deleting notification token: %w", err)
	}

	user, err := s.FindByFID(ctx, fid)
	if err == domain.ErrUserNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return s.SetNotificationsEnabled(ctx, user.Address, false)
}

// FindByFID returns the user with the given external id. Linear scan over
// all users; acceptable for small corpora only.
func (s *SkillService) FindByFID(ctx context.Context, fid int64) (*domain.User, error) {
	if fid == 0 {
		return nil, domain.ErrUserNotFound
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].FID == fid {
			return &users[i], nil
		}
	}
	return nil, domain.ErrUserNotFound
}
