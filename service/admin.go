package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/System625/delve-super-admin/models"
)

// DeactivateAccount administratively disables an account. Protected
// roles cannot be deactivated, and deactivating twice is rejected.
// All validation runs before any write.
func (s *Service) DeactivateAccount(ctx context.Context, accountID, actorID string) error {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return fmt.Errorf("locking account: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if account.Role.Protected() {
		return ErrProtectedRole
	}
	if account.IsDeactivated {
		return ErrAlreadyDeactivated
	}

	account.IsDeactivated = true
	if err := s.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}

	return s.appendDeactivation(ctx, account.ID, models.ActionDeactivate, actorID)
}

// ReactivateAccount restores a blocked or deactivated account to the
// active state. It clears both flags regardless of which was set; a
// fully active account is rejected.
func (s *Service) ReactivateAccount(ctx context.Context, accountID, actorID string) error {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return fmt.Errorf("locking account: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if !account.IsBlocked && !account.IsDeactivated {
		return ErrAlreadyActive
	}

	account.IsBlocked = false
	account.IsDeactivated = false
	if err := s.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}

	return s.appendDeactivation(ctx, account.ID, models.ActionReactivate, actorID)
}

// DeleteAccount erases an account together with its ledger entries and
// audit events. Protected roles cannot be deleted.
func (s *Service) DeleteAccount(ctx context.Context, accountID string) error {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return fmt.Errorf("locking account: %w", err)
	}
	defer unlock()

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if account.Role.Protected() {
		return ErrProtectedRole
	}

	if err := s.ledger.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("deleting usage entries: %w", err)
	}
	if err := s.audit.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("deleting audit events: %w", err)
	}
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}

	return nil
}

func (s *Service) appendDeactivation(ctx context.Context, accountID string, action models.DeactivationAction, actorID string) error {
	event := &models.DeactivationEvent{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		ActorID:   actorID,
		Timestamp: time.Now(),
	}
	if err := s.audit.AppendDeactivation(ctx, event); err != nil {
		return fmt.Errorf("appending deactivation event: %w", err)
	}
	return nil
}
