package gateway

import (
	"context"

	"github.com/becoinapp/becoin-backend/internal/wallets"
	pkgerrors "github.com/becoinapp/becoin-backend/pkg/errors"
)

// EventType identifies the gateway notifications the engine consumes.
type EventType string

const (
	EventChargeSucceeded EventType = "charge.succeeded"
	EventChargeFailed    EventType = "charge.failed"
	EventPayoutCompleted EventType = "payout.completed"
	EventPayoutFailed    EventType = "payout.failed"
)

// Event is one gateway notification. Reference correlates it with the
// pending recharge or withdraw transaction it settles.
type Event struct {
	ID        string
	Type      EventType
	Reference string
	Reason    string
}

// Service translates gateway events into wallet settlement calls.
type Service struct {
	wallets wallets.Service
	guard   *IdempotencyGuard
}

func NewService(walletSvc wallets.Service, guard *IdempotencyGuard) (*Service, error) {
	if walletSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet service required")
	}
	if guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	return &Service{wallets: walletSvc, guard: guard}, nil
}

// HandleEvent settles the wallet transaction the event references. Replayed
// event ids are acknowledged without touching the ledger; unknown event
// types are acknowledged so the gateway stops retrying them.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if event.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event reference required")
	}

	seen, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check event idempotency")
	}
	if seen {
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		// Unmark so the gateway's retry can try again.
		_ = s.guard.Delete(ctx, event.ID)
		return err
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, event Event) error {
	switch event.Type {
	case EventChargeSucceeded:
		return s.wallets.ConfirmRecharge(ctx, event.Reference)
	case EventChargeFailed:
		return s.wallets.FailRecharge(ctx, event.Reference, event.Reason)
	case EventPayoutCompleted:
		return s.wallets.ConfirmWithdraw(ctx, event.Reference)
	case EventPayoutFailed:
		return s.wallets.FailWithdraw(ctx, event.Reference, event.Reason)
	default:
		return nil
	}
}
