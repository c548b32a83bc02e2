package events

import (
	"context"
	"errors"

	cevents "github.com/radieske/elimination-zones/pkg/contracts/events"
)

// Publisher recebe os eventos de domínio emitidos após cada commit.
// Falhas de publicação nunca desfazem o que já foi confirmado.
type Publisher interface {
	RoundStatus(ctx context.Context, e cevents.RoundStatus) error
	RoundSettled(ctx context.Context, e cevents.RoundSettled) error
	BetsPlaced(ctx context.Context, e cevents.BetsPlaced) error
	BalanceChanged(ctx context.Context, userIDs []string, reason string) error
}

// Multi repassa cada evento a todos os publishers e junta os erros
type Multi []Publisher

func (m Multi) RoundStatus(ctx context.Context, e cevents.RoundStatus) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.RoundStatus(ctx, e))
	}
	return errors.Join(errs...)
}

func (m Multi) RoundSettled(ctx context.Context, e cevents.RoundSettled) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.RoundSettled(ctx, e))
	}
	return errors.Join(errs...)
}

func (m Multi) BetsPlaced(ctx context.Context, e cevents.BetsPlaced) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.BetsPlaced(ctx, e))
	}
	return errors.Join(errs...)
}

func (m Multi) BalanceChanged(ctx context.Context, userIDs []string, reason string) error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.BalanceChanged(ctx, userIDs, reason))
	}
	return errors.Join(errs...)
}

// Nop descarta tudo
type Nop struct{}

func (Nop) RoundStatus(context.Context, cevents.RoundStatus) error   { return nil }
func (Nop) RoundSettled(context.Context, cevents.RoundSettled) error { return nil }
func (Nop) BetsPlaced(context.Context, cevents.BetsPlaced) error     { return nil }
func (Nop) BalanceChanged(context.Context, []string, string) error   { return nil }
