package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBalanceLimit        = errors.New("balance limit exceeded")
	ErrWalletNotFound      = errors.New("wallet not found")
)

// MaxBalance é o teto absoluto de saldo de uma carteira
var MaxBalance = decimal.New(1, 9)

// Ledger é o contrato de mutação de saldo usado pelo motor de rodadas.
// Todas as operações rodam dentro da unidade de trabalho do chamador.
type Ledger interface {
	// Balance lê o saldo atual; forUpdate bloqueia a linha da carteira
	Balance(ctx context.Context, userID string, forUpdate bool) (decimal.Decimal, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error)
}

// NextBalance aplica delta ao saldo atual com as verificações de limite e precisão.
// O saldo truncado em duas casas precisa ser igual ao valor calculado; caso
// contrário a operação é abortada com ErrConsistencyViolation.
func NextBalance(current, delta decimal.Decimal) (decimal.Decimal, error) {
	next := current.Add(delta)
	if next.IsNegative() {
		return decimal.Zero, ErrInsufficientBalance
	}
	if next.GreaterThan(MaxBalance) {
		return decimal.Zero, ErrBalanceLimit
	}
	formatted := next.Truncate(model.MoneyPlaces)
	if !formatted.Equal(next) {
		return decimal.Zero, fmt.Errorf("%w: balance %s loses precision", model.ErrConsistencyViolation, next)
	}
	return formatted, nil
}

// ValidateAmount rejeita valores não positivos em créditos e débitos
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}
