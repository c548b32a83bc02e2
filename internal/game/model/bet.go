package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinZone = 1
	MaxZone = 8

	// MoneyPlaces é a precisão fixa dos valores monetários
	MoneyPlaces = 2

	// GameType identifica o jogo no histórico de partidas
	GameType = "battle-royale"
)

// BetStatus é o estado de uma aposta
type BetStatus string

const (
	BetPending  BetStatus = "pending"
	BetWin      BetStatus = "win"
	BetLose     BetStatus = "lose"
	BetRefunded BetStatus = "refunded"
)

// ParseBetStatus converte o valor persistido em BetStatus
func ParseBetStatus(s string) (BetStatus, error) {
	switch st := BetStatus(s); st {
	case BetPending, BetWin, BetLose, BetRefunded:
		return st, nil
	}
	return "", fmt.Errorf("unknown bet status %q", s)
}

// Terminal indica que status e winAmount não mudam mais
func (s BetStatus) Terminal() bool {
	switch s {
	case BetWin, BetLose, BetRefunded:
		return true
	case BetPending:
		return false
	}
	return false
}

// Bet é uma aposta de um usuário em uma zona de uma rodada
type Bet struct {
	ID        string
	RoundID   string
	UserID    string
	Zone      int
	Amount    decimal.Decimal
	Status    BetStatus
	WinAmount decimal.Decimal
	CreatedAt time.Time
}

// ValidZone indica se a zona está entre 1 e 8
func ValidZone(zone int) bool { return zone >= MinZone && zone <= MaxZone }

// HasMoneyPrecision indica se o valor tem no máximo duas casas decimais
func HasMoneyPrecision(d decimal.Decimal) bool { return d.Equal(d.Truncate(MoneyPlaces)) }

// ValidateBet aplica as regras de zona e valor de uma aposta
func ValidateBet(zone int, amount decimal.Decimal) error {
	if !ValidZone(zone) {
		return fmt.Errorf("%w: zone %d outside %d..%d", ErrInvalidBet, zone, MinZone, MaxZone)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidBet)
	}
	if !HasMoneyPrecision(amount) {
		return fmt.Errorf("%w: amount %s has more than %d decimal places", ErrInvalidBet, amount, MoneyPlaces)
	}
	return nil
}

// ZeroZones retorna o mapa zona -> total com as oito zonas zeradas
func ZeroZones() map[int]decimal.Decimal {
	zones := make(map[int]decimal.Decimal, MaxZone)
	for z := MinZone; z <= MaxZone; z++ {
		zones[z] = decimal.Zero
	}
	return zones
}

// HistoryEntry é o registro agregado de um usuário em uma rodada liquidada
type HistoryEntry struct {
	UserID        string
	GameType      string
	Amount        decimal.Decimal // total apostado na rodada
	SelectedZones []int
	DrawnZones    []int
	Won           bool
	FinalBalance  decimal.Decimal
	CreatedAt     time.Time
}

// RoundProfit registra o usuário com maior resultado líquido de uma rodada
type RoundProfit struct {
	RoundID   string
	UserID    string
	Profit    decimal.Decimal
	CreatedAt time.Time
}
