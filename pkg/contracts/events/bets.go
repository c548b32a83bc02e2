package events

import "time"

type PlacedBet struct {
	BetID  string `json:"betId"`
	Zone   int    `json:"zone"`
	Amount string `json:"amount"`
}

// Evento publicado no tópico "bets_placed" após o commit de uma aposta
type BetsPlaced struct {
	RoundID     string      `json:"roundId"`
	RoundStatus string      `json:"roundStatus"`
	UserID      string      `json:"userId"`
	Bets        []PlacedBet `json:"bets"`
	Total       string      `json:"total"`
	Ts          time.Time   `json:"ts"`
}

// Sinal de invalidação de saldo, tópico "user_balance_changed"
type BalanceChanged struct {
	UserID string    `json:"userId"`
	Reason string    `json:"reason"` // "bet" | "settlement" | "refund"
	Ts     time.Time `json:"ts"`
}
