package topics

const (
	// Rodadas
	RoundStatus  = "round_status"
	RoundSettled = "round_settled"

	// Apostas
	BetsPlaced = "bets_placed"

	// Carteira
	UserBalanceChanged = "user_balance_changed"

	// Canal Redis pub/sub lido pelo hub websocket
	ZonesRoundBroadcast = "zones_round_broadcast"
)
