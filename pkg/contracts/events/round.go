package events

import "time"

// Evento publicado no tópico "round_status" a cada transição de rodada
type RoundStatus struct {
	RoundID   string    `json:"roundId"`
	Status    string    `json:"status"` // "waiting" | "running" | "settling" | "finished"
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	SafeZones []int     `json:"safeZones,omitempty"`
	IsValid   bool      `json:"isValid"`
	Ts        time.Time `json:"ts"`
}

// Resumo da liquidação, tópico "round_settled"
type RoundSettled struct {
	RoundID       string    `json:"roundId"`
	IsValid       bool      `json:"isValid"`
	SafeZones     []int     `json:"safeZones,omitempty"`
	TotalBets     string    `json:"totalBets"`
	TotalPaid     string    `json:"totalPaid"`
	AffectedUsers []string  `json:"affectedUsers"`
	Ts            time.Time `json:"ts"`
}

// Broadcast de rodada para o websocket (canal Redis "zones_round_broadcast")
type RoundBroadcast struct {
	RoundID string            `json:"roundId"`
	Status  string            `json:"status"`
	Zones   map[string]string `json:"zones,omitempty"` // zona -> total
	Ts      time.Time         `json:"ts"`
}
