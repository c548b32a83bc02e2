package dto

import "github.com/shopspring/decimal"

type DepositRequest struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"external_ref,omitempty"` // opcional p/ idempotência simples
}

type WalletResponse struct {
	UserID   string          `json:"userId"`
	WalletID string          `json:"walletId"`
	Balance  decimal.Decimal `json:"balance"`
}
