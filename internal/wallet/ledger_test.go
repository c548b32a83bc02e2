package wallet_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/radieske/elimination-zones/internal/game/model"
	"github.com/radieske/elimination-zones/internal/wallet"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNextBalance(t *testing.T) {
	cases := []struct {
		name    string
		current string
		delta   string
		want    string
		err     error
	}{
		{"credit", "10.00", "5.25", "15.25", nil},
		{"debit to zero", "10.00", "-10.00", "0", nil},
		{"overdraw", "10.00", "-10.01", "", wallet.ErrInsufficientBalance},
		{"over limit", "999999999.00", "1.01", "", wallet.ErrBalanceLimit},
		{"at limit", "999999999.00", "1", "1000000000", nil},
		{"precision loss", "10.00", "0.005", "", model.ErrConsistencyViolation},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := wallet.NextBalance(d(c.current), d(c.delta))
			if c.err != nil {
				if !errors.Is(err, c.err) {
					t.Fatalf("got %v, want %v", err, c.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(d(c.want)) {
				t.Errorf("got %s, want %s", got, c.want)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	if err := wallet.ValidateAmount(d("0")); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Errorf("zero: got %v", err)
	}
	if err := wallet.ValidateAmount(d("-1")); !errors.Is(err, wallet.ErrInvalidAmount) {
		t.Errorf("negative: got %v", err)
	}
	if err := wallet.ValidateAmount(d("0.01")); err != nil {
		t.Errorf("positive: got %v", err)
	}
}
