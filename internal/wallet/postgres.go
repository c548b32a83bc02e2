package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Querier é o subconjunto de *sql.DB / *sql.Tx usado pelas carteiras
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresLedger implementa Ledger sobre a transação do chamador.
// Toda mutação trava a linha da carteira (FOR UPDATE) e registra uma entrada no wallet_ledger.
type PostgresLedger struct{ q Querier }

func NewPostgresLedger(q Querier) *PostgresLedger { return &PostgresLedger{q: q} }

func (l *PostgresLedger) Balance(ctx context.Context, userID string, forUpdate bool) (decimal.Decimal, error) {
	q := `SELECT balance FROM wallets WHERE user_id=$1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var bal decimal.Decimal
	if err := l.q.QueryRowContext(ctx, q, userID).Scan(&bal); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, fmt.Errorf("wallet balance: %w", err)
	}
	return bal, nil
}

func (l *PostgresLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return l.apply(ctx, userID, amount, "CREDIT", ref)
}

func (l *PostgresLedger) Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) (decimal.Decimal, error) {
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return l.apply(ctx, userID, amount.Neg(), "DEBIT", ref)
}

// apply trava a carteira, calcula o novo saldo e registra a operação no ledger
func (l *PostgresLedger) apply(ctx context.Context, userID string, delta decimal.Decimal, op, ref string) (decimal.Decimal, error) {
	var walletID string
	var bal decimal.Decimal
	err := l.q.QueryRowContext(ctx, `SELECT id, balance FROM wallets WHERE user_id=$1 FOR UPDATE`, userID).Scan(&walletID, &bal)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrWalletNotFound
	} else if err != nil {
		return decimal.Zero, fmt.Errorf("wallet lock: %w", err)
	}

	next, err := NextBalance(bal, delta)
	if err != nil {
		return decimal.Zero, err
	}

	if _, err = l.q.ExecContext(ctx,
		`UPDATE wallets SET balance=$1, version=version+1, updated_at=NOW() WHERE id=$2`, next, walletID); err != nil {
		return decimal.Zero, fmt.Errorf("wallet update: %w", err)
	}

	if _, err = l.q.ExecContext(ctx,
		`INSERT INTO wallet_ledger(wallet_id, operation_type, amount, description) VALUES($1,$2,$3,$4)`,
		walletID, op, delta.Abs(), ref); err != nil {
		return decimal.Zero, fmt.Errorf("wallet ledger insert: %w", err)
	}
	return next, nil
}

// Repo expõe as operações de carteira do wallet-service (consulta e depósito)
type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// GetOrCreateWallet retorna o walletId e saldo de um usuário, criando a carteira se não existir
func (r *Repo) GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance decimal.Decimal, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", decimal.Zero, err
	}
	defer tx.Rollback()

	walletID, balance, err = getOrCreate(ctx, tx, userID)
	if err != nil {
		return "", decimal.Zero, err
	}
	if err = tx.Commit(); err != nil {
		return "", decimal.Zero, err
	}
	return walletID, balance, nil
}

// Deposit credita saldo na carteira (criando-a se preciso).
// Idempotente por externalRef: um depósito repetido devolve o saldo atual sem creditar.
func (r *Repo) Deposit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (walletID string, newBalance decimal.Decimal, err error) {
	if err := ValidateAmount(amount); err != nil {
		return "", decimal.Zero, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", decimal.Zero, err
	}
	defer tx.Rollback()

	walletID, balance, err := getOrCreate(ctx, tx, userID)
	if err != nil {
		return "", decimal.Zero, err
	}

	ref := "deposit:" + externalRef
	if externalRef != "" {
		var exists bool
		if err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM wallet_ledger WHERE wallet_id=$1 AND description=$2)`,
			walletID, ref).Scan(&exists); err != nil {
			return "", decimal.Zero, err
		}
		if exists {
			return walletID, balance, nil
		}
	}

	newBalance, err = NewPostgresLedger(tx).Credit(ctx, userID, amount, ref)
	if err != nil {
		return "", decimal.Zero, err
	}
	if err = tx.Commit(); err != nil {
		return "", decimal.Zero, err
	}
	return walletID, newBalance, nil
}

func getOrCreate(ctx context.Context, tx *sql.Tx, userID string) (string, decimal.Decimal, error) {
	var id string
	var bal decimal.Decimal
	err := tx.QueryRowContext(ctx, `SELECT id, balance FROM wallets WHERE user_id=$1`, userID).Scan(&id, &bal)
	if errors.Is(err, sql.ErrNoRows) {
		id = uuid.NewString()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO wallets(id, user_id, balance, version) VALUES($1,$2,0,1)
			 ON CONFLICT (user_id) DO NOTHING`, id, userID); err != nil {
			return "", decimal.Zero, err
		}
		// outra transação pode ter criado a carteira em paralelo
		if err = tx.QueryRowContext(ctx, `SELECT id, balance FROM wallets WHERE user_id=$1`, userID).Scan(&id, &bal); err != nil {
			return "", decimal.Zero, err
		}
		return id, bal, nil
	} else if err != nil {
		return "", decimal.Zero, err
	}
	return id, bal, nil
}
