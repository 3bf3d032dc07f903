package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrip-network/scrip/internal/domain"
)

// ─── Ledger Operations ──────────────────────────────────────────────────────

// InsertLedgerEntry appends one immutable monetary fact. The caller mutates
// the referenced balances in the same transaction.
func (s queries) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, kind, from_identity, to_identity, amount, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Kind), nullIdentity(e.From), nullIdentity(e.To), int64(e.Amount), e.Metadata, encodeTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListLedgerEntries returns entries touching the identity, oldest first.
func (s queries) ListLedgerEntries(ctx context.Context, identity domain.Identity, limit int) ([]domain.LedgerEntry, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, kind, from_identity, to_identity, amount, metadata, created_at
		FROM ledger_entries
		WHERE from_identity = ?1 OR to_identity = ?1
		ORDER BY rowid LIMIT ?2
	`, string(identity), limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e          domain.LedgerEntry
			from, to   sql.NullString
			amount     int64
			createdStr string
		)
		if err := rows.Scan(&e.ID, (*string)(&e.Kind), &from, &to, &amount, &e.Metadata, &createdStr); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.From = domain.Identity(from.String)
		e.To = domain.Identity(to.String)
		e.Amount = domain.Amount(amount)
		if e.CreatedAt, err = decodeTime(createdStr); err != nil {
			return nil, fmt.Errorf("scan ledger entry time: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── Balance Arithmetic ─────────────────────────────────────────────────────
// Each mutation is one atomic UPDATE guarded by the schema's non-negativity
// CHECK and an explicit WHERE guard. A stale read can never authorize an
// unguarded deduction because no deduction path reads first.

// CreditBalance adds to the main balance, creating the account lazily on
// first credit.
func (s queries) CreditBalance(ctx context.Context, identity domain.Identity, amount domain.Amount) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts (identity, balance) VALUES (?, ?)
		ON CONFLICT(identity) DO UPDATE SET balance = balance + excluded.balance
	`, string(identity), int64(amount))
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// DebitSpendable deducts from the spendable total, drawing the main balance
// first and promo only for the remainder. The WHERE clause is the guard:
// zero rows affected means the spendable total was short, regardless of
// what any earlier read claimed.
func (s queries) DebitSpendable(ctx context.Context, identity domain.Identity, amount domain.Amount) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE accounts
		SET balance       = max(0, balance - ?1),
		    promo_balance = promo_balance - max(0, ?1 - balance)
		WHERE identity = ?2 AND balance + promo_balance >= ?1
	`, int64(amount), string(identity))
	if err != nil {
		return fmt.Errorf("debit spendable: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit spendable: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s cannot cover %s", domain.ErrInsufficientFunds, identity, amount)
	}
	return nil
}

// CreditPromo adds promo balance subject to the lifetime cap. The cap check
// and the addition are one guarded statement.
func (s queries) CreditPromo(ctx context.Context, identity domain.Identity, amount, lifetimeCap domain.Amount) error {
	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts (identity) VALUES (?) ON CONFLICT(identity) DO NOTHING
	`, string(identity)); err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE accounts
		SET promo_balance  = promo_balance + ?1,
		    promo_lifetime = promo_lifetime + ?1
		WHERE identity = ?2 AND promo_lifetime + ?1 <= ?3
	`, int64(amount), string(identity), int64(lifetimeCap))
	if err != nil {
		return fmt.Errorf("credit promo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit promo: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: promo lifetime cap %s exceeded for %s", domain.ErrValidation, lifetimeCap, identity)
	}
	return nil
}

// GetAccount returns the balance projection. A never-credited identity has
// a zero account, not an error.
func (s queries) GetAccount(ctx context.Context, identity domain.Identity) (domain.Account, error) {
	acct := domain.Account{Identity: identity}
	var balance, promo, lifetime int64
	err := s.q.QueryRowContext(ctx, `
		SELECT balance, promo_balance, promo_lifetime FROM accounts WHERE identity = ?
	`, string(identity)).Scan(&balance, &promo, &lifetime)
	if errors.Is(err, sql.ErrNoRows) {
		return acct, nil
	}
	if err != nil {
		return acct, fmt.Errorf("get account: %w", err)
	}
	acct.Balance = domain.Amount(balance)
	acct.PromoBalance = domain.Amount(promo)
	acct.PromoLifetime = domain.Amount(lifetime)
	return acct, nil
}

// ─── Reconciliation ─────────────────────────────────────────────────────────

// LedgerDrift is the reconciliation result for one identity: the spendable
// projection compared against the sum of ledger facts.
type LedgerDrift struct {
	Identity domain.Identity `json:"identity"`
	Expected int64           `json:"expected"`
	Actual   int64           `json:"actual"`
}

// Drift returns Expected − Actual in base units; zero means balanced.
func (d LedgerDrift) Drift() int64 {
	return d.Expected - d.Actual
}

// ReconcileBalances recomputes every identity's expected spendable total
// from the ledger facts (Σ credits − Σ debits) and compares it against the
// projection. Diagnostic only; it takes no locks beyond a snapshot read.
func (s queries) ReconcileBalances(ctx context.Context) ([]LedgerDrift, error) {
	rows, err := s.q.QueryContext(ctx, `
		WITH identities AS (
			SELECT identity FROM accounts
			UNION SELECT from_identity FROM ledger_entries WHERE from_identity IS NOT NULL
			UNION SELECT to_identity FROM ledger_entries WHERE to_identity IS NOT NULL
		)
		SELECT i.identity,
			COALESCE((SELECT SUM(amount) FROM ledger_entries WHERE to_identity = i.identity), 0)
			- COALESCE((SELECT SUM(amount) FROM ledger_entries WHERE from_identity = i.identity), 0),
			COALESCE((SELECT balance + promo_balance FROM accounts WHERE identity = i.identity), 0)
		FROM identities i
		ORDER BY i.identity
	`)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	defer rows.Close()

	var drifts []LedgerDrift
	for rows.Next() {
		var d LedgerDrift
		var identity string
		if err := rows.Scan(&identity, &d.Expected, &d.Actual); err != nil {
			return nil, fmt.Errorf("scan reconcile row: %w", err)
		}
		d.Identity = domain.Identity(identity)
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// SumHoldsSince totals the HOLD entries an identity funded at or after the
// cutoff, for daily spend-cap enforcement.
func (s queries) SumHoldsSince(ctx context.Context, identity domain.Identity, since time.Time) (domain.Amount, error) {
	var total int64
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE kind = 'HOLD' AND from_identity = ? AND created_at >= ?
	`, string(identity), encodeTime(since)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum holds since: %w", err)
	}
	return domain.Amount(total), nil
}

func nullIdentity(id domain.Identity) any {
	if id == "" {
		return nil
	}
	return string(id)
}
