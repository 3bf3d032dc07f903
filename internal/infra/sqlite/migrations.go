package sqlite

// Migrations returns the schema migration statements. Each string is a
// single SQL statement (SQLite executes one at a time).
//
// Monetary columns are INTEGER base units (1 credit = 1e8 units) so balance
// arithmetic stays atomic inside single UPDATE statements; CHECK constraints
// enforce non-negativity at the store, not the application.
func Migrations() []string {
	return []string{
		// Append-only ledger of monetary facts. Never updated or deleted.
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id            TEXT PRIMARY KEY,
			kind          TEXT NOT NULL,
			from_identity TEXT,
			to_identity   TEXT,
			amount        INTEGER NOT NULL CHECK(amount >= 0),
			metadata      TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_from ON ledger_entries(from_identity)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_to ON ledger_entries(to_identity)`,

		// Balance projection, mutated only in the same transaction as a
		// ledger insert. The CHECK constraints are the store-enforced
		// non-negativity guard behind every deduction.
		`CREATE TABLE IF NOT EXISTS accounts (
			identity       TEXT PRIMARY KEY,
			balance        INTEGER NOT NULL DEFAULT 0 CHECK(balance >= 0),
			promo_balance  INTEGER NOT NULL DEFAULT 0 CHECK(promo_balance >= 0),
			promo_lifetime INTEGER NOT NULL DEFAULT 0
		)`,

		// Escrow holds. Status transitions are guarded UPDATEs from HELD.
		`CREATE TABLE IF NOT EXISTS escrow_holds (
			id          TEXT PRIMARY KEY,
			bounty_id   TEXT NOT NULL,
			holder      TEXT NOT NULL,
			amount      INTEGER NOT NULL CHECK(amount >= 0),
			status      TEXT NOT NULL DEFAULT 'HELD',
			created_at  TEXT NOT NULL,
			released_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_escrow_bounty ON escrow_holds(bounty_id, status)`,

		`CREATE TABLE IF NOT EXISTS bounties (
			id               TEXT PRIMARY KEY,
			poster           TEXT NOT NULL,
			title            TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			reward           INTEGER NOT NULL CHECK(reward >= 0),
			closure_type     TEXT NOT NULL,
			status           TEXT NOT NULL,
			harness_hash     TEXT NOT NULL DEFAULT '',
			reviewer_count   INTEGER NOT NULL DEFAULT 0,
			min_reviewer_rep INTEGER NOT NULL DEFAULT 0,
			deadline         TEXT,
			created_at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bounty_status ON bounties(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bounty_poster ON bounties(poster)`,

		`CREATE TABLE IF NOT EXISTS submissions (
			id             TEXT PRIMARY KEY,
			bounty_id      TEXT NOT NULL,
			submitter      TEXT NOT NULL,
			artifact_hash  TEXT NOT NULL,
			envelope_json  TEXT NOT NULL,
			receipt_json   TEXT,
			status         TEXT NOT NULL DEFAULT 'PENDING',
			artifact_id    TEXT NOT NULL DEFAULT '',
			created_at     TEXT NOT NULL,
			resolved_at    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submission_bounty ON submissions(bounty_id)`,

		`CREATE TABLE IF NOT EXISTS approval_requests (
			id                TEXT PRIMARY KEY,
			operator          TEXT NOT NULL,
			requester         TEXT NOT NULL,
			action            TEXT NOT NULL,
			amount            INTEGER,
			bounty_id         TEXT NOT NULL DEFAULT '',
			delegate          TEXT NOT NULL DEFAULT '',
			status            TEXT NOT NULL DEFAULT 'PENDING',
			expires_at        TEXT NOT NULL,
			resolution_reason TEXT NOT NULL DEFAULT '',
			created_at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approval_operator ON approval_requests(operator, status)`,

		`CREATE TABLE IF NOT EXISTS disputes (
			id              TEXT PRIMARY KEY,
			bounty_id       TEXT NOT NULL,
			submission_id   TEXT NOT NULL,
			initiator       TEXT NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			stake_amount    INTEGER NOT NULL CHECK(stake_amount >= 0),
			stake_escrow_id TEXT NOT NULL,
			status          TEXT NOT NULL DEFAULT 'PENDING',
			outcome         TEXT,
			resolver        TEXT NOT NULL DEFAULT '',
			deadline        TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		// At most one live challenge per submission.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_dispute_pending
			ON disputes(submission_id) WHERE status = 'PENDING'`,

		// Append-only reputation facts plus a materialized total with a
		// decay anchor for lazy catch-up.
		`CREATE TABLE IF NOT EXISTS reputation_events (
			id              TEXT PRIMARY KEY,
			identity        TEXT NOT NULL,
			kind            TEXT NOT NULL,
			base_amount     INTEGER NOT NULL DEFAULT 0,
			closure_weight  TEXT NOT NULL DEFAULT '1',
			reviewer_weight TEXT NOT NULL DEFAULT '1',
			weighted_amount INTEGER NOT NULL,
			reason          TEXT NOT NULL DEFAULT '',
			bounty_id       TEXT NOT NULL DEFAULT '',
			dispute_id      TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reputation_identity ON reputation_events(identity)`,

		`CREATE TABLE IF NOT EXISTS reputation_totals (
			identity      TEXT PRIMARY KEY,
			total         INTEGER NOT NULL DEFAULT 0 CHECK(total >= 0),
			last_decay_at TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,
	}
}
