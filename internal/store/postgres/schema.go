package postgres

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS players (
	id          BIGSERIAL PRIMARY KEY,
	name        VARCHAR(100) NOT NULL,
	balance     NUMERIC(18,2) NOT NULL CHECK (balance >= 0),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS races (
	id                   BIGSERIAL PRIMARY KEY,
	start_time           TIMESTAMPTZ NOT NULL,
	end_time             TIMESTAMPTZ,
	is_finished          BOOLEAN NOT NULL DEFAULT FALSE,
	winner_number        INTEGER,
	official_placements  INTEGER[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS races_unfinished_idx ON races (start_time) WHERE NOT is_finished;

CREATE TABLE IF NOT EXISTS participants (
	id         BIGSERIAL PRIMARY KEY,
	race_id    BIGINT NOT NULL REFERENCES races(id) ON DELETE CASCADE,
	number     INTEGER NOT NULL,
	name       TEXT NOT NULL,
	is_winner  BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (race_id, number)
);

CREATE TABLE IF NOT EXISTS bets (
	id          BIGSERIAL PRIMARY KEY,
	player_id   BIGINT NOT NULL,
	race_id     BIGINT NOT NULL,
	amount      NUMERIC(18,2) NOT NULL,
	bet_type    TEXT NOT NULL,
	selection   JSONB NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL,
	payout      NUMERIC(18,2),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS bets_status_idx ON bets (status);
CREATE INDEX IF NOT EXISTS bets_race_idx ON bets (race_id, status);
CREATE INDEX IF NOT EXISTS bets_player_idx ON bets (player_id);

CREATE TABLE IF NOT EXISTS wallet_ledger (
	id              UUID PRIMARY KEY,
	player_id       BIGINT NOT NULL,
	operation_type  TEXT NOT NULL,
	amount          NUMERIC(18,2) NOT NULL,
	balance_after   NUMERIC(18,2) NOT NULL,
	related_bet_id  BIGINT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS wallet_ledger_player_idx ON wallet_ledger (player_id, created_at);
`

// EnsureSchema cria as tabelas caso não existam.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

// ResetSchema apaga e recria as tabelas (usado pelo race-manager com RESET_DB=true).
func ResetSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS wallet_ledger, bets, participants, races, players`); err != nil {
		return err
	}
	return EnsureSchema(ctx, db)
}
