package postgres

const schema = `
CREATE TABLE IF NOT EXISTS ledger_state (
	name            TEXT PRIMARY KEY,
	last_seq        NUMERIC(20,0) NOT NULL,
	last_line       BIGINT NOT NULL,
	taken_at        BIGINT NOT NULL,
	collected_fees  NUMERIC(20,0) NOT NULL,
	governance      JSONB,
	custody         JSONB,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stake_pools (
	state_name            TEXT NOT NULL REFERENCES ledger_state(name) ON DELETE CASCADE,
	pool_address          TEXT NOT NULL,
	vault                 TEXT NOT NULL,
	token_mint            TEXT NOT NULL,
	admin                 TEXT NOT NULL,
	total_staked          NUMERIC(20,0) NOT NULL,
	total_rewards         NUMERIC(20,0) NOT NULL,
	total_weighted_stake  NUMERIC(20,0) NOT NULL,
	maker_fee_rate        INTEGER NOT NULL,
	taker_fee_rate        INTEGER NOT NULL,
	il_protection_fund    NUMERIC(20,0) NOT NULL,
	is_emergency          BOOLEAN NOT NULL,
	PRIMARY KEY (state_name, pool_address)
);

CREATE TABLE IF NOT EXISTS stakers (
	state_name       TEXT NOT NULL,
	pool_address     TEXT NOT NULL,
	owner            TEXT NOT NULL,
	amount           NUMERIC(20,0) NOT NULL,
	deposit_ts       BIGINT NOT NULL,
	PRIMARY KEY (state_name, pool_address, owner),
	FOREIGN KEY (state_name, pool_address) REFERENCES stake_pools(state_name, pool_address) ON DELETE CASCADE
);

ALTER TABLE ledger_state ADD COLUMN IF NOT EXISTS custody JSONB;
ALTER TABLE stakers DROP COLUMN IF EXISTS weight_snapshot;

CREATE TABLE IF NOT EXISTS ledger_events (
	seq                   NUMERIC(20,0) PRIMARY KEY,
	op                    TEXT NOT NULL,
	ts                    BIGINT NOT NULL,
	pool_address          TEXT NOT NULL,
	actor                 TEXT NOT NULL,
	amount                NUMERIC(20,0) NOT NULL,
	total_staked          NUMERIC(20,0) NOT NULL,
	total_rewards         NUMERIC(20,0) NOT NULL,
	total_weighted_stake  NUMERIC(20,0) NOT NULL,
	staker_amount         NUMERIC(20,0) NOT NULL,
	proposal_id           NUMERIC(20,0) NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS ledger_events_pool_idx ON ledger_events (pool_address, seq);

CREATE TABLE IF NOT EXISTS op_failures (
	line        BIGINT PRIMARY KEY,
	ts          BIGINT NOT NULL,
	op          TEXT NOT NULL,
	code        TEXT NOT NULL,
	error       TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
