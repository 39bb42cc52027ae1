package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityStake/internal/model"
)

// Store provides Postgres persistence for ledger snapshots and the event
// journal. uint64 amounts are stored as NUMERIC(20,0).
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the named snapshot in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, name string, snap model.Snapshot) error {
	if name == "" {
		return fmt.Errorf("snapshot name required")
	}
	var governance, custody []byte
	if snap.Governance != nil {
		data, err := json.Marshal(snap.Governance)
		if err != nil {
			return fmt.Errorf("marshal governance: %w", err)
		}
		governance = data
	}
	if snap.Custody != nil {
		data, err := json.Marshal(snap.Custody)
		if err != nil {
			return fmt.Errorf("marshal custody: %w", err)
		}
		custody = data
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO ledger_state (name, last_seq, last_line, taken_at, collected_fees, governance, custody, updated_at)
		VALUES ($1, $2::numeric, $3, $4, $5::numeric, $6::jsonb, $7::jsonb, now())
		ON CONFLICT (name) DO UPDATE SET
			last_seq = EXCLUDED.last_seq,
			last_line = EXCLUDED.last_line,
			taken_at = EXCLUDED.taken_at,
			collected_fees = EXCLUDED.collected_fees,
			governance = EXCLUDED.governance,
			custody = EXCLUDED.custody,
			updated_at = now()
	`,
		name,
		u64(snap.LastSeq),
		int64(snap.LastLine),
		snap.TakenAt,
		u64(snap.Treasury.CollectedFees),
		nullableJSON(governance),
		nullableJSON(custody),
	)
	batch.Queue(`DELETE FROM stakers WHERE state_name = $1`, name)
	batch.Queue(`DELETE FROM stake_pools WHERE state_name = $1`, name)
	for _, p := range snap.Pools {
		batch.Queue(`
			INSERT INTO stake_pools (
				state_name, pool_address, vault, token_mint, admin,
				total_staked, total_rewards, total_weighted_stake,
				maker_fee_rate, taker_fee_rate, il_protection_fund, is_emergency
			) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9,$10,$11::numeric,$12)
		`,
			name,
			p.ID.Hex(),
			p.Vault.Hex(),
			p.TokenMint.Hex(),
			p.Admin.Hex(),
			u64(p.TotalStaked),
			u64(p.TotalRewards),
			u64(p.TotalWeightedStake),
			int32(p.MakerFeeRate),
			int32(p.TakerFeeRate),
			u64(p.ImpermanentLossProtectionFund),
			p.IsEmergency,
		)
	}
	for _, st := range snap.Stakers {
		batch.Queue(`
			INSERT INTO stakers (state_name, pool_address, owner, amount, deposit_ts)
			VALUES ($1,$2,$3,$4::numeric,$5)
		`,
			name,
			st.Pool.Hex(),
			st.Owner.Hex(),
			u64(st.Amount),
			st.DepositTimestamp,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("save snapshot %s: %w", name, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return tx.Commit(ctx)
}

// LoadSnapshot reads the named snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, name string) (model.Snapshot, bool, error) {
	if name == "" {
		return model.Snapshot{}, false, fmt.Errorf("snapshot name required")
	}

	var (
		snap          model.Snapshot
		lastSeq, fees string
		lastLine      int64
		governance    *string
		custody       *string
	)
	row := s.pool.QueryRow(ctx, `
		SELECT last_seq::text, last_line, taken_at, collected_fees::text, governance::text, custody::text
		FROM ledger_state WHERE name = $1
	`, name)
	if err := row.Scan(&lastSeq, &lastLine, &snap.TakenAt, &fees, &governance, &custody); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snapshot{}, false, nil
		}
		return model.Snapshot{}, false, err
	}
	var err error
	if snap.LastSeq, err = parseU64(lastSeq); err != nil {
		return model.Snapshot{}, false, err
	}
	if snap.Treasury.CollectedFees, err = parseU64(fees); err != nil {
		return model.Snapshot{}, false, err
	}
	snap.LastLine = uint64(lastLine)
	if governance != nil {
		var g model.Governance
		if err := json.Unmarshal([]byte(*governance), &g); err != nil {
			return model.Snapshot{}, false, fmt.Errorf("parse governance: %w", err)
		}
		snap.Governance = &g
	}
	if custody != nil {
		var c model.CustodyState
		if err := json.Unmarshal([]byte(*custody), &c); err != nil {
			return model.Snapshot{}, false, fmt.Errorf("parse custody: %w", err)
		}
		snap.Custody = &c
	}

	if snap.Pools, err = s.loadPools(ctx, name); err != nil {
		return model.Snapshot{}, false, err
	}
	if snap.Stakers, err = s.loadStakers(ctx, name); err != nil {
		return model.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *Store) loadPools(ctx context.Context, name string) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address, vault, token_mint, admin,
			total_staked::text, total_rewards::text, total_weighted_stake::text,
			maker_fee_rate, taker_fee_rate, il_protection_fund::text, is_emergency
		FROM stake_pools WHERE state_name = $1
		ORDER BY pool_address
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		var (
			p                               model.Pool
			id, vault, mint, admin          string
			staked, rewards, weighted, fund string
			maker, taker                    int32
		)
		if err := rows.Scan(&id, &vault, &mint, &admin, &staked, &rewards, &weighted, &maker, &taker, &fund, &p.IsEmergency); err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		p.ID = common.HexToAddress(id)
		p.Vault = common.HexToAddress(vault)
		p.TokenMint = common.HexToAddress(mint)
		p.Admin = common.HexToAddress(admin)
		p.MakerFeeRate = uint16(maker)
		p.TakerFeeRate = uint16(taker)
		for _, f := range []struct {
			dst *uint64
			src string
		}{
			{&p.TotalStaked, staked},
			{&p.TotalRewards, rewards},
			{&p.TotalWeightedStake, weighted},
			{&p.ImpermanentLossProtectionFund, fund},
		} {
			if *f.dst, err = parseU64(f.src); err != nil {
				return nil, err
			}
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func (s *Store) loadStakers(ctx context.Context, name string) ([]model.Staker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address, owner, amount::text, deposit_ts
		FROM stakers WHERE state_name = $1
		ORDER BY pool_address, owner
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query stakers: %w", err)
	}
	defer rows.Close()

	var stakers []model.Staker
	for rows.Next() {
		var (
			st                  model.Staker
			pool, owner, amount string
		)
		if err := rows.Scan(&pool, &owner, &amount, &st.DepositTimestamp); err != nil {
			return nil, fmt.Errorf("scan staker: %w", err)
		}
		st.Pool = common.HexToAddress(pool)
		st.Owner = common.HexToAddress(owner)
		if st.Amount, err = parseU64(amount); err != nil {
			return nil, err
		}
		stakers = append(stakers, st)
	}
	return stakers, rows.Err()
}

// AppendEvents inserts journal events. Sequence numbers already stored are
// skipped, so a resumed replay can re-send a batch.
func (s *Store) AppendEvents(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO ledger_events (
				seq, op, ts, pool_address, actor, amount,
				total_staked, total_rewards, total_weighted_stake, staker_amount, proposal_id, created_at
			) VALUES ($1::numeric,$2,$3,$4,$5,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,now())
			ON CONFLICT (seq) DO NOTHING
		`,
			u64(ev.Seq),
			ev.Op,
			ev.Timestamp,
			ev.Pool.Hex(),
			ev.Actor.Hex(),
			u64(ev.Amount),
			u64(ev.TotalStaked),
			u64(ev.TotalRewards),
			u64(ev.TotalWeightedStake),
			u64(ev.StakerAmount),
			u64(ev.ProposalID),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// AppendFailures records rejected operations keyed by input line.
func (s *Store) AppendFailures(ctx context.Context, failures []model.OpFailure) error {
	if len(failures) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range failures {
		batch.Queue(`
			INSERT INTO op_failures (line, ts, op, code, error, created_at)
			VALUES ($1,$2,$3,$4,$5,now())
			ON CONFLICT (line) DO UPDATE SET
				ts = EXCLUDED.ts,
				op = EXCLUDED.op,
				code = EXCLUDED.code,
				error = EXCLUDED.error
		`,
			int64(f.Line),
			f.Timestamp,
			f.Op,
			f.Code,
			f.Error,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range failures {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseU64(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v, nil
}

func nullableJSON(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}
