package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"liquidityStake/internal/custody"
	"liquidityStake/internal/ledger"
	"liquidityStake/internal/model"
	"liquidityStake/internal/storage"
)

const (
	pool  = "0x1111111111111111111111111111111111111111"
	mint  = "0x3333333333333333333333333333333333333333"
	admin = "0x4444444444444444444444444444444444444444"
	alice = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func writeOps(t *testing.T, path string, ops ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for _, op := range ops {
		_, err := f.WriteString(op + "\n")
		require.NoError(t, err)
	}
}

func newTestRunner(dir string) (*Runner, *custody.MemoryVault) {
	vault := custody.NewMemoryVault()
	r := NewRunner(RunConfig{BatchSize: 2}, Deps{
		Vault:     vault,
		Journal:   storage.NewJsonlJournal(filepath.Join(dir, "events.jsonl"), filepath.Join(dir, "failures.jsonl")),
		Snapshots: &storage.FileSnapshotStore{Path: filepath.Join(dir, "snapshot.json")},
	}, nil)
	return r, vault
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestRunnerReplaysScenario(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ops.jsonl")
	writeOps(t, in,
		fmt.Sprintf(`{"ts":0,"op":"fund","owner":%q,"amount":1000}`, alice),
		fmt.Sprintf(`{"ts":0,"op":"fund","owner":%q,"amount":1000}`, bob),
		fmt.Sprintf(`{"ts":0,"op":"initialize_pool","pool":%q,"mint":%q,"caller":%q,"maker_fee":10,"taker_fee":20}`, pool, mint, admin),
		fmt.Sprintf(`{"ts":0,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":300}`, pool, alice, mint),
		fmt.Sprintf(`{"ts":0,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":700}`, pool, bob, mint),
		"",
		fmt.Sprintf(`{"ts":604799,"op":"withdraw","pool":%q,"owner":%q,"amount":50}`, pool, alice),
		fmt.Sprintf(`{"ts":604800,"op":"fund","owner":%q,"amount":1000}`, pool),
		fmt.Sprintf(`{"ts":604800,"op":"record_trade_profit","pool":%q,"amount":1000}`, pool),
		fmt.Sprintf(`{"ts":604800,"op":"distribute_rewards","pool":%q,"owner":%q}`, pool, alice),
		fmt.Sprintf(`{"ts":604800,"op":"withdraw","pool":%q,"owner":%q,"amount":50}`, pool, alice),
		`{"ts":604801,"op":"bogus"}`,
		`{"ts":1,"op":"record_fee_collection","amount":5}`,
	)

	r, vault := newTestRunner(dir)
	stats, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 12, Applied: 9, Failed: 3}, stats)

	p, ok := r.Engine().Pool(common.HexToAddress(pool))
	require.True(t, ok)
	require.Equal(t, uint64(950), p.TotalStaked)
	require.Equal(t, uint64(700), p.TotalRewards)
	require.Equal(t, uint64(950), p.TotalWeightedStake)
	require.Equal(t, uint64(1000-300+300+50), vault.Balance(common.HexToAddress(alice)))
	require.Equal(t, p.TotalStaked+p.TotalRewards, vault.Balance(common.HexToAddress(pool)))

	var failures []map[string]interface{}
	data, err := os.ReadFile(filepath.Join(dir, "failures.jsonl"))
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		failures = append(failures, rec)
	}
	require.Len(t, failures, 3)
	require.Equal(t, "StakeTimeNotReached", failures[0]["code"])
	require.Equal(t, float64(7), failures[0]["line"])
	require.Equal(t, codeInvalidOperation, failures[1]["code"])
	require.Equal(t, codeOutOfOrder, failures[2]["code"])

	// initialize_pool, two stakes, profit, distribute, withdraw.
	require.Equal(t, 6, countLines(t, filepath.Join(dir, "events.jsonl")))

	snap, ok, err := (&storage.FileSnapshotStore{Path: filepath.Join(dir, "snapshot.json")}).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(13), snap.LastLine)
	require.Equal(t, uint64(6), snap.LastSeq)
	require.Equal(t, int64(604800), snap.TakenAt, "rejected lines do not move the clock")
}

func TestRunnerResumesFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ops.jsonl")
	writeOps(t, in,
		fmt.Sprintf(`{"ts":10,"op":"fund","owner":%q,"amount":600}`, alice),
		fmt.Sprintf(`{"ts":10,"op":"initialize_pool","pool":%q,"mint":%q,"caller":%q}`, pool, mint, admin),
		fmt.Sprintf(`{"ts":20,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":500}`, pool, alice, mint),
	)

	first, _ := newTestRunner(dir)
	_, err := first.Run(context.Background(), in)
	require.NoError(t, err)

	writeOps(t, in,
		fmt.Sprintf(`{"ts":30,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":100}`, pool, alice, mint),
		fmt.Sprintf(`{"ts":700000,"op":"withdraw","pool":%q,"owner":%q,"amount":100}`, pool, alice),
	)

	// The second runner settles against the vault balances saved with the
	// snapshot; only the new lines are applied.
	second, vault := newTestRunner(dir)
	stats, err := second.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 5, Applied: 2, Skipped: 3}, stats)

	p, ok := second.Engine().Pool(common.HexToAddress(pool))
	require.True(t, ok)
	require.Equal(t, uint64(500), p.TotalStaked)
	require.Equal(t, uint64(500), p.TotalWeightedStake)
	require.Equal(t, uint64(100), vault.Balance(common.HexToAddress(alice)))
	require.Equal(t, uint64(500), vault.Balance(common.HexToAddress(pool)))

	_, err = os.Stat(filepath.Join(dir, "failures.jsonl"))
	require.True(t, os.IsNotExist(err), "no line was rejected")
	require.Equal(t, 4, countLines(t, filepath.Join(dir, "events.jsonl")))

	snap, ok, err := (&storage.FileSnapshotStore{Path: filepath.Join(dir, "snapshot.json")}).Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, snap.Custody)
	require.Len(t, snap.Custody.Balances, 2)
}

func TestRunnerHaltsOnUnknownTransferOutcome(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ops.jsonl")
	writeOps(t, in,
		fmt.Sprintf(`{"ts":0,"op":"fund","owner":%q,"amount":1000}`, alice),
		fmt.Sprintf(`{"ts":0,"op":"initialize_pool","pool":%q,"mint":%q,"caller":%q}`, pool, mint, admin),
		fmt.Sprintf(`{"ts":5,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":500}`, pool, alice, mint),
		fmt.Sprintf(`{"ts":6,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":77}`, pool, alice, mint),
		fmt.Sprintf(`{"ts":7,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":10}`, pool, alice, mint),
	)

	vault := custody.NewMemoryVault()
	mover := custody.MoverFunc(func(ctx context.Context, tr custody.Transfer) error {
		if tr.Amount == 77 {
			return fmt.Errorf("%w: receipt not seen", custody.ErrOutcomeUnknown)
		}
		return vault.Transfer(ctx, tr)
	})
	snapshots := &storage.FileSnapshotStore{Path: filepath.Join(dir, "snapshot.json")}
	halted := NewRunner(RunConfig{BatchSize: 10}, Deps{
		Mover:     mover,
		Vault:     vault,
		Journal:   storage.NewJsonlJournal(filepath.Join(dir, "events.jsonl"), filepath.Join(dir, "failures.jsonl")),
		Snapshots: snapshots,
	}, nil)
	stats, err := halted.Run(context.Background(), in)
	require.ErrorIs(t, err, ledger.ErrTransferUnknown)
	require.Equal(t, Stats{Total: 4, Applied: 3}, stats)

	snap, ok, err := snapshots.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), snap.LastLine, "the snapshot stops before the unsettled line")
	require.Equal(t, 2, countLines(t, filepath.Join(dir, "events.jsonl")))
	_, err = os.Stat(filepath.Join(dir, "failures.jsonl"))
	require.True(t, os.IsNotExist(err), "the unsettled line is not recorded as a failure")

	r, resumedVault := newTestRunner(dir)
	stats, err = r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 5, Applied: 2, Skipped: 3}, stats)
	p, _ := r.Engine().Pool(common.HexToAddress(pool))
	require.Equal(t, uint64(587), p.TotalStaked)
	require.Equal(t, uint64(413), resumedVault.Balance(common.HexToAddress(alice)))
}

// brokenFailures accepts events and rejects every failure batch.
type brokenFailures struct {
	*storage.JsonlJournal
}

func (brokenFailures) AppendFailures(context.Context, []model.OpFailure) error {
	return errors.New("disk full")
}

func TestRunnerDoesNotDuplicateEventsAfterFailedFlush(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ops.jsonl")
	events := filepath.Join(dir, "events.jsonl")
	failures := filepath.Join(dir, "failures.jsonl")
	snapshots := &storage.FileSnapshotStore{Path: filepath.Join(dir, "snapshot.json")}
	writeOps(t, in,
		fmt.Sprintf(`{"ts":0,"op":"initialize_pool","pool":%q,"mint":%q,"caller":%q}`, pool, mint, admin),
		fmt.Sprintf(`{"ts":0,"op":"stake","pool":%q,"owner":%q,"mint":%q,"amount":0}`, pool, alice, mint),
		fmt.Sprintf(`{"ts":0,"op":"record_trade_profit","pool":%q,"amount":5}`, pool),
	)

	broken := NewRunner(RunConfig{BatchSize: 10}, Deps{
		Vault:     custody.NewMemoryVault(),
		Journal:   brokenFailures{storage.NewJsonlJournal(events, failures)},
		Snapshots: snapshots,
	}, nil)
	_, err := broken.Run(context.Background(), in)
	require.ErrorContains(t, err, "append failures")
	_, ok, err := snapshots.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "snapshot is not saved after a failed flush")
	require.Equal(t, 2, countLines(t, events))

	// The rerun applies every line again and re-sends seq 1 and 2.
	r, _ := newTestRunner(dir)
	stats, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 3, Applied: 2, Failed: 1}, stats)
	require.Equal(t, 2, countLines(t, events))
	require.Equal(t, 1, countLines(t, failures))
}

func TestRunnerGovernanceQuorum(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ops.jsonl")

	k1, err := crypto.GenerateKey()
	require.NoError(t, err)
	k2, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := ledger.ProposalDigest(9).Bytes()
	s1, err := crypto.Sign(digest, k1)
	require.NoError(t, err)
	s2, err := crypto.Sign(digest, k2)
	require.NoError(t, err)
	m1 := crypto.PubkeyToAddress(k1.PublicKey).Hex()
	m2 := crypto.PubkeyToAddress(k2.PublicKey).Hex()

	writeOps(t, in,
		fmt.Sprintf(`{"ts":1,"op":"initialize_governance","members":[%q,%q]}`, m1, m2),
		fmt.Sprintf(`{"ts":2,"op":"execute_governance_action","proposal_id":9,"signatures":[%q,%q]}`, hexutil.Encode(s1), hexutil.Encode(s1)),
		fmt.Sprintf(`{"ts":3,"op":"execute_governance_action","proposal_id":9,"signatures":[%q,%q]}`, hexutil.Encode(s1), hexutil.Encode(s2)),
	)

	r, _ := newTestRunner(dir)
	stats, err := r.Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 3, Applied: 2, Failed: 1}, stats)

	data, err := os.ReadFile(filepath.Join(dir, "failures.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"code":"NotEnoughSignatures"`)
}

func TestParseOperationRejectsUnknownFields(t *testing.T) {
	_, err := parseOperation([]byte(`{"ts":1,"op":"stake","amout":5}`), 4)
	require.ErrorContains(t, err, "line 4")

	_, err = parseOperation([]byte(`{"ts":1}`), 5)
	require.ErrorContains(t, err, "op is required")

	op, err := parseOperation([]byte(fmt.Sprintf(`{"ts":7,"op":" stake ","pool":%q,"amount":3}`, pool)), 6)
	require.NoError(t, err)
	require.Equal(t, "stake", op.Op)
	require.Equal(t, uint64(6), op.Line)
	require.Equal(t, common.HexToAddress(pool), op.Pool)
}

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{alice, " ", bob})
	require.NoError(t, err)
	require.Equal(t, []common.Address{common.HexToAddress(alice), common.HexToAddress(bob)}, got)

	_, err = ParseAddresses([]string{"0x12"})
	require.Error(t, err)
}
