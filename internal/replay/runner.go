package replay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityStake/internal/custody"
	"liquidityStake/internal/ledger"
	"liquidityStake/internal/metrics"
	"liquidityStake/internal/model"
	"liquidityStake/internal/storage"
)

const (
	codeInvalidOperation = "InvalidOperation"
	codeOutOfOrder       = "OutOfOrder"
	codeUnknown          = "Unknown"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	BatchSize int
	Retry     RetryPolicy
}

// Deps are the collaborators a Runner drives. Mover defaults to Vault when
// unset; Journal and Snapshots may be nil.
type Deps struct {
	Mover     custody.Mover
	Vault     *custody.MemoryVault
	Journal   storage.Journal
	Snapshots storage.SnapshotStore
	Metrics   *metrics.Ledger
}

// Stats summarizes one replay run.
type Stats struct {
	Total   int
	Applied int
	Failed  int
	Skipped int
}

// Runner applies a JSONL operation stream to a ledger engine whose clock
// follows the operations' timestamps.
type Runner struct {
	cfg       RunConfig
	engine    *ledger.Engine
	clock     *ledger.ManualClock
	vault     *custody.MemoryVault
	journal   storage.Journal
	snapshots storage.SnapshotStore
	logger    *zap.Logger

	mu       sync.Mutex
	events   []model.LedgerEvent
	failures []model.OpFailure
	lastLine uint64
}

// NewRunner builds a Runner and the engine it drives.
func NewRunner(cfg RunConfig, deps Deps, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	mover := deps.Mover
	if mover == nil && deps.Vault != nil {
		mover = deps.Vault
	}

	r := &Runner{
		cfg:       cfg,
		clock:     ledger.NewManualClock(0),
		vault:     deps.Vault,
		journal:   deps.Journal,
		snapshots: deps.Snapshots,
		logger:    logger,
	}
	r.engine = ledger.NewEngine(ledger.Config{
		Clock:    r.clock,
		Mover:    mover,
		Metrics:  deps.Metrics,
		Listener: r.record,
		Executor: r.execute,
	}, logger.Named("ledger"))
	return r
}

// Engine exposes the engine being replayed into.
func (r *Runner) Engine() *ledger.Engine {
	return r.engine
}

// Run replays inputPath. When a snapshot exists, state is restored from it
// and lines up to its LastLine are skipped.
func (r *Runner) Run(ctx context.Context, inputPath string) (Stats, error) {
	var stats Stats

	resumeLine, err := r.restore(ctx)
	if err != nil {
		return stats, err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return stats, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var lineNo uint64
	pending := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Total++
		if lineNo <= resumeLine {
			stats.Skipped++
			continue
		}

		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		applied, err := r.step(ctx, line, lineNo)
		if err != nil {
			return stats, r.halt(ctx, lineNo, err)
		}
		if applied {
			stats.Applied++
		} else {
			stats.Failed++
		}

		r.mu.Lock()
		r.lastLine = lineNo
		r.mu.Unlock()

		pending++
		if pending >= r.cfg.BatchSize {
			if err := r.flush(ctx); err != nil {
				return stats, err
			}
			pending = 0
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}

	if err := r.flush(ctx); err != nil {
		return stats, err
	}

	r.logger.Info("replay complete",
		zap.Int("total", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func (r *Runner) restore(ctx context.Context) (uint64, error) {
	if r.snapshots == nil {
		return 0, nil
	}
	snap, ok, err := r.snapshots.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return 0, nil
	}
	if err := r.engine.Restore(snap); err != nil {
		return 0, err
	}
	if r.vault != nil {
		if snap.Custody == nil {
			r.logger.Warn("snapshot has no custody state, in-memory vault starts empty")
		} else if err := r.vault.Restore(*snap.Custody); err != nil {
			return 0, err
		}
	}
	r.clock.Set(snap.TakenAt)
	r.lastLine = snap.LastLine
	r.logger.Info("resume from snapshot",
		zap.Uint64("last_line", snap.LastLine),
		zap.Uint64("last_seq", snap.LastSeq),
		zap.Int("pools", len(snap.Pools)),
	)
	return snap.LastLine, nil
}

// step applies one input line. Rejections are recorded as failures and do
// not stop the replay. The returned error is fatal: a custody transfer was
// submitted but its outcome is unknown.
func (r *Runner) step(ctx context.Context, line []byte, lineNo uint64) (bool, error) {
	op, err := parseOperation(line, lineNo)
	if err != nil {
		r.fail(model.Operation{Line: lineNo}, codeInvalidOperation, err)
		return false, nil
	}
	if op.Timestamp < r.clock.Now() {
		err := fmt.Errorf("line %d: timestamp %d before %d", lineNo, op.Timestamp, r.clock.Now())
		r.fail(op, codeOutOfOrder, err)
		return false, nil
	}
	r.clock.Set(op.Timestamp)

	if err := handlers[op.Op](ctx, r, op); err != nil {
		if errors.Is(err, ledger.ErrTransferUnknown) {
			return false, fmt.Errorf("line %d %s: %w", lineNo, op.Op, err)
		}
		code := ledger.Code(err)
		if code == "" {
			code = codeUnknown
		}
		r.fail(op, code, err)
		return false, nil
	}
	return true, nil
}

// halt stops the replay at lineNo. Everything before the line is flushed,
// so a rerun resumes at the line once custody has been reconciled.
func (r *Runner) halt(ctx context.Context, lineNo uint64, err error) error {
	r.logger.Error("replay halted, reconcile custody before resuming",
		zap.Uint64("line", lineNo),
		zap.Error(err),
	)
	if ferr := r.flush(context.WithoutCancel(ctx)); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}

func (r *Runner) fail(op model.Operation, code string, err error) {
	r.logger.Debug("operation rejected", zap.Uint64("line", op.Line), zap.String("op", op.Op), zap.String("code", code), zap.Error(err))
	r.mu.Lock()
	r.failures = append(r.failures, model.OpFailure{
		Line:      op.Line,
		Timestamp: op.Timestamp,
		Op:        op.Op,
		Code:      code,
		Error:     err.Error(),
	})
	r.mu.Unlock()
}

func (r *Runner) record(ev model.LedgerEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Runner) execute(_ context.Context, proposalID uint64, approvers []common.Address) error {
	signers := make([]string, len(approvers))
	for i, a := range approvers {
		signers[i] = a.Hex()
	}
	r.logger.Info("proposal approved", zap.Uint64("proposal_id", proposalID), zap.Strings("approvers", signers))
	return nil
}

// flush writes buffered journal records, then the snapshot. Each buffer is
// cleared as soon as the journal accepted it.
func (r *Runner) flush(ctx context.Context) error {
	r.mu.Lock()
	events := r.events
	failures := r.failures
	lastLine := r.lastLine
	r.mu.Unlock()

	if r.journal != nil {
		if err := withRetry(ctx, r.cfg.Retry, r.logger, "append events", func(ctx context.Context) error {
			return r.journal.AppendEvents(ctx, events)
		}); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
	}
	r.mu.Lock()
	r.events = r.events[len(events):]
	r.mu.Unlock()

	if r.journal != nil {
		if err := withRetry(ctx, r.cfg.Retry, r.logger, "append failures", func(ctx context.Context) error {
			return r.journal.AppendFailures(ctx, failures)
		}); err != nil {
			return fmt.Errorf("append failures: %w", err)
		}
	}
	r.mu.Lock()
	r.failures = r.failures[len(failures):]
	r.mu.Unlock()

	if r.snapshots != nil {
		snap := r.engine.Snapshot()
		snap.LastLine = lastLine
		if r.vault != nil {
			state := r.vault.State()
			snap.Custody = &state
		}
		if err := withRetry(ctx, r.cfg.Retry, r.logger, "save snapshot", func(ctx context.Context) error {
			return r.snapshots.Save(ctx, snap)
		}); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}

	r.logger.Info("batch complete",
		zap.Int("events", len(events)),
		zap.Int("failures", len(failures)),
		zap.Uint64("last_line", lastLine),
	)
	return nil
}
