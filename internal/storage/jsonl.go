package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"liquidityStake/internal/model"
)

// JsonlJournal appends ledger events and operation failures to JSONL files.
// An empty failures path drops failures.
//
// Events are keyed by seq and failures by input line. Both grow
// monotonically, so records at or below the highest key already in a file
// are skipped. A replay resumed from an older snapshot can then re-send a
// batch without duplicating lines.
type JsonlJournal struct {
	path         string
	failuresPath string

	mu          sync.Mutex
	loaded      bool
	lastSeq     uint64
	lastFailure uint64
}

func NewJsonlJournal(path, failuresPath string) *JsonlJournal {
	return &JsonlJournal{path: path, failuresPath: failuresPath}
}

// AppendEvents appends a batch of ledger events as JSON lines.
func (j *JsonlJournal) AppendEvents(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return err
	}

	records := make([]any, 0, len(events))
	last := j.lastSeq
	for i := range events {
		if events[i].Seq <= last {
			continue
		}
		records = append(records, events[i])
		last = events[i].Seq
	}
	if err := j.append(j.path, records); err != nil {
		return err
	}
	j.lastSeq = last
	return nil
}

// AppendFailures appends a batch of rejected operations as JSON lines.
func (j *JsonlJournal) AppendFailures(ctx context.Context, failures []model.OpFailure) error {
	if len(failures) == 0 || j.failuresPath == "" {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.load(); err != nil {
		return err
	}

	records := make([]any, 0, len(failures))
	last := j.lastFailure
	for i := range failures {
		if failures[i].Line <= last {
			continue
		}
		records = append(records, failures[i])
		last = failures[i].Line
	}
	if err := j.append(j.failuresPath, records); err != nil {
		return err
	}
	j.lastFailure = last
	return nil
}

// load reads the highest keys already written. It runs once per journal.
func (j *JsonlJournal) load() error {
	if j.loaded {
		return nil
	}
	var key struct {
		Seq  uint64 `json:"seq"`
		Line uint64 `json:"line"`
	}
	err := scanLines(j.path, func(line []byte) error {
		key.Seq = 0
		if err := json.Unmarshal(line, &key); err != nil {
			return err
		}
		if key.Seq > j.lastSeq {
			j.lastSeq = key.Seq
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("read events journal: %w", err)
	}
	if j.failuresPath != "" {
		err = scanLines(j.failuresPath, func(line []byte) error {
			key.Line = 0
			if err := json.Unmarshal(line, &key); err != nil {
				return err
			}
			if key.Line > j.lastFailure {
				j.lastFailure = key.Line
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("read failures journal: %w", err)
		}
	}
	j.loaded = true
	return nil
}

func scanLines(path string, fn func([]byte) error) error {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (j *JsonlJournal) append(path string, records []any) error {
	if len(records) == 0 {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal journal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write journal record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}
