package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"optionscore/internal/coreerr"
	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the outcome of a Reserve call.
type Status int

const (
	// Fresh: the key was never seen; the caller owns processing it.
	Fresh Status = iota
	// AlreadyProcessed: the key completed earlier; the caller must skip.
	AlreadyProcessed
	// InProgress: the key was reserved but never marked processed — a crash
	// interrupted it. Broker submissions in this state require reconciliation.
	InProgress
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case AlreadyProcessed:
		return "already_processed"
	default:
		return "in_progress"
	}
}

// Ledger is the append-only per-day event record. Single-writer:
// all mutations go through one mutex; reads return copies.
//
// On-disk form is one JSON object per line. A key appears once when reserved
// (processed=false) and again when marked processed; replay folds both into
// the in-memory index, last record wins.
type Ledger struct {
	mu    sync.Mutex
	index map[string]models.LedgerEntry

	file *os.File
	w    *bufio.Writer
	day  time.Time
	log  *utils.Logger

	// degraded is set after a gate-critical write failure; every subsequent
	// gating Reserve fails closed until the process restarts.
	degraded bool
}

// Open creates or reopens the ledger for the given trading day under dir,
// replaying any existing records into the index.
func Open(dir string, day time.Time, log *utils.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger dir: %w", err)
	}
	path := filepath.Join(dir, "ledger-"+day.Format("2006-01-02")+".jsonl")

	l := &Ledger{
		index: make(map[string]models.LedgerEntry),
		day:   day,
		log:   log.WithComponent("ledger"),
	}

	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		l.replay(data)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger open: %w", err)
	}
	l.file = f
	l.w = bufio.NewWriter(f)
	return l, nil
}

func (l *Ledger) replay(data []byte) {
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e models.LedgerEntry
		if err := json.UnmarshalFromString(line, &e); err != nil {
			l.log.Warn("skipping corrupt ledger line")
			continue
		}
		l.index[e.IdempotencyKey] = e
	}
	l.log.Sugar().Infof("replayed %d ledger entries for %s", len(l.index), l.day.Format("2006-01-02"))
}

// Reserve claims an idempotency key. gating=true means the entry gates an
// order submission: the append is flushed and fsynced before Reserve returns,
// and a write failure fails closed with ErrLedgerUnavailable.
func (l *Ledger) Reserve(key, eventType, payloadHash string, ts time.Time, gating bool) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.index[key]; ok {
		if existing.Processed {
			return AlreadyProcessed, nil
		}
		return InProgress, nil
	}

	if gating && l.degraded {
		return Fresh, coreerr.ErrLedgerUnavailable
	}

	e := models.LedgerEntry{
		EventID:        key,
		EventType:      eventType,
		Ts:             ts,
		IdempotencyKey: key,
		PayloadHash:    payloadHash,
		Processed:      false,
		Outcome:        models.OutcomePending,
	}
	if err := l.append(e, gating); err != nil {
		if gating {
			l.degraded = true
			l.log.Error("gate-critical ledger write failed, failing closed")
			return Fresh, coreerr.ErrLedgerUnavailable
		}
		// Non-gating entries tolerate a buffered loss.
		l.log.Sugar().Warnf("buffered ledger write failed: %v", err)
	}
	l.index[key] = e
	return Fresh, nil
}

// MarkProcessed finalizes a reserved key with its outcome and duration.
func (l *Ledger) MarkProcessed(key string, outcome models.LedgerOutcome, d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.index[key]
	if !ok {
		return fmt.Errorf("mark processed: key %q was never reserved", key)
	}
	e.Processed = true
	e.Outcome = outcome
	e.ProcessingTimeMs = d.Milliseconds()
	if err := l.append(e, false); err != nil {
		l.log.Sugar().Warnf("mark-processed write failed for %s: %v", key, err)
	}
	l.index[key] = e
	return nil
}

// append writes one record; sync forces the line through to disk.
func (l *Ledger) append(e models.LedgerEntry, sync bool) error {
	line, err := json.MarshalToString(e)
	if err != nil {
		return err
	}
	if _, err := l.w.WriteString(line + "\n"); err != nil {
		return err
	}
	if sync {
		if err := l.w.Flush(); err != nil {
			return err
		}
		return l.file.Sync()
	}
	return nil
}

// Lookup returns a copy of the entry for key, if any.
func (l *Ledger) Lookup(key string) (models.LedgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.index[key]
	return e, ok
}

// InProgressEntries returns every reserved-but-unprocessed entry whose event
// type matches one of the given types (all entries when none given). The
// Order Pipeline uses this on restart to reconcile interrupted broker
// submissions.
func (l *Ledger) InProgressEntries(eventTypes ...string) []models.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		want[t] = true
	}

	var out []models.LedgerEntry
	for _, e := range l.index {
		if e.Processed {
			continue
		}
		if len(want) > 0 && !want[e.EventType] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Size returns the number of distinct keys seen today.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.index)
}

// Degraded reports whether a gate-critical write has failed this session.
func (l *Ledger) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

// Close flushes buffered entries and closes the file. Unflushed entries are
// flushed before exit per the shutdown contract.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w != nil {
		if err := l.w.Flush(); err != nil {
			l.file.Close()
			return err
		}
	}
	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			l.file.Close()
			return err
		}
		return l.file.Close()
	}
	return nil
}
