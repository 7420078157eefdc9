package barstore

import (
	"errors"
	"testing"
	"time"

	"optionscore/internal/models"
	"optionscore/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeBar(symbol string, tf models.Timeframe, start time.Time, close float64) models.Bar {
	return models.Bar{
		Symbol:    symbol,
		Timeframe: tf,
		BarStart:  start,
		BarEnd:    start.Add(tf.Duration()),
		Open:      close - 1,
		High:      close + 1,
		Low:       close - 2,
		Close:     close,
		Volume:    100,
		Complete:  true,
	}
}

var t0 = time.Date(2026, 8, 3, 9, 15, 0, 0, time.UTC)

func TestPutAndTail(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		bar := makeBar("NIFTY", models.Timeframe1m, t0.Add(time.Duration(i)*time.Minute), 100+float64(i))
		if err := s.Put(bar); err != nil {
			t.Fatalf("put bar %d: %v", i, err)
		}
	}

	tail := s.Tail("NIFTY", models.Timeframe1m, 3)
	if len(tail) != 3 {
		t.Fatalf("tail len = %d, want 3", len(tail))
	}
	// Oldest first, strictly ordered.
	for i := 1; i < len(tail); i++ {
		if !tail[i].BarStart.After(tail[i-1].BarStart) {
			t.Errorf("tail not strictly ordered at %d", i)
		}
	}
	if tail[2].Close != 104 {
		t.Errorf("latest close = %v, want 104", tail[2].Close)
	}

	last, ok := s.Last("NIFTY", models.Timeframe1m)
	if !ok || last.Close != 104 {
		t.Errorf("last = %+v, ok=%v", last, ok)
	}
}

func TestPutDuplicateMatchingIsNoop(t *testing.T) {
	s := openTestStore(t)
	bar := makeBar("NIFTY", models.Timeframe1m, t0, 100)

	if err := s.Put(bar); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(bar); err != nil {
		t.Fatalf("duplicate matching put should be a no-op, got %v", err)
	}
	if n := s.Count("NIFTY", models.Timeframe1m); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestPutDuplicateMismatchIsIntegrityError(t *testing.T) {
	s := openTestStore(t)
	bar := makeBar("NIFTY", models.Timeframe1m, t0, 100)
	if err := s.Put(bar); err != nil {
		t.Fatalf("put: %v", err)
	}

	bar.Close = 101
	bar.High = 102
	err := s.Put(bar)
	var integrity *ErrIntegrity
	if !errors.As(err, &integrity) {
		t.Fatalf("mismatched duplicate should be an integrity error, got %v", err)
	}
}

func TestPutOutOfOrderRejected(t *testing.T) {
	s := openTestStore(t)
	if err := s.Put(makeBar("NIFTY", models.Timeframe1m, t0.Add(time.Minute), 100)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(makeBar("NIFTY", models.Timeframe1m, t0, 99)); err == nil {
		t.Error("out-of-order bar_start must be rejected")
	}
}

func TestPutIncompleteRejected(t *testing.T) {
	s := openTestStore(t)
	bar := makeBar("NIFTY", models.Timeframe1m, t0, 100)
	bar.Complete = false
	if err := s.Put(bar); err == nil {
		t.Error("incomplete bars must not be stored")
	}
}

func TestSeriesIsolation(t *testing.T) {
	s := openTestStore(t)
	s.Put(makeBar("NIFTY", models.Timeframe1m, t0, 100))
	s.Put(makeBar("NIFTY", models.Timeframe5m, t0, 200))
	s.Put(makeBar("BANKNIFTY", models.Timeframe1m, t0, 300))

	if got := s.Tail("NIFTY", models.Timeframe1m, 10); len(got) != 1 || got[0].Close != 100 {
		t.Errorf("NIFTY 1m tail wrong: %+v", got)
	}
	if got := s.Tail("NIFTY", models.Timeframe5m, 10); len(got) != 1 || got[0].Close != 200 {
		t.Errorf("NIFTY 5m tail wrong: %+v", got)
	}
	if got := s.Tail("BANKNIFTY", models.Timeframe1m, 10); len(got) != 1 || got[0].Close != 300 {
		t.Errorf("BANKNIFTY tail wrong: %+v", got)
	}
}

func TestRingEviction(t *testing.T) {
	s := openTestStore(t)
	n := RingSize + 20
	for i := 0; i < n; i++ {
		if err := s.Put(makeBar("NIFTY", models.Timeframe1m, t0.Add(time.Duration(i)*time.Minute), float64(i))); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	tail := s.Tail("NIFTY", models.Timeframe1m, RingSize+100)
	if len(tail) != RingSize {
		t.Fatalf("ring should cap at %d, got %d", RingSize, len(tail))
	}
	if tail[len(tail)-1].Close != float64(n-1) {
		t.Errorf("latest close = %v, want %v", tail[len(tail)-1].Close, n-1)
	}
	if s.Count("NIFTY", models.Timeframe1m) != int64(n) {
		t.Errorf("log count = %d, want %d", s.Count("NIFTY", models.Timeframe1m), n)
	}
}

// Durability contract: bars survive a close/reopen, and the manifest
// reflects the reloaded series.
func TestReloadAfterReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		s.Put(makeBar("NIFTY", models.Timeframe1h, t0.Add(time.Duration(i)*time.Hour), 100+float64(i)))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	tail := s2.Tail("NIFTY", models.Timeframe1h, 10)
	if len(tail) != 3 {
		t.Fatalf("reloaded tail = %d bars, want 3", len(tail))
	}
	if tail[2].Close != 102 {
		t.Errorf("reloaded latest close = %v, want 102", tail[2].Close)
	}

	manifest := s2.Manifest()
	if len(manifest) != 1 {
		t.Fatalf("manifest = %d series, want 1", len(manifest))
	}
	if manifest[0].Count != 3 || !manifest[0].Last.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("manifest row = %+v", manifest[0])
	}

	// And appending continues from the reloaded position.
	if err := s2.Put(makeBar("NIFTY", models.Timeframe1h, t0.Add(3*time.Hour), 103)); err != nil {
		t.Fatalf("append after reload: %v", err)
	}
}

func TestRange(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 10; i++ {
		s.Put(makeBar("NIFTY", models.Timeframe1m, t0.Add(time.Duration(i)*time.Minute), float64(i)))
	}
	got, err := s.Range("NIFTY", models.Timeframe1m, t0.Add(2*time.Minute), t0.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("range len = %d, want 4", len(got))
	}
	if got[0].Close != 2 || got[3].Close != 5 {
		t.Errorf("range bounds wrong: first %v last %v", got[0].Close, got[3].Close)
	}
}
