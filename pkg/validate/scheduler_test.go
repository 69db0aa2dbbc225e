package validate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rgolusuTR/linkaudit/pkg/fetch"
	"github.com/rgolusuTR/linkaudit/pkg/models"
)

func candidates(n int) []models.LinkCandidate {
	cands := make([]models.LinkCandidate, n)
	for i := range cands {
		cands[i] = external(fmt.Sprintf("https://example.com/page-%d", i))
	}
	return cands
}

func workingValidator(cand models.LinkCandidate) *models.ValidationResult {
	return &models.ValidationResult{
		URL:        cand.URL,
		AnchorText: cand.AnchorText,
		IsInternal: cand.IsInternal,
		Role:       cand.Role,
		IsWorking:  true,
		StatusCode: 200,
	}
}

func TestScheduler_EveryCandidateYieldsOneResult(t *testing.T) {
	cands := candidates(7)
	s := NewScheduler(SchedulerOptions{BatchSize: 3, MaxConcurrent: 10}, testLogger())

	// Candidate 4 fails with a panic; the batch must still settle in full
	results := s.Run(context.Background(), cands, func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		if cand.URL == cands[4].URL {
			panic("probe blew up")
		}
		return workingValidator(cand)
	})

	if len(results) != 7 {
		t.Fatalf("got %d results, want 7", len(results))
	}
	for i, r := range results {
		if r == nil {
			t.Fatalf("result %d is nil", i)
		}
		if r.URL != cands[i].URL {
			t.Errorf("result %d out of order: %s", i, r.URL)
		}
	}
	if results[4].IsWorking {
		t.Error("panicked candidate should be broken")
	}
	if results[4].ErrorMessage == "" {
		t.Error("panicked candidate should carry an error message")
	}
}

func TestScheduler_BatchesSettleBeforeNextStarts(t *testing.T) {
	var inFlight, peak atomic.Int32
	s := NewScheduler(SchedulerOptions{BatchSize: 3, MaxConcurrent: 100}, testLogger())

	s.Run(context.Background(), candidates(9), func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return workingValidator(cand)
	})

	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency %d exceeds the batch size 3", got)
	}
}

func TestScheduler_GlobalConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	s := NewScheduler(SchedulerOptions{BatchSize: 8, MaxConcurrent: 2}, testLogger())

	s.Run(context.Background(), candidates(8), func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return workingValidator(cand)
	})

	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency %d exceeds max_concurrent 2", got)
	}
}

func TestScheduler_PerHostBound(t *testing.T) {
	hosts := fetch.NewHostSemaphorePool(1, testLogger())
	s := NewScheduler(SchedulerOptions{BatchSize: 4, MaxConcurrent: 10, Hosts: hosts}, testLogger())

	var mu sync.Mutex
	active := map[string]int{}
	violated := false

	s.Run(context.Background(), candidates(4), func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		host := hostOf(cand.URL)
		mu.Lock()
		active[host]++
		if active[host] > 1 {
			violated = true
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active[host]--
		mu.Unlock()
		return workingValidator(cand)
	})

	if violated {
		t.Error("more than one concurrent probe hit the same host")
	}
}

func TestScheduler_ProgressEvents(t *testing.T) {
	progress := make(chan models.ProgressEvent, 16)
	s := NewScheduler(SchedulerOptions{BatchSize: 3, MaxConcurrent: 10, Progress: progress}, testLogger())

	s.Run(context.Background(), candidates(7), func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		return workingValidator(cand)
	})
	close(progress)

	var events []models.ProgressEvent
	for e := range progress {
		events = append(events, e)
	}
	if len(events) != 3 {
		t.Fatalf("got %d progress events, want 3", len(events))
	}
	if events[0].Current != 3 || events[1].Current != 6 || events[2].Current != 7 {
		t.Errorf("progress counts = %d/%d/%d", events[0].Current, events[1].Current, events[2].Current)
	}
	for _, e := range events {
		if e.Total != 7 {
			t.Errorf("event total = %d, want 7", e.Total)
		}
	}
}

func TestScheduler_ProgressCarriesSettledStrategy(t *testing.T) {
	progress := make(chan models.ProgressEvent, 16)
	s := NewScheduler(SchedulerOptions{BatchSize: 2, MaxConcurrent: 10, Progress: progress}, testLogger())

	s.Run(context.Background(), candidates(4), func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		r := workingValidator(cand)
		r.StrategyUsed = models.StrategyDirectGet
		return r
	})
	close(progress)

	count := 0
	for e := range progress {
		count++
		if e.Strategy != models.StrategyDirectGet {
			t.Errorf("event strategy = %q, want %q", e.Strategy, models.StrategyDirectGet)
		}
	}
	if count == 0 {
		t.Fatal("expected progress events")
	}
}

func TestScheduler_ProgressFixedStrategyLabelWins(t *testing.T) {
	progress := make(chan models.ProgressEvent, 16)
	s := NewScheduler(SchedulerOptions{
		BatchSize: 2, MaxConcurrent: 10, Progress: progress, Strategy: models.StrategyFrame,
	}, testLogger())

	s.Run(context.Background(), candidates(2), func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		r := workingValidator(cand)
		r.StrategyUsed = models.StrategyDirectHead
		return r
	})
	close(progress)

	for e := range progress {
		if e.Strategy != models.StrategyFrame {
			t.Errorf("event strategy = %q, want %q", e.Strategy, models.StrategyFrame)
		}
	}
}

func TestScheduler_CancellationStillYieldsAllResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(SchedulerOptions{BatchSize: 2, BatchPause: time.Millisecond, MaxConcurrent: 10}, testLogger())

	var settled atomic.Int32
	results := s.Run(ctx, candidates(8), func(ctx context.Context, cand models.LinkCandidate) *models.ValidationResult {
		if settled.Add(1) == 2 {
			cancel()
		}
		return workingValidator(cand)
	})

	if len(results) != 8 {
		t.Fatalf("got %d results, want 8", len(results))
	}
	broken := 0
	for i, r := range results {
		if r == nil {
			t.Fatalf("result %d is nil", i)
		}
		if !r.IsWorking {
			broken++
			if r.ErrorKind != models.KindTimeout {
				t.Errorf("cancelled result kind = %s", r.ErrorKind)
			}
		}
	}
	if broken == 0 {
		t.Error("expected the remaining candidates to settle as broken after cancel")
	}
}
