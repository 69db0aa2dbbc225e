package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/rgolusuTR/linkaudit/pkg/log"
	"github.com/rgolusuTR/linkaudit/pkg/models"
	"github.com/rgolusuTR/linkaudit/pkg/resolve"
	"github.com/rgolusuTR/linkaudit/pkg/utils"
)

const (
	runKeyPrefix   = "run:" // Full report JSON keyed by run ID
	indexKeyPrefix = "idx:" // RunSummary JSON keyed by reverse timestamp for newest-first scans
	historyDBDir   = "audit_history"
)

// BadgerStore implements the AuditStore interface using BadgerDB
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Entry
}

// NewBadgerStore opens (or creates) the audit history database under stateDir
func NewBadgerStore(stateDir string, logger *logrus.Entry) (*BadgerStore, error) {
	dbPath := filepath.Join(stateDir, historyDBDir)

	logger.Infof("Initializing audit history database at: %s", dbPath)
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}
	return &BadgerStore{db: db, log: logger}, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// SaveRun implements the RunStore interface. The full report and its listing
// summary are written in one transaction so the index never dangles.
func (s *BadgerStore) SaveRun(report *models.AuditReport) error {
	if s.db == nil {
		return errors.New("audit history DB not initialized")
	}
	if report == nil || report.RunID == "" {
		return fmt.Errorf("%w: report has no run ID", utils.ErrDatabase)
	}

	reportBytes, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("%w: marshal report '%s': %w", utils.ErrDatabase, report.RunID, err)
	}
	summary := RunSummary{
		RunID:        report.RunID,
		PageURL:      report.PageURL,
		StartedAt:    report.StartedAt,
		TotalLinks:   report.Stats.TotalLinks,
		WorkingLinks: report.Stats.WorkingLinks,
		BrokenLinks:  report.Stats.BrokenLinks,
	}
	summaryBytes, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("%w: marshal summary '%s': %w", utils.ErrDatabase, report.RunID, err)
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry(runKey(report.RunID), reportBytes)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(indexKey(report), summaryBytes))
	})
	if err != nil {
		s.log.WithField("run_id", report.RunID).Errorf("DB Update error in SaveRun: %v", err)
		return fmt.Errorf("%w: saving run '%s': %w", utils.ErrDatabase, report.RunID, err)
	}
	s.log.WithFields(logrus.Fields{"run_id": report.RunID, "page": report.PageURL}).Debug("Audit run persisted")
	return nil
}

// GetRun implements the RunStore interface
func (s *BadgerStore) GetRun(runID string) (*models.AuditReport, error) {
	var report *models.AuditReport

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(runKey(runID))
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // Missing run is not an error for this function's purpose
		}
		if errGet != nil {
			return fmt.Errorf("%w: getting run '%s': %w", utils.ErrDatabase, runID, errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded models.AuditReport
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				return fmt.Errorf("%w: unmarshal run '%s': %w", utils.ErrDatabase, runID, errJson)
			}
			report = &decoded
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in GetRun for '%s': %v", runID, errView)
		return nil, errView
	}
	return report, nil
}

// ListRuns implements the RunStore interface. Index keys embed a reverse
// timestamp, so a forward prefix scan yields newest-first order.
func (s *BadgerStore) ListRuns(pageURL string, limit int) ([]RunSummary, error) {
	var (
		summaries  []RunSummary
		pageFilter string
	)
	if pageURL != "" {
		pageFilter = resolve.Normalize(pageURL)
		if pageFilter == "" {
			pageFilter = pageURL
		}
	}

	errView := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(indexKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(summaries) >= limit {
				return nil
			}
			errVal := it.Item().Value(func(val []byte) error {
				var summary RunSummary
				if errJson := json.Unmarshal(val, &summary); errJson != nil {
					s.log.Warnf("Skipping undecodable run summary: %v", errJson)
					return nil
				}
				if pageFilter != "" && summaryPageKey(summary.PageURL) != pageFilter {
					return nil
				}
				summaries = append(summaries, summary)
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
	if errView != nil {
		s.log.Errorf("DB View error in ListRuns: %v", errView)
		return nil, fmt.Errorf("%w: listing runs: %w", utils.ErrDatabase, errView)
	}
	return summaries, nil
}

// RunGC runs BadgerDB's value log garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")
	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Infof("Stopping BadgerDB GC goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing audit history DB...")
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing audit history DB: %v", err)
			return err
		}
		return nil
	}
	return nil
}

func runKey(runID string) []byte {
	return []byte(runKeyPrefix + runID)
}

// indexKey sorts newest-first under a plain forward scan by storing the
// bitwise complement of the start timestamp.
func indexKey(report *models.AuditReport) []byte {
	reverse := ^uint64(report.StartedAt.UnixNano())
	return fmt.Appendf(nil, "%s%016x:%s", indexKeyPrefix, reverse, report.RunID)
}

func summaryPageKey(pageURL string) string {
	if key := resolve.Normalize(pageURL); key != "" {
		return key
	}
	return pageURL
}
