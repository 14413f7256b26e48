package index

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ongoingai/traceview/migrations"

	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"busy_timeout(5000)",
}

// SQLiteStore is the single-file index backend. SQLite admits one writer at
// a time, so writes are serialized and lock contention is retried.
type SQLiteStore struct {
	*sqlStore
	Path    string
	writeMu sync.Mutex
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory %q: %w", dir, err)
		}
	}

	query := url.Values{"_pragma": sqlitePragmas}
	base, err := openSQLStore("sqlite", "file:"+path+"?"+query.Encode(), dialectSQLite, migrations.DriverSQLite, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite %q: %w", path, err)
	}
	return &SQLiteStore{sqlStore: base, Path: path}, nil
}

func (s *SQLiteStore) Driver() string {
	return migrations.DriverSQLite
}

func (s *SQLiteStore) WriteRecord(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	return s.exclusive(ctx, func() error {
		return s.upsert(ctx, s.db, record)
	})
}

func (s *SQLiteStore) WriteBatch(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.exclusive(ctx, func() error {
		return s.upsertBatch(ctx, records)
	})
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, file string) (deleted int64, err error) {
	err = s.exclusive(ctx, func() error {
		deleted, err = s.deleteFile(ctx, file)
		return err
	})
	return deleted, err
}

func (s *SQLiteStore) exclusive(ctx context.Context, fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return retrySQLiteBusy(ctx, fn)
}

// Busy retries back off exponentially from sqliteBusyBackoff[0] up to
// sqliteBusyBackoff[1].
var sqliteBusyBackoff = [2]time.Duration{5 * time.Millisecond, 250 * time.Millisecond}

const sqliteBusyMaxRetries = 12

func retrySQLiteBusy(ctx context.Context, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	wait := sqliteBusyBackoff[0]
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt == sqliteBusyMaxRetries || ClassifyWriteError(err) != WriteErrorClassContention {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, sqliteBusyBackoff[1])
	}
}
