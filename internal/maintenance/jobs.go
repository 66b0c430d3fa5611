package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/mindquiz/internal/ledger"
)

const stampLayout = "2006-01-02-15-04-05"

// BackupRecorder stores the time of the last successful backup.
type BackupRecorder interface {
	SetLastBackup(ctx context.Context, at time.Time) error
}

// Jobs runs housekeeping against a ledger store. It works the same for every
// backend because it only uses the Store interface.
type Jobs struct {
	store      ledger.Store
	archiveDir string
	backupDir  string
	recorder   BackupRecorder
	logger     *slog.Logger
	now        func() time.Time
}

func NewJobs(store ledger.Store, archiveDir, backupDir string, recorder BackupRecorder, logger *slog.Logger) *Jobs {
	return &Jobs{
		store:      store,
		archiveDir: archiveDir,
		backupDir:  backupDir,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
	}
}

func (j *Jobs) stamp() string {
	return j.now().UTC().Format(stampLayout)
}

func (j *Jobs) readStream(ctx context.Context, stream string) ([]byte, error) {
	var buf []byte
	err := j.store.Replay(ctx, stream, func(line []byte) error {
		buf = append(buf, line...)
		buf = append(buf, '\n')
		return nil
	})
	return buf, err
}
