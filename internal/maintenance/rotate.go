package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Rotate copies every non-empty stream to the archive directory and
// truncates it. It returns the archive files written.
func (j *Jobs) Rotate(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(j.archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	ts := j.stamp()
	var written []string
	for _, stream := range streams() {
		data, err := j.readStream(ctx, stream)
		if err != nil {
			return written, fmt.Errorf("read %s: %w", stream, err)
		}
		if len(data) == 0 {
			continue
		}

		dst := filepath.Join(j.archiveDir, fmt.Sprintf("%s-%s.ndjson", stream, ts))
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return written, fmt.Errorf("write archive %s: %w", dst, err)
		}
		if err := j.store.Truncate(ctx, stream); err != nil {
			return written, fmt.Errorf("truncate %s: %w", stream, err)
		}

		j.logger.Info("rotated", "stream", stream, "archive", dst)
		written = append(written, dst)
	}
	return written, nil
}
