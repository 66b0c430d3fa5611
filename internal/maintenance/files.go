package maintenance

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	ScopeArchive = "archive"
	ScopeBackup  = "backup"

	restoreSampleLines = 5
)

var (
	ErrUnknownScope = errors.New("unknown file scope")
	ErrFileNotFound = errors.New("file not found")
	ErrNoBackup     = errors.New("no backup files")
)

type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

type RestoreCheck struct {
	File    string `json:"file"`
	Lines   int    `json:"lines"`
	Sampled int    `json:"sampled"`
	Parsed  int    `json:"parsed"`
}

// OK reports whether every sampled line decoded as JSON.
func (c RestoreCheck) OK() bool {
	return c.Sampled > 0 && c.Parsed == c.Sampled
}

func (j *Jobs) scopeDir(scope string) (string, error) {
	switch scope {
	case "", ScopeArchive:
		return j.archiveDir, nil
	case ScopeBackup:
		return j.backupDir, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
}

// ListFiles returns the files under the archive or backup directory, newest
// first. A missing directory yields an empty list.
func (j *Jobs) ListFiles(scope string) ([]FileInfo, error) {
	dir, err := j.scopeDir(scope)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(a, b int) bool { return files[a].ModTime.After(files[b].ModTime) })
	return files, nil
}

// FilePath resolves name inside the scope directory. Names that would leave
// the directory are reported as not found.
func (j *Jobs) FilePath(scope, name string) (string, error) {
	dir, err := j.scopeDir(scope)
	if err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrFileNotFound
	}
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel != name {
		return "", ErrFileNotFound
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrFileNotFound
	}
	return path, nil
}

func (j *Jobs) newestBackup() (string, error) {
	files, err := j.ListFiles(ScopeBackup)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if strings.HasSuffix(f.Name, ".ndjson.gz") {
			return f.Name, nil
		}
	}
	return "", ErrNoBackup
}

// RestoreCheck decompresses the newest backup, counts its records and
// decodes the first few as JSON.
func (j *Jobs) RestoreCheck(ctx context.Context) (RestoreCheck, error) {
	name, err := j.newestBackup()
	if err != nil {
		return RestoreCheck{}, err
	}
	f, err := os.Open(filepath.Join(j.backupDir, name))
	if err != nil {
		return RestoreCheck{}, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return RestoreCheck{}, fmt.Errorf("open gzip %s: %w", name, err)
	}
	defer gz.Close()

	res := RestoreCheck{File: name}
	sc := bufio.NewScanner(gz)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		res.Lines++
		if res.Sampled < restoreSampleLines {
			res.Sampled++
			if json.Valid(line) {
				res.Parsed++
			}
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("decompress %s: %w", name, err)
	}

	if res.OK() {
		j.logger.Info("restore check ok", "file", name, "lines", res.Lines)
	} else {
		j.logger.Warn("restore check failed", "file", name, "sampled", res.Sampled, "parsed", res.Parsed)
	}
	return res, nil
}
