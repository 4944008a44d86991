package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LocalProvider writes exports below a base directory.
type LocalProvider struct {
	base   string
	logger *slog.Logger
}

func NewLocalProvider(base string, logger *slog.Logger) (*LocalProvider, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", base, err)
	}
	return &LocalProvider{base: base, logger: logger}, nil
}

// path joins key under the base directory and refuses keys that escape it.
func (p *LocalProvider) path(key string) (string, error) {
	full := filepath.Join(p.base, key)
	rel, err := filepath.Rel(p.base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key %q escapes the base directory", key)
	}
	return full, nil
}

func (p *LocalProvider) Create(_ context.Context, key string) (Upload, error) {
	full, err := p.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", full, err)
	}
	return &localUpload{f: f, logger: p.logger}, nil
}

func (p *LocalProvider) Open(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := p.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (p *LocalProvider) URL(key string) string {
	abs, err := filepath.Abs(filepath.Join(p.base, key))
	if err != nil {
		abs = filepath.Join(p.base, key)
	}
	return "file://" + filepath.ToSlash(abs)
}

type localUpload struct {
	f      *os.File
	logger *slog.Logger
	err    error
	closed bool
}

func (u *localUpload) Write(b []byte) (int, error) {
	return u.f.Write(b)
}

func (u *localUpload) Close() error {
	if u.closed {
		return u.err
	}
	u.closed = true
	u.err = u.f.Close()
	if u.err == nil {
		u.logger.Info("Local file write completed", "path", u.f.Name())
	}
	return u.err
}

// Wait is Close for a local file: the write is done once the file is closed.
func (u *localUpload) Wait() error {
	return u.Close()
}
