// Package artifact stores manually uploaded build artifacts on the
// local filesystem. One file per (release, stage, platform, name),
// written atomically so a crashed upload never leaves a half-written
// build for a task to consume.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	apprelease "github.com/railhead-io/railhead/internal/application/release"
	"github.com/railhead-io/railhead/internal/domain/release"
	rherrors "github.com/railhead-io/railhead/internal/errors"
	"github.com/railhead-io/railhead/internal/fileutil"
)

// Store keeps artifacts under {root}/{releaseID}/{stage}/{platform}/{name}.
type Store struct {
	root     string
	maxBytes int64
	baseURL  string
}

// Option configures a Store.
type Option func(*Store)

// WithMaxSize caps accepted artifact sizes. Zero or negative disables
// the cap.
func WithMaxSize(n int64) Option {
	return func(s *Store) { s.maxBytes = n }
}

// WithBaseURL sets the public URL prefix download links are derived
// from. Without it, refs carry a file path and no URL.
func WithBaseURL(u string) Option {
	return func(s *Store) { s.baseURL = strings.TrimRight(u, "/") }
}

// New creates an artifact store rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, rherrors.Validation("artifact.New", "artifact root dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, rherrors.IOWrap(err, "artifact.New", "create artifact root")
	}
	s := &Store{root: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Save writes an artifact and returns its ref. Saving the same slot and
// name again replaces the previous content.
func (s *Store) Save(ctx context.Context, releaseID release.ReleaseID, stage release.Stage, platform release.Platform, fileName string, content []byte) (apprelease.ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return apprelease.ArtifactRef{}, err
	}
	name, err := sanitizeName(fileName)
	if err != nil {
		return apprelease.ArtifactRef{}, err
	}
	if s.maxBytes > 0 && int64(len(content)) > s.maxBytes {
		return apprelease.ArtifactRef{}, rherrors.Newf(rherrors.KindValidation,
			"artifact %q is %d bytes, limit is %d", name, len(content), s.maxBytes)
	}

	dir := filepath.Join(s.root, string(releaseID), strings.ToLower(string(stage)), strings.ToLower(string(platform)))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return apprelease.ArtifactRef{}, rherrors.IOWrap(err, "artifact.Save", "create artifact directory")
	}

	path := filepath.Join(dir, name)
	n, err := fileutil.AtomicWriteReader(path, bytes.NewReader(content), s.maxBytes, 0o640)
	if err != nil {
		return apprelease.ArtifactRef{}, rherrors.IOWrap(err, "artifact.Save", "write artifact")
	}

	ref := apprelease.ArtifactRef{Path: path, SizeBytes: n}
	if s.baseURL != "" {
		ref.URL = fmt.Sprintf("%s/%s/%s/%s/%s",
			s.baseURL,
			url.PathEscape(string(releaseID)),
			strings.ToLower(string(stage)),
			strings.ToLower(string(platform)),
			url.PathEscape(name))
	}
	return ref, nil
}

// Open reads a stored artifact back, enforcing the size cap on read so
// a tampered file cannot balloon memory.
func (s *Store) Open(path string) ([]byte, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, rherrors.Validation("artifact.Open", "path escapes the artifact root")
	}
	limit := s.maxBytes
	if limit <= 0 {
		limit = 1 << 31
	}
	data, err := fileutil.ReadFileLimited(path, limit)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rherrors.NotFound("artifact.Open", "artifact does not exist")
		}
		return nil, rherrors.IOWrap(err, "artifact.Open", "read artifact")
	}
	return data, nil
}

// sanitizeName rejects names that could climb out of the slot directory.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", rherrors.Validation("artifact", "artifact file name cannot be empty")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", rherrors.Newf(rherrors.KindValidation, "artifact file name %q must not contain path separators", name)
	}
	return name, nil
}
