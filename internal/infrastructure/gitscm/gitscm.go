// Package gitscm implements the SCM capability on a local repository
// through go-git. Self-hosted deployments point Railhead at a clone
// (or bare mirror) of the product repository and get branches, tags
// and ref comparisons without a hosting-provider API.
package gitscm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/railhead-io/railhead/internal/domain/provider"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// errStopIteration is a sentinel error used to signal early termination of commit iteration.
var errStopIteration = errors.New("stop iteration")

// Ensure Provider implements the SCM capability.
var _ provider.SCM = (*Provider)(nil)

// Config configures the local SCM provider.
type Config struct {
	// RepoPath is the path to the repository worktree or bare mirror.
	RepoPath string
	// TaggerName is recorded as the tagger on annotated tags.
	TaggerName string
	// TaggerEmail is recorded as the tagger on annotated tags.
	TaggerEmail string
	// Push mirrors created branches and tags to Remote. Off by
	// default: a bare mirror deployment reads and writes locally.
	Push bool
	// Remote names the push target.
	Remote string
}

// DefaultConfig returns the default provider configuration.
func DefaultConfig() Config {
	return Config{
		RepoPath:    ".",
		TaggerName:  "Railhead",
		TaggerEmail: "railhead@localhost",
		Remote:      "origin",
	}
}

// Option configures the provider.
type Option func(*Config)

// WithRepoPath sets the repository path.
func WithRepoPath(path string) Option {
	return func(cfg *Config) {
		cfg.RepoPath = path
	}
}

// WithTagger sets the signature recorded on annotated tags.
func WithTagger(name, email string) Option {
	return func(cfg *Config) {
		cfg.TaggerName = name
		cfg.TaggerEmail = email
	}
}

// WithPush mirrors created branches and tags to the named remote. An
// empty remote keeps the default.
func WithPush(remote string) Option {
	return func(cfg *Config) {
		cfg.Push = true
		if remote != "" {
			cfg.Remote = remote
		}
	}
}

// Provider serves branches, tags and ref comparisons from a repository
// on local disk.
type Provider struct {
	cfg  Config
	repo *git.Repository
}

// New opens the configured repository.
func New(opts ...Option) (*Provider, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	absPath, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, rherrors.GitWrap(err, "gitscm.New", "failed to get absolute path")
	}

	repo, err := git.PlainOpen(absPath)
	if err != nil {
		return nil, rherrors.GitWrap(err, "gitscm.New", "failed to open repository")
	}

	return &Provider{cfg: cfg, repo: repo}, nil
}

// CreateBranch cuts a branch from the requested ref. A branch that
// already exists is returned as-is, so a replayed fork task converges
// on the first run's result instead of failing.
func (p *Provider) CreateBranch(ctx context.Context, req provider.CreateBranchRequest) (provider.BranchResult, error) {
	const op = "gitscm.CreateBranch"

	if req.BranchName == "" {
		return provider.BranchResult{}, rherrors.Git(op, "branch name cannot be empty")
	}

	refName := plumbing.NewBranchReferenceName(req.BranchName)
	if existing, err := p.repo.Reference(refName, true); err == nil {
		return provider.BranchResult{
			Name: req.BranchName,
			SHA:  existing.Hash().String(),
		}, nil
	}

	from := req.FromRef
	if from == "" {
		from = "HEAD"
	}
	hash, err := p.resolveRef(from)
	if err != nil {
		return provider.BranchResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to resolve reference %s", from))
	}

	if err := p.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash)); err != nil {
		return provider.BranchResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to create branch %s", req.BranchName))
	}
	if err := p.pushRef(ctx, refName); err != nil {
		return provider.BranchResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to push branch %s", req.BranchName))
	}

	return provider.BranchResult{Name: req.BranchName, SHA: hash.String()}, nil
}

// CreateTag creates an annotated tag at the requested ref. An existing
// tag with the same name is returned as-is for replay convergence.
func (p *Provider) CreateTag(ctx context.Context, req provider.CreateTagRequest) (provider.TagResult, error) {
	const op = "gitscm.CreateTag"

	if req.TagName == "" {
		return provider.TagResult{}, rherrors.Git(op, "tag name cannot be empty")
	}

	if sha, err := p.tagCommitSHA(req.TagName); err == nil {
		return provider.TagResult{Name: req.TagName, SHA: sha}, nil
	}

	target := req.TargetRef
	if target == "" {
		target = "HEAD"
	}
	hash, err := p.resolveRef(target)
	if err != nil {
		return provider.TagResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to resolve reference %s", target))
	}

	message := req.Message
	if message == "" {
		message = req.TagName
	}
	_, err = p.repo.CreateTag(req.TagName, hash, &git.CreateTagOptions{
		Message: message,
		Tagger: &object.Signature{
			Name:  p.cfg.TaggerName,
			Email: p.cfg.TaggerEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		// Lost a race against another writer; their tag wins.
		if errors.Is(err, git.ErrTagExists) {
			if sha, shaErr := p.tagCommitSHA(req.TagName); shaErr == nil {
				return provider.TagResult{Name: req.TagName, SHA: sha}, nil
			}
		}
		return provider.TagResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to create tag %s", req.TagName))
	}
	if err := p.pushRef(ctx, plumbing.NewTagReferenceName(req.TagName)); err != nil {
		return provider.TagResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to push tag %s", req.TagName))
	}

	return provider.TagResult{Name: req.TagName, SHA: hash.String()}, nil
}

// pushRef mirrors one ref to the configured remote. A remote already
// holding the ref is success; replayed tasks hit this constantly.
func (p *Provider) pushRef(ctx context.Context, ref plumbing.ReferenceName) error {
	if !p.cfg.Push {
		return nil
	}
	spec := gitconfig.RefSpec(ref + ":" + ref)
	err := p.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: p.cfg.Remote,
		RefSpecs:   []gitconfig.RefSpec{spec},
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// CompareRefs lists the commits reachable from head but not base,
// oldest first. The walk descends from head and stops at base, which
// is exact when base lies on head's lineage. Every comparison the
// pipeline makes is of that shape: a release branch against the ref it
// was cut from, or against one of its own candidate tags.
func (p *Provider) CompareRefs(ctx context.Context, req provider.CompareRequest) (provider.CompareResult, error) {
	const op = "gitscm.CompareRefs"

	baseHash, err := p.resolveRef(req.Base)
	if err != nil {
		return provider.CompareResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to resolve base reference %s", req.Base))
	}
	headHash, err := p.resolveRef(req.Head)
	if err != nil {
		return provider.CompareResult{}, rherrors.GitWrap(err, op, fmt.Sprintf("failed to resolve head reference %s", req.Head))
	}
	if baseHash == headHash {
		return provider.CompareResult{}, nil
	}

	iter, err := p.repo.Log(&git.LogOptions{
		From:  headHash,
		Order: git.LogOrderCommitterTime,
	})
	if err != nil {
		return provider.CompareResult{}, rherrors.GitWrap(err, op, "failed to get log iterator")
	}
	defer iter.Close()

	var commits []provider.CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if c.Hash == baseHash {
			return errStopIteration
		}
		commits = append(commits, provider.CommitInfo{
			SHA:      c.Hash.String(),
			Title:    subjectLine(c.Message),
			Author:   c.Author.Name,
			Authored: c.Author.When,
		})
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		if ctx.Err() != nil {
			return provider.CompareResult{}, rherrors.GitWrap(ctx.Err(), op, "operation canceled")
		}
		return provider.CompareResult{}, rherrors.GitWrap(err, op, "failed to iterate commits")
	}

	// The log walks newest first; the contract wants oldest first.
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}

	return provider.CompareResult{Commits: commits}, nil
}

// tagCommitSHA resolves a tag name to the commit it points at.
func (p *Provider) tagCommitSHA(name string) (string, error) {
	ref, err := p.repo.Tag(name)
	if err != nil {
		return "", err
	}

	if obj, tagErr := p.repo.TagObject(ref.Hash()); tagErr == nil {
		commit, err := obj.Commit()
		if err != nil {
			return "", err
		}
		return commit.Hash.String(), nil
	}

	// Lightweight tag; the reference is the commit.
	return ref.Hash().String(), nil
}

// resolveRef resolves a reference (tag, branch, or commit hash) to a hash.
func (p *Provider) resolveRef(ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}

	resolved, err := p.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve reference %s: %w", ref, err)
	}

	return *resolved, nil
}

// subjectLine returns the first line of a commit message.
func subjectLine(message string) string {
	lines := strings.SplitN(strings.TrimSpace(message), "\n", 2)
	return strings.TrimSpace(lines[0])
}
