package codestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/panbanda/klone/pkg/models"
)

type cloneState struct {
	status Status
	err    error
}

// Git clones entity repositories into a work directory in the background.
// The first List of an entity starts the clone and reports pending; later
// calls report pending until the clone settles. A failed clone is reported
// once and retried on the next List.
type Git struct {
	workdir string
	locator Locator
	logger  *slog.Logger

	mu     sync.Mutex
	clones map[models.EntityRef]*cloneState
	wg     sync.WaitGroup
}

// NewGit creates a git-backed store. A nil logger uses slog.Default().
func NewGit(workdir string, locator Locator, logger *slog.Logger) *Git {
	if logger == nil {
		logger = slog.Default()
	}
	return &Git{
		workdir: workdir,
		locator: locator,
		logger:  logger,
		clones:  make(map[models.EntityRef]*cloneState),
	}
}

func (g *Git) repoDir(ref models.EntityRef) string {
	return filepath.Join(g.workdir, string(ref.Mode), strconv.Itoa(ref.ID))
}

// List implements Store.
func (g *Git) List(ctx context.Context, ref models.EntityRef) (Listing, error) {
	g.mu.Lock()
	st, ok := g.clones[ref]
	if !ok {
		st = &cloneState{status: StatusPending}
		g.clones[ref] = st
		g.mu.Unlock()

		url, rev, err := g.locator.Locate(ctx, ref)
		if err != nil {
			g.mu.Lock()
			delete(g.clones, ref)
			g.mu.Unlock()
			return Listing{}, fmt.Errorf("locate %s: %w", ref, err)
		}
		g.wg.Add(1)
		go g.clone(ref, url, rev)
		return Listing{Status: StatusPending}, nil
	}
	status, cerr := st.status, st.err
	if status == StatusFailed {
		delete(g.clones, ref)
	}
	g.mu.Unlock()

	switch status {
	case StatusPending:
		return Listing{Status: StatusPending}, nil
	case StatusFailed:
		return Listing{Status: StatusFailed, Error: cerr.Error()}, nil
	}
	return listDir(g.repoDir(ref))
}

// Read implements Store.
func (g *Git) Read(_ context.Context, ref models.EntityRef, path string) (string, error) {
	return readFile(g.repoDir(ref), path)
}

// Wait blocks until every started clone has settled.
func (g *Git) Wait() { g.wg.Wait() }

func (g *Git) setState(ref models.EntityRef, status Status, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clones[ref] = &cloneState{status: status, err: err}
}

func (g *Git) clone(ref models.EntityRef, url, revision string) {
	defer g.wg.Done()

	dir := g.repoDir(ref)
	log := g.logger.With("entity", ref.String(), "url", url)
	log.Debug("cloning repository")

	if err := os.RemoveAll(dir); err != nil {
		g.setState(ref, StatusFailed, err)
		return
	}
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{URL: url})
	if err != nil {
		log.Error("repository cloning failed", "error", err)
		g.setState(ref, StatusFailed, err)
		return
	}
	if revision != "" {
		if err := checkout(repo, revision); err != nil {
			log.Error("checkout failed", "revision", revision, "error", err)
			g.setState(ref, StatusFailed, err)
			return
		}
	}
	g.setState(ref, StatusDone, nil)
	log.Debug("repository cloned")
}

// checkout moves the worktree to a branch or commit.
func checkout(repo *git.Repository, revision string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	branch := plumbing.NewRemoteReferenceName("origin", revision)
	if _, err := repo.Reference(branch, true); err == nil {
		return wt.Checkout(&git.CheckoutOptions{Branch: branch})
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return err
	}
	return wt.Checkout(&git.CheckoutOptions{Hash: *hash})
}
