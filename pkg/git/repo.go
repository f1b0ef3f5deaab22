// Package git reads the staged change-set, the committer identity and the
// current branch from a repository through go-git.
package git

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	// ErrNotRepository indicates the directory is not inside a git repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrStatus indicates the index could not be read.
	ErrStatus = errors.New("reading staged changes")
)

// UnknownActor is reported when no git identity is configured.
const UnknownActor = "unknown"

// Status is the staging status of a path.
type Status byte

const (
	Added    Status = 'A'
	Modified Status = 'M'
	Copied   Status = 'C'
	Renamed  Status = 'R'
	Deleted  Status = 'D'
)

// Change is one staged path.
type Change struct {
	Path   string // slash-separated, relative to the worktree root
	Status Status
}

// Deleted reports whether the change removes the path.
func (c Change) Deleted() bool { return c.Status == Deleted }

// Repo is an opened repository with a worktree.
type Repo struct {
	repo *gogit.Repository
	root string
}

// Open opens the repository containing path, searching parent directories.
func Open(path string) (*Repo, error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotRepository, path, err)
	}
	return &Repo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root directory.
func (r *Repo) Root() string {
	return r.root
}

// Staged returns the staged changes sorted by path. Untracked and
// unmodified entries are not included.
func (r *Repo) Staged() ([]Change, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatus, err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatus, err)
	}

	changes := make([]Change, 0, len(status))
	for path, fs := range status {
		switch fs.Staging {
		case gogit.Added, gogit.Modified, gogit.Copied, gogit.Renamed, gogit.Deleted:
			changes = append(changes, Change{Path: path, Status: Status(fs.Staging)})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// Identity returns "name <email>" from the repository config, falling back
// to the global config, then to UnknownActor.
func (r *Repo) Identity() string {
	if cfg, err := r.repo.Config(); err == nil {
		if id := formatIdentity(cfg.User.Name, cfg.User.Email); id != "" {
			return id
		}
	}
	if cfg, err := config.LoadConfig(config.GlobalScope); err == nil {
		if id := formatIdentity(cfg.User.Name, cfg.User.Email); id != "" {
			return id
		}
	}
	return UnknownActor
}

func formatIdentity(name, email string) string {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	switch {
	case name != "" && email != "":
		return name + " <" + email + ">"
	case name != "":
		return name
	case email != "":
		return "<" + email + ">"
	}
	return ""
}

// Branch returns the current branch name. A repository without commits
// reports the branch HEAD points at; a detached HEAD reports "detached".
func (r *Repo) Branch() string {
	head, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "unknown"
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target().Short()
	}
	return "detached"
}
