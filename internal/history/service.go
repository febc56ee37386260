// Package history keeps a git-backed snapshot trail of each user's file
// tree: one repository per user, one commit per backup or restore.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "tree.json"

// CommitInfo describes one snapshot in a user's history.
type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) repoPath(username string) string {
	return filepath.Join(s.baseDir, username)
}

func (s *Service) userLock(username string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[username]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[username] = lock
	}
	return lock
}

func (s *Service) openOrInit(username string) (*git.Repository, error) {
	path := s.repoPath(username)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open snapshot repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init snapshot repo: %w", err)
	}
	return repo, nil
}

// Snapshot records the serialized forest as a commit and returns its
// info. An unchanged tree produces no new commit; the current head is
// returned instead.
func (s *Service) Snapshot(username string, treeJSON []byte, message string) (CommitInfo, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(username)
	if err != nil {
		return CommitInfo{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	// Pretty-print so snapshot diffs stay readable.
	pretty, err := indentJSON(treeJSON)
	if err != nil {
		return CommitInfo{}, err
	}
	if err := os.WriteFile(filepath.Join(s.repoPath(username), snapshotFile), pretty, 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write snapshot file: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return CommitInfo{}, fmt.Errorf("git add snapshot: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  username,
			Email: fmt.Sprintf("%s@local.scribe.dev", username),
			When:  time.Now(),
		},
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return s.head(repo)
		}
		return CommitInfo{}, fmt.Errorf("commit snapshot: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

func (s *Service) head(repo *git.Repository) (CommitInfo, error) {
	ref, err := repo.Head()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("resolve head: %w", err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read head commit: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists snapshot commits, newest first. A user with no snapshots
// gets an empty list, not an error. Non-positive limits fall back to 50.
func (s *Service) History(username string, limit int) ([]CommitInfo, error) {
	if limit <= 0 {
		limit = 50
	}

	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(username))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot repo: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		return []CommitInfo{}, nil
	}

	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetSnapshot returns the serialized forest recorded at the given commit.
func (s *Service) GetSnapshot(username, hash string) ([]byte, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(username))
	if err != nil {
		return nil, fmt.Errorf("open snapshot repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return nil, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(snapshotFile)
	if err != nil {
		return nil, fmt.Errorf("load %s from commit: %w", snapshotFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read snapshot bytes: %w", err)
	}
	return data, nil
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

func indentJSON(data []byte) ([]byte, error) {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot payload: %w", err)
	}
	return append(pretty, '\n'), nil
}
