// Package filetree is the per-user document store: every operation loads a
// user's whole forest, mutates it in memory, and writes it back.
package filetree

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"scribe/api/internal/tree"
	"scribe/api/internal/util"
)

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrNoteNotFound   = errors.New("note not found")
)

// TreeStore persists one serialized forest per user. GetFileTree returns
// sql.ErrNoRows when the user has no tree yet.
type TreeStore interface {
	GetFileTree(ctx context.Context, username string) ([]byte, error)
	PutFileTree(ctx context.Context, username string, data []byte) error
}

type Service struct {
	store TreeStore
	now   func() time.Time
	newID func(prefix string) string

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(store TreeStore) *Service {
	return &Service{
		store: store,
		now:   time.Now,
		newID: util.NewID,
		locks: make(map[string]*sync.Mutex),
	}
}

// userLock serializes read-modify-write cycles per user; requests for
// different users proceed in parallel.
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

// FileTree returns the user's forest, seeding and persisting the default
// one if none exists yet.
func (s *Service) FileTree(ctx context.Context, username string) ([]*tree.Folder, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()
	return s.load(ctx, username)
}

func (s *Service) load(ctx context.Context, username string) ([]*tree.Folder, error) {
	data, err := s.store.GetFileTree(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		forest := tree.Default(s.now())
		if err := s.persist(ctx, username, forest); err != nil {
			return nil, err
		}
		return forest, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load file tree: %w", err)
	}

	var forest []*tree.Folder
	if err := json.Unmarshal(data, &forest); err != nil {
		return nil, fmt.Errorf("decode file tree: %w", err)
	}
	if forest == nil {
		forest = []*tree.Folder{}
	}
	return forest, nil
}

func (s *Service) persist(ctx context.Context, username string, forest []*tree.Folder) error {
	data, err := json.Marshal(forest)
	if err != nil {
		return fmt.Errorf("encode file tree: %w", err)
	}
	if err := s.store.PutFileTree(ctx, username, data); err != nil {
		return fmt.Errorf("persist file tree: %w", err)
	}
	return nil
}

// AddNote creates a note at the front of the target folder's notes.
func (s *Service) AddNote(ctx context.Context, username, folderID, title string) (*tree.Note, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	forest, err := s.load(ctx, username)
	if err != nil {
		return nil, err
	}
	folder := tree.FindFolder(forest, folderID)
	if folder == nil {
		return nil, ErrFolderNotFound
	}

	now := s.now()
	note := &tree.Note{
		ID:        s.newID("note"),
		Title:     title,
		Content:   fmt.Sprintf("<h2>%s</h2><p>Start writing here...</p>", title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	folder.Notes = append([]*tree.Note{note}, folder.Notes...)

	if err := s.persist(ctx, username, forest); err != nil {
		return nil, err
	}
	return note, nil
}

// AddFolder creates a folder under the given parent, or at the root when
// parentFolderID is empty. An unknown parent is an error rather than the
// silent drop the old client tolerated.
func (s *Service) AddFolder(ctx context.Context, username, parentFolderID, name string) (*tree.Folder, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	forest, err := s.load(ctx, username)
	if err != nil {
		return nil, err
	}

	folder := tree.NewFolder(s.newID("folder"), name)
	if parentFolderID == "" {
		forest = append(forest, folder)
	} else {
		parent := tree.FindFolder(forest, parentFolderID)
		if parent == nil {
			return nil, ErrFolderNotFound
		}
		parent.Folders = append(parent.Folders, folder)
	}

	if err := s.persist(ctx, username, forest); err != nil {
		return nil, err
	}
	return folder, nil
}

// UpdateNoteContent overwrites a note's content and refreshes UpdatedAt.
func (s *Service) UpdateNoteContent(ctx context.Context, username, noteID, content string) (*tree.Note, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	forest, err := s.load(ctx, username)
	if err != nil {
		return nil, err
	}
	note, _ := tree.FindNote(forest, noteID)
	if note == nil {
		return nil, ErrNoteNotFound
	}

	note.Content = content
	note.UpdatedAt = s.now()

	if err := s.persist(ctx, username, forest); err != nil {
		return nil, err
	}
	return note, nil
}

// DeleteNote removes a note; it reports false when the id does not
// resolve, and only persists when something was removed.
func (s *Service) DeleteNote(ctx context.Context, username, noteID string) (bool, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	forest, err := s.load(ctx, username)
	if err != nil {
		return false, err
	}
	if !tree.RemoveNote(forest, noteID) {
		return false, nil
	}
	if err := s.persist(ctx, username, forest); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteFolder removes a folder and its whole subtree.
func (s *Service) DeleteFolder(ctx context.Context, username, folderID string) (bool, error) {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	forest, err := s.load(ctx, username)
	if err != nil {
		return false, err
	}
	forest, removed := tree.RemoveFolder(forest, folderID)
	if !removed {
		return false, nil
	}
	if err := s.persist(ctx, username, forest); err != nil {
		return false, err
	}
	return true, nil
}

// Replace overwrites the user's whole forest, used by restore.
func (s *Service) Replace(ctx context.Context, username string, forest []*tree.Folder) error {
	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()
	return s.persist(ctx, username, forest)
}
