package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"scribe/api/internal/ai"
	"scribe/api/internal/auth"
	"scribe/api/internal/authpw"
	"scribe/api/internal/backup"
	"scribe/api/internal/config"
	"scribe/api/internal/export"
	"scribe/api/internal/filetree"
	"scribe/api/internal/history"
	"scribe/api/internal/search"
	"scribe/api/internal/tree"
	"scribe/api/internal/util"
)

// Session is the pair of tokens issued at register/login/refresh.
type Session struct {
	Token        string
	RefreshToken string
	Username     string
	ExpiresAt    time.Time
}

// SessionStore persists refresh tokens by hash. Implemented by the Redis
// store and by the Postgres store as a fallback.
type SessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, username string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the wired components behind the service facade. History,
// Search, and Remote are optional; their endpoints report unavailable
// when nil.
type Deps struct {
	Users    *authpw.Service
	Trees    *filetree.Service
	Sessions SessionStore
	Pipeline *ai.Pipeline
	History  *history.Service
	Search   *search.Service
	Remote   backup.Remote
	DB       pinger
}

type Service struct {
	cfg      config.Config
	users    *authpw.Service
	trees    *filetree.Service
	sessions SessionStore
	pipeline *ai.Pipeline
	history  *history.Service
	search   *search.Service
	remote   backup.Remote
	db       pinger
	exports  *export.Service
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:      cfg,
		users:    deps.Users,
		trees:    deps.Trees,
		sessions: deps.Sessions,
		pipeline: deps.Pipeline,
		history:  deps.History,
		search:   deps.Search,
		remote:   deps.Remote,
		db:       deps.DB,
	}
	s.exports = export.NewService(s)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Ping(ctx)
}

// Auth and sessions

func (s *Service) Register(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if err := s.users.Register(ctx, username, password); err != nil {
		return Session{}, err
	}
	// Seed the starter tree so the first file-tree fetch has content.
	if _, err := s.trees.FileTree(ctx, username); err != nil {
		return Session{}, fmt.Errorf("seed file tree: %w", err)
	}
	return s.issueSession(ctx, username)
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if err := s.users.Login(ctx, username, password); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, username)
}

func (s *Service) issueSession(ctx context.Context, username string) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub: username,
		JTI: util.NewID("jti"),
		Exp: expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), username, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		Username:     username,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	username, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, username)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// UsernameFromToken validates an access token and returns its subject.
func (s *Service) UsernameFromToken(token string) (string, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return "", err
	}
	return claims.Sub, nil
}

// File tree

func (s *Service) FileTree(ctx context.Context, username string) ([]*tree.Folder, error) {
	return s.trees.FileTree(ctx, username)
}

func (s *Service) AddNote(ctx context.Context, username, folderID, title string) (*tree.Note, error) {
	note, err := s.trees.AddNote(ctx, username, folderID, title)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexNote(ctx, username, note.ID, note.Title, note.Content)
	}
	return note, nil
}

func (s *Service) AddFolder(ctx context.Context, username, parentFolderID, name string) (*tree.Folder, error) {
	return s.trees.AddFolder(ctx, username, parentFolderID, name)
}

func (s *Service) UpdateNoteContent(ctx context.Context, username, noteID, content string) (*tree.Note, error) {
	note, err := s.trees.UpdateNoteContent(ctx, username, noteID, content)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexNote(ctx, username, note.ID, note.Title, note.Content)
	}
	return note, nil
}

func (s *Service) DeleteNote(ctx context.Context, username, noteID string) (bool, error) {
	deleted, err := s.trees.DeleteNote(ctx, username, noteID)
	if err != nil {
		return false, err
	}
	if deleted && s.search != nil {
		s.search.DeleteNote(ctx, noteID)
	}
	return deleted, nil
}

func (s *Service) DeleteFolder(ctx context.Context, username, folderID string) (bool, error) {
	deleted, err := s.trees.DeleteFolder(ctx, username, folderID)
	if err != nil {
		return false, err
	}
	if deleted {
		// Cascade removed an unknown set of notes; rebuild the index.
		s.reindex(ctx, username)
	}
	return deleted, nil
}

func (s *Service) reindex(ctx context.Context, username string) {
	if s.search == nil {
		return
	}
	forest, err := s.trees.FileTree(ctx, username)
	if err != nil {
		log.Printf("reindex %s: %v", username, err)
		return
	}
	var records []search.Record
	for _, note := range tree.Notes(forest) {
		records = append(records, search.Record{
			ID:       note.ID,
			Username: username,
			Title:    note.Title,
			Body:     search.StripMarkup(note.Content),
		})
	}
	s.search.Reindex(ctx, username, records)
}

// GetNote resolves a note for export.
func (s *Service) GetNote(ctx context.Context, username, noteID string) (export.NoteInfo, error) {
	forest, err := s.trees.FileTree(ctx, username)
	if err != nil {
		return export.NoteInfo{}, err
	}
	note, _ := tree.FindNote(forest, noteID)
	if note == nil {
		return export.NoteInfo{}, export.ErrNoteNotFound
	}
	return export.NoteInfo{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		UpdatedAt: note.UpdatedAt,
	}, nil
}

func (s *Service) Export(ctx context.Context, username, noteID string, format export.Format) (*export.Result, error) {
	return s.exports.Export(ctx, export.Request{Username: username, NoteID: noteID, Format: format})
}

// Search

func (s *Service) Search(ctx context.Context, username, text string, limit int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{Username: username, Text: text, Limit: limit})
}

// AI generation

func (s *Service) Generate(ctx context.Context, configs []ai.AgentConfig, sink func(chunk string) error) {
	s.pipeline.Run(ctx, configs, sink)
}

// Backup and restore

// backupPayload is the fixed-filename blob pushed to the remote.
type backupPayload struct {
	Username  string          `json:"username"`
	CreatedAt time.Time       `json:"createdAt"`
	Tree      json.RawMessage `json:"tree"`
}

func (s *Service) Backup(ctx context.Context, username string) (history.CommitInfo, error) {
	if s.remote == nil {
		return history.CommitInfo{}, domainError(503, "No backup remote configured")
	}
	forest, err := s.trees.FileTree(ctx, username)
	if err != nil {
		return history.CommitInfo{}, err
	}
	treeJSON, err := json.Marshal(forest)
	if err != nil {
		return history.CommitInfo{}, err
	}
	payload, err := json.Marshal(backupPayload{
		Username:  username,
		CreatedAt: time.Now().UTC(),
		Tree:      treeJSON,
	})
	if err != nil {
		return history.CommitInfo{}, err
	}
	if err := s.remote.Upload(ctx, payload); err != nil {
		return history.CommitInfo{}, fmt.Errorf("upload to %s: %w", s.remote.Name(), err)
	}

	if s.history == nil {
		return history.CommitInfo{}, nil
	}
	commit, err := s.history.Snapshot(username, treeJSON, "backup to "+s.remote.Name())
	if err != nil {
		// The upload succeeded; a snapshot failure is not fatal.
		log.Printf("snapshot after backup for %s: %v", username, err)
		return history.CommitInfo{}, nil
	}
	return commit, nil
}

func (s *Service) Restore(ctx context.Context, username string) ([]*tree.Folder, error) {
	if s.remote == nil {
		return nil, domainError(503, "No backup remote configured")
	}
	data, err := s.remote.Download(ctx)
	if err != nil {
		return nil, err
	}

	var payload backupPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domainError(422, "Backup payload is not valid JSON")
	}
	var forest []*tree.Folder
	if err := json.Unmarshal(payload.Tree, &forest); err != nil {
		return nil, domainError(422, "Backup payload does not contain a file tree")
	}

	if err := s.trees.Replace(ctx, username, forest); err != nil {
		return nil, err
	}
	s.reindex(ctx, username)
	if s.history != nil {
		if _, err := s.history.Snapshot(username, payload.Tree, "restore from "+s.remote.Name()); err != nil {
			log.Printf("snapshot after restore for %s: %v", username, err)
		}
	}
	return forest, nil
}

func (s *Service) BackupHistory(username string, limit int) ([]history.CommitInfo, error) {
	if s.history == nil {
		return []history.CommitInfo{}, nil
	}
	return s.history.History(username, limit)
}

// SnapshotTree returns the forest recorded at a snapshot commit.
func (s *Service) SnapshotTree(username, hash string) ([]*tree.Folder, error) {
	if s.history == nil {
		return nil, domainError(503, "Snapshot history not configured")
	}
	data, err := s.history.GetSnapshot(username, hash)
	if err != nil {
		return nil, domainError(404, "Snapshot not found")
	}
	var forest []*tree.Folder
	if err := json.Unmarshal(data, &forest); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return forest, nil
}
