// Package tree holds the folder/note forest model and the traversal
// primitives shared by every layer that manipulates a user's file tree.
package tree

import "time"

// Note is a titled rich-text document. Content carries the editor's
// serialized markup verbatim.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Folder is a named container of notes and sub-folders. A user's whole
// file tree is an ordered forest of Folders.
type Folder struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Notes   []*Note   `json:"notes"`
	Folders []*Folder `json:"folders"`
}

// NewFolder returns an empty folder. Notes and Folders are non-nil so the
// JSON encoding matches the client's expectation of [] rather than null.
func NewFolder(id, name string) *Folder {
	return &Folder{ID: id, Name: name, Notes: []*Note{}, Folders: []*Folder{}}
}

// Default builds the starter forest seeded for every new user.
func Default(now time.Time) []*Folder {
	welcome := &Note{
		ID:        "note-welcome",
		Title:     "Welcome to Scribe",
		Content:   "<h2>Welcome to Scribe!</h2><p>This is your first note. You can edit it, create new notes, and organize them into folders.</p><p>Use the toolbar to format your text. Happy writing!</p>",
		CreatedAt: now,
		UpdatedAt: now,
	}
	starter := NewFolder("folder-getting-started", "Getting Started")
	starter.Notes = append(starter.Notes, welcome)
	return []*Folder{starter}
}

// FindFolder returns the first folder with the given id, pre-order
// depth-first, or nil.
func FindFolder(folders []*Folder, id string) *Folder {
	for _, folder := range folders {
		if folder.ID == id {
			return folder
		}
		if found := FindFolder(folder.Folders, id); found != nil {
			return found
		}
	}
	return nil
}

// FindNote returns the first note with the given id and the folder that
// owns it, pre-order depth-first, or (nil, nil).
func FindNote(folders []*Folder, id string) (*Note, *Folder) {
	for _, folder := range folders {
		for _, note := range folder.Notes {
			if note.ID == id {
				return note, folder
			}
		}
		if note, parent := FindNote(folder.Folders, id); note != nil {
			return note, parent
		}
	}
	return nil, nil
}

// RemoveNote removes the first note with the given id anywhere in the
// forest and reports whether a removal happened.
func RemoveNote(folders []*Folder, id string) bool {
	for _, folder := range folders {
		for i, note := range folder.Notes {
			if note.ID == id {
				folder.Notes = append(folder.Notes[:i], folder.Notes[i+1:]...)
				return true
			}
		}
		if RemoveNote(folder.Folders, id) {
			return true
		}
	}
	return false
}

// RemoveFolder removes the first folder with the given id, cascading its
// whole subtree. It returns the (possibly re-sliced) forest and whether a
// removal happened; callers must keep the returned slice.
func RemoveFolder(folders []*Folder, id string) ([]*Folder, bool) {
	for i, folder := range folders {
		if folder.ID == id {
			return append(folders[:i], folders[i+1:]...), true
		}
	}
	for _, folder := range folders {
		if children, removed := RemoveFolder(folder.Folders, id); removed {
			folder.Folders = children
			return folders, true
		}
	}
	return folders, false
}

// Notes flattens every note in the forest, pre-order.
func Notes(folders []*Folder) []*Note {
	var all []*Note
	for _, folder := range folders {
		all = append(all, folder.Notes...)
		all = append(all, Notes(folder.Folders)...)
	}
	return all
}
