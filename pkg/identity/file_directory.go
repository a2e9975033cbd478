package identity

import (
	"slices"
	"strings"

	"github.com/tendant/simple-verify/pkg/filestore"
)

const usersFile = "users.json"

// FileDirectory is a MemoryDirectory persisted to a JSON snapshot in the
// data directory.
type FileDirectory struct {
	*MemoryDirectory
	path string
}

type directorySnapshot struct {
	Users []*User `json:"users"`
}

// NewFileDirectory loads the snapshot in dataDir, if any, and returns a
// directory that rewrites it on every change.
func NewFileDirectory(dataDir string) (*FileDirectory, error) {
	path, err := filestore.Path(dataDir, usersFile)
	if err != nil {
		return nil, err
	}

	var snap directorySnapshot
	if err := filestore.Load(path, &snap); err != nil {
		return nil, err
	}

	d := &FileDirectory{MemoryDirectory: NewMemoryDirectory(), path: path}
	for _, u := range snap.Users {
		u.Email = NormalizeEmail(u.Email)
		d.byEmail[u.Email] = u
		d.byID[u.ID] = u
	}
	d.save = d.write
	return d, nil
}

func (d *FileDirectory) write() error {
	snap := directorySnapshot{Users: make([]*User, 0, len(d.byID))}
	for _, u := range d.byID {
		snap.Users = append(snap.Users, u)
	}
	slices.SortFunc(snap.Users, func(a, b *User) int {
		return strings.Compare(a.Email, b.Email)
	})
	return filestore.Save(d.path, snap)
}
