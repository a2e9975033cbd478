package emailverification

import (
	"slices"

	"github.com/tendant/simple-verify/pkg/filestore"
)

const tokensFile = "verification_tokens.json"

// FileTokenStore is a MemoryTokenStore whose state is written to a JSON
// snapshot in the data directory after every Issue and Consume.
type FileTokenStore struct {
	*MemoryTokenStore
	path string
}

type tokenSnapshot struct {
	Tokens []*VerificationToken `json:"tokens"`
}

// NewFileTokenStore loads the snapshot in dataDir, if any, and returns a
// store that keeps it current.
func NewFileTokenStore(dataDir string, opts ...StoreOption) (*FileTokenStore, error) {
	path, err := filestore.Path(dataDir, tokensFile)
	if err != nil {
		return nil, err
	}

	var snap tokenSnapshot
	if err := filestore.Load(path, &snap); err != nil {
		return nil, err
	}

	s := &FileTokenStore{MemoryTokenStore: NewMemoryTokenStore(opts...), path: path}
	for _, t := range snap.Tokens {
		s.arena[t.ID] = t
		if t.UsedAt != nil {
			continue
		}
		if prev, ok := s.active[t.UserID]; !ok || s.arena[prev].CreatedAt.Before(t.CreatedAt) {
			s.active[t.UserID] = t.ID
		}
	}
	s.save = s.write
	return s, nil
}

func (s *FileTokenStore) write() error {
	snap := tokenSnapshot{Tokens: make([]*VerificationToken, 0, len(s.arena))}
	for _, t := range s.arena {
		snap.Tokens = append(snap.Tokens, t)
	}
	slices.SortFunc(snap.Tokens, func(a, b *VerificationToken) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return filestore.Save(s.path, snap)
}
