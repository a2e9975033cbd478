package audit

import (
	"github.com/tendant/simple-verify/pkg/filestore"
)

const auditFile = "verification_audit_log.json"

// FileLog is a MemoryLog persisted to a JSON snapshot in the data directory.
type FileLog struct {
	*MemoryLog
	path string
}

type logSnapshot struct {
	Entries []Entry `json:"entries"`
}

// NewFileLog loads the snapshot in dataDir, if any, and returns a log that
// rewrites it on every Append.
func NewFileLog(dataDir string) (*FileLog, error) {
	path, err := filestore.Path(dataDir, auditFile)
	if err != nil {
		return nil, err
	}

	var snap logSnapshot
	if err := filestore.Load(path, &snap); err != nil {
		return nil, err
	}

	l := &FileLog{MemoryLog: NewMemoryLog(), path: path}
	for _, e := range snap.Entries {
		l.add(e)
	}
	l.save = func() error {
		return filestore.Save(l.path, logSnapshot{Entries: l.entries})
	}
	return l, nil
}
