// Package store provides crash-safe persistence for session aggregates.
//
// Saves are atomic: the serialized session is written to a sibling temp file
// and renamed over the final path, so a crash at any point leaves either the
// previous committed file or the new one, never a partial write. Loads
// detect corruption and resolve it internally through a salvage chain; a
// corrupted file is archived aside, never deleted.
//
// Sessions for different ids are independent files and may be handled
// concurrently; within one process a per-file mutex serializes writers.
// Concurrent writers from separate processes are not guarded against: the
// contract is single writer per session id.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sys/unix"

	"github.com/dayplan-ai/dayplan/internal/event"
	"github.com/dayplan-ai/dayplan/internal/logging"
	"github.com/dayplan-ai/dayplan/pkg/types"
)

// ErrorKind classifies storage failures.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission_denied"
	KindDiskFull         ErrorKind = "disk_full"
	KindIOFailure        ErrorKind = "io_failure"
)

// StorageError is the typed failure surfaced at the save boundary.
type StorageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func classifyOSError(op string, err error) *StorageError {
	kind := KindIOFailure
	switch {
	case os.IsPermission(err):
		kind = KindPermissionDenied
	case errors.Is(err, unix.ENOSPC):
		kind = KindDiskFull
	}
	return &StorageError{Kind: kind, Op: op, Err: err}
}

const (
	// DefaultTempMaxAge is how old a leftover temp file must be before the
	// startup sweep removes it. Younger temp files are assumed to belong to
	// an in-flight write.
	DefaultTempMaxAge = time.Hour
	// DefaultMinFreeBytes is the free-space floor below which saves are
	// refused rather than risking a truncated write.
	DefaultMinFreeBytes = 1 << 20

	tempSuffix      = ".tmp"
	corruptedMarker = ".corrupted."
)

// SessionInfo is the metadata-only view returned by List.
type SessionInfo struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	State       string    `json:"state"`
	HasPlan     bool      `json:"has_plan"`
}

// Store persists sessions as one JSON file per session id.
type Store struct {
	dir          string
	minFreeBytes uint64
	tempMaxAge   time.Duration
	directive    string
	now          func() time.Time
	bus          *event.Bus
	log          zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

// WithClock injects the clock used for timestamps and temp-file aging.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBus injects the event bus for side-channel notifications.
func WithBus(bus *event.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithLogger injects the store logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithMinFreeBytes overrides the free-space floor. Zero disables the check.
func WithMinFreeBytes(n uint64) Option {
	return func(s *Store) { s.minFreeBytes = n }
}

// WithTempMaxAge overrides the temp-file sweep age.
func WithTempMaxAge(d time.Duration) Option {
	return func(s *Store) { s.tempMaxAge = d }
}

// WithDirective sets the directive seeded into sessions the store has to
// fabricate after unrecoverable corruption.
func WithDirective(directive string) Option {
	return func(s *Store) { s.directive = directive }
}

// New creates a Store rooted at dir, creating the directory if needed and
// sweeping stale temp files left behind by interrupted writes.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:          dir,
		minFreeBytes: DefaultMinFreeBytes,
		tempMaxAge:   DefaultTempMaxAge,
		now:          time.Now,
		log:          logging.Logger,
		locks:        make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, classifyOSError("mkdir", err)
	}
	s.sweepTempFiles()
	return s, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// sweepTempFiles removes *.tmp files older than tempMaxAge. Fresh temp
// files may belong to an in-flight write in another process and are left
// alone.
func (s *Store) sweepTempFiles() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	cutoff := s.now().Add(-s.tempMaxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err == nil {
			s.log.Info().Str("path", path).Msg("removed stale temp file")
		}
	}
}

// checkFreeSpace refuses writes when the filesystem is critically low,
// since a write that truncates is worse than no write at all.
func (s *Store) checkFreeSpace() error {
	if s.minFreeBytes == 0 {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(s.dir, &st); err != nil {
		// Free-space probing is best effort; an unprobeable filesystem
		// should not block saves.
		return nil
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < s.minFreeBytes {
		return &StorageError{
			Kind: KindDiskFull,
			Op:   "free-space check",
			Err:  fmt.Errorf("only %d bytes free in %s, need %d", free, s.dir, s.minFreeBytes),
		}
	}
	return nil
}

// Save atomically persists the session. On any failure before the final
// rename the previously committed file is untouched.
func (s *Store) Save(id string, sess *types.Session) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	return s.saveLocked(id, sess)
}

func (s *Store) saveLocked(id string, sess *types.Session) error {
	if err := s.checkFreeSpace(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return &StorageError{Kind: KindIOFailure, Op: "marshal", Err: err}
	}

	path := s.sessionPath(id)
	tmpPath := path + tempSuffix
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath)
		return classifyOSError("write temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return classifyOSError("rename", err)
	}

	s.bus.Publish(event.Event{
		Type: event.SessionSaved,
		Data: event.SessionSavedData{SessionID: id, Path: path},
	})
	s.log.Debug().Str("session", id).Msg("session saved")
	return nil
}

// Load reads the session for id. A missing file returns (nil, nil) so the
// caller can create a fresh session. A corrupted file is resolved
// internally: the original is archived with a timestamp suffix, whatever
// conversation or plan data can be salvaged is spliced into a fresh
// session, and that session is returned. Corruption is reported on the
// event bus, never as an error.
func (s *Store) Load(id string) (*types.Session, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	path := s.sessionPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, classifyOSError("read", err)
	}

	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return s.recoverCorrupted(id, path, data, err), nil
	}

	if sess.RepairTimestamps() {
		s.log.Warn().Str("session", id).Msg("repaired timestamp ordering")
		s.bus.Publish(event.Event{
			Type: event.TimestampRepaired,
			Data: event.TimestampRepairedData{SessionID: id},
		})
		if err := s.saveLocked(id, &sess); err != nil {
			s.log.Error().Err(err).Str("session", id).Msg("failed to re-save repaired session")
		}
	}
	return &sess, nil
}

// recoverCorrupted archives the unreadable file and builds a fresh session
// carrying whatever the salvage chain could extract. The original bytes are
// never destroyed.
func (s *Store) recoverCorrupted(id, path string, data []byte, parseErr error) *types.Session {
	s.log.Error().Err(parseErr).Str("session", id).Msg("corrupted session file")
	s.bus.Publish(event.Event{
		Type: event.CorruptionDetected,
		Data: event.CorruptionDetectedData{SessionID: id, Reason: parseErr.Error()},
	})

	rec := salvage(data)

	archivePath := path + corruptedMarker + s.now().Format("20060102T150405")
	if err := os.Rename(path, archivePath); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("failed to archive corrupted session file")
		archivePath = ""
	}

	fresh := types.NewSession(id, s.directive, s.now())
	recovered := false
	if rec != nil {
		if len(rec.messages) > 0 {
			fresh.Conversation.Messages = rec.messages
			recovered = true
		}
		if rec.plan != nil {
			fresh.Plan = rec.plan
			recovered = true
		}
	}

	s.bus.Publish(event.Event{
		Type: event.CorruptionArchived,
		Data: event.CorruptionArchivedData{SessionID: id, ArchivePath: archivePath, Recovered: recovered},
	})
	if recovered {
		s.log.Warn().Str("session", id).Str("archive", archivePath).Msg("salvaged data from corrupted session")
	} else {
		s.log.Warn().Str("session", id).Str("archive", archivePath).Msg("no data salvaged, starting fresh session")
	}
	return fresh
}

// Delete removes the session file. Deletion is an explicit external
// operation; the engine never deletes sessions on its own.
func (s *Store) Delete(id string) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.sessionPath(id)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return classifyOSError("delete", err)
	}
	return nil
}

// Exists reports whether a committed file exists for id.
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.sessionPath(id))
	return err == nil
}

// List returns metadata for every committed session, newest id first.
// Archived corruption files and temp files are skipped, and sessions whose
// metadata cannot be read are omitted rather than failing the listing.
func (s *Store) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, classifyOSError("list", err)
	}

	infos := make([]SessionInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") ||
			strings.Contains(name, corruptedMarker) || strings.HasSuffix(name, tempSuffix) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		meta := gjson.GetBytes(data, "metadata")
		if !meta.Exists() {
			continue
		}
		info := SessionInfo{
			ID:      meta.Get("id").String(),
			State:   gjson.GetBytes(data, "state").String(),
			HasPlan: gjson.GetBytes(data, "plan").Type == gjson.JSON,
		}
		if t, err := time.Parse(time.RFC3339, meta.Get("created_at").String()); err == nil {
			info.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, meta.Get("last_updated").String()); err == nil {
			info.LastUpdated = t
		}
		infos = append(infos, info)
	}

	// Session ids are dates, so lexical descending order is newest first.
	for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
		infos[i], infos[j] = infos[j], infos[i]
	}
	return infos, nil
}
