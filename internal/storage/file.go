package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "reminderd/pkg/logx"
)

// compactEvery bounds journal growth: after this many appended records the
// journal is folded into the snapshot and truncated.
const compactEvery = 64

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (full map, replaced atomically via rename)
//   - <prefix>.journal.jsonl (append-only puts/deletes since the snapshot)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	data         map[string]string
	writes       int
}

type journalRecord struct {
	Key     string `json:"k"`
	Value   string `json:"v,omitempty"`
	Deleted bool   `json:"d,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	data := map[string]string{}
	if err := loadSnapshot(snapPath, data); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("snapshot unreadable; starting from journal only", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, data); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay stopped early", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		data:         data,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Load(ctx context.Context) (map[string]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return maps.Clone(s.data), nil
}

func (s *fileStore) Put(ctx context.Context, kv map[string]string) error {
	_ = ctx
	if len(kv) == 0 {
		return nil
	}
	recs := make([]journalRecord, 0, len(kv))
	for k, v := range kv {
		recs = append(recs, journalRecord{Key: k, Value: v})
	}
	return s.append(recs)
}

func (s *fileStore) Delete(ctx context.Context, keys ...string) error {
	_ = ctx
	if len(keys) == 0 {
		return nil
	}
	recs := make([]journalRecord, 0, len(keys))
	for _, k := range keys {
		recs = append(recs, journalRecord{Key: k, Deleted: true})
	}
	return s.append(recs)
}

// append writes all records with a single write + fsync so a batch is never
// half-applied after a crash (a torn trailing line is skipped on replay).
func (s *fileStore) append(recs []journalRecord) error {
	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if _, err := s.journal.WriteString(buf.String()); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	for _, r := range recs {
		applyRecord(s.data, r)
	}

	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func applyRecord(m map[string]string, r journalRecord) {
	if r.Key == "" {
		return
	}
	if r.Deleted {
		delete(m, r.Key)
		return
	}
	m[r.Key] = r.Value
}

func loadSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	maps.Copy(out, m)
	return nil
}

func replayJournal(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		applyRecord(out, r)
	}
	return sc.Err()
}
