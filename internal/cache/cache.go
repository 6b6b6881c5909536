// Package cache keeps the raw engine output of every transcribed clip so a
// resumed run never repeats inference for a clip it already paid for.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/longscribe/internal/atomicfile"
	"github.com/fmueller/longscribe/internal/segment"
	"github.com/fmueller/longscribe/internal/transcript"
)

const Dir = "cache"

var ErrCorrupt = errors.New("cache entry is corrupt")

// Entry is the stored result for one clip. StartMS and DurationMS fingerprint
// the clip so entries from a different segmentation are never reused.
type Entry struct {
	Index      int                     `json:"index"`
	StartMS    int64                   `json:"start_ms"`
	DurationMS int64                   `json:"duration_ms"`
	Engine     string                  `json:"engine,omitempty"`
	Segments   []transcript.RawSegment `json:"segments"`
	CreatedAt  time.Time               `json:"created_at"`
}

func (e Entry) Matches(clip segment.Clip) bool {
	return e.Index == clip.Index && e.StartMS == clip.StartMS && e.DurationMS == clip.DurationMS
}

type Store struct {
	Dir string
}

func New(workDir string) Store {
	return Store{Dir: filepath.Join(workDir, Dir)}
}

func FileName(index int) string {
	return fmt.Sprintf("clip_%04d.json", index)
}

func (s Store) path(index int) string {
	return filepath.Join(s.Dir, FileName(index))
}

// Lookup returns the entry for clip. A missing entry or one recorded for
// different clip bounds is a miss; an unreadable entry is ErrCorrupt.
func (s Store) Lookup(clip segment.Clip) (Entry, bool, error) {
	data, err := os.ReadFile(s.path(clip.Index))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read cache entry %d: %w", clip.Index, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("%w: clip %d: %v", ErrCorrupt, clip.Index, err)
	}
	if !entry.Matches(clip) {
		return Entry{}, false, nil
	}
	if entry.Segments == nil {
		entry.Segments = []transcript.RawSegment{}
	}

	return entry, true, nil
}

func (s Store) Put(entry Entry) error {
	if entry.Segments == nil {
		entry.Segments = []transcript.RawSegment{}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry %d: %w", entry.Index, err)
	}

	if err := atomicfile.WriteFile(s.path(entry.Index), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("store cache entry %d: %w", entry.Index, err)
	}
	return nil
}
