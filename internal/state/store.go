package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/fmueller/longscribe/internal/atomicfile"
)

const FileName = "pipeline_state.json"

var (
	ErrNotFound = errors.New("pipeline state not found")
	ErrCorrupt  = errors.New("pipeline state is corrupt")
)

type Store struct {
	Path string
}

func NewStore(workDir string) Store {
	return Store{Path: filepath.Join(workDir, FileName)}
}

// Load reads the checkpoint. A missing file yields ErrNotFound; anything that
// does not parse or violates the state invariants yields ErrCorrupt.
func (s Store) Load() (*PipelineState, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read state %s: %w", s.Path, err)
	}

	var st PipelineState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Path, err)
	}
	if err := fillLegacyFields(&st, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Path, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.Path, err)
	}

	return &st, nil
}

// legacyShape marks the keys that state files written by the standalone
// segmentation script omit.
type legacyShape struct {
	Clips []struct {
		Index *int `json:"index"`
	} `json:"clips"`
	Complete *bool `json:"complete"`
}

// fillLegacyFields derives what older state files leave out: a clip without
// an index takes its position, a missing complete flag is recomputed and the
// processed set is sorted without duplicates.
func fillLegacyFields(st *PipelineState, data []byte) error {
	var shape legacyShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}

	for i, c := range shape.Clips {
		if c.Index == nil && i < len(st.Clips) {
			st.Clips[i].Index = i
		}
	}

	if st.Processed == nil {
		st.Processed = []int{}
	}
	slices.Sort(st.Processed)
	st.Processed = slices.Compact(st.Processed)

	if shape.Complete == nil {
		st.Complete = len(st.Processed) == len(st.Clips)
	}
	return nil
}

// Persist replaces the checkpoint atomically.
func (s Store) Persist(st *PipelineState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	data = append(data, '\n')

	if err := atomicfile.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("persist state %s: %w", s.Path, err)
	}
	return nil
}

func (s Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}
