// Package state holds the resumable pipeline checkpoint: the clip list
// produced by segmentation and the set of clips whose transcription is done.
package state

import (
	"fmt"
	"slices"
	"time"

	"github.com/fmueller/longscribe/internal/segment"
)

type PipelineState struct {
	InputAudio      string         `json:"input_audio"`
	TotalDurationMS int64          `json:"total_duration_ms"`
	TotalClips      int            `json:"total_clips"`
	Params          segment.Params `json:"segmentation"`
	Clips           []segment.Clip `json:"clips"`
	Processed       []int          `json:"clips_processed"`
	Complete        bool           `json:"complete"`
	LastRunID       string         `json:"last_run_id,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func New(inputAudio string, totalMS int64, params segment.Params, clips []segment.Clip) *PipelineState {
	return &PipelineState{
		InputAudio:      inputAudio,
		TotalDurationMS: totalMS,
		TotalClips:      len(clips),
		Params:          params,
		Clips:           slices.Clone(clips),
		Processed:       []int{},
		Complete:        len(clips) == 0,
		UpdatedAt:       time.Now().UTC(),
	}
}

func (s *PipelineState) Clone() *PipelineState {
	c := *s
	c.Clips = slices.Clone(s.Clips)
	c.Processed = slices.Clone(s.Processed)
	if c.Processed == nil {
		c.Processed = []int{}
	}
	return &c
}

func (s *PipelineState) IsDone(index int) bool {
	_, found := slices.BinarySearch(s.Processed, index)
	return found
}

// Pending returns the clips not yet processed, in index order.
func (s *PipelineState) Pending() []segment.Clip {
	pending := make([]segment.Clip, 0, len(s.Clips)-len(s.Processed))
	for _, c := range s.Clips {
		if !s.IsDone(c.Index) {
			pending = append(pending, c)
		}
	}
	return pending
}

// RecordClipDone returns a copy of st with index marked processed. Recording
// an index twice is a no-op.
func RecordClipDone(st *PipelineState, index int) (*PipelineState, error) {
	if index < 0 || index >= len(st.Clips) {
		return nil, fmt.Errorf("clip index %d out of range [0,%d)", index, len(st.Clips))
	}

	next := st.Clone()
	pos, found := slices.BinarySearch(next.Processed, index)
	if !found {
		next.Processed = slices.Insert(next.Processed, pos, index)
	}
	next.Complete = len(next.Processed) == len(next.Clips)
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// Validate checks the structural invariants a persisted state must satisfy.
func (s *PipelineState) Validate() error {
	if s.TotalDurationMS < 0 {
		return fmt.Errorf("negative total duration %d", s.TotalDurationMS)
	}
	if s.TotalClips != len(s.Clips) {
		return fmt.Errorf("total_clips %d does not match %d clips", s.TotalClips, len(s.Clips))
	}

	for i, c := range s.Clips {
		if c.Index != i {
			return fmt.Errorf("clip at position %d has index %d", i, c.Index)
		}
		if c.DurationMS <= 0 || c.StartMS < 0 {
			return fmt.Errorf("clip %d has invalid bounds start=%d duration=%d", i, c.StartMS, c.DurationMS)
		}
		if i > 0 && c.StartMS < s.Clips[i-1].StartMS {
			return fmt.Errorf("clip %d starts before clip %d", i, i-1)
		}
	}
	if len(s.Clips) > 0 && s.Clips[0].StartMS != 0 {
		return fmt.Errorf("first clip starts at %d ms", s.Clips[0].StartMS)
	}
	if gap := segment.Coverage(s.Clips, s.TotalDurationMS); gap >= 0 {
		return fmt.Errorf("clips leave %d ms uncovered", gap)
	}

	for i, idx := range s.Processed {
		if idx < 0 || idx >= len(s.Clips) {
			return fmt.Errorf("processed index %d out of range", idx)
		}
		if i > 0 && idx <= s.Processed[i-1] {
			return fmt.Errorf("processed indices not strictly increasing at %d", idx)
		}
	}
	if want := len(s.Processed) == len(s.Clips); s.Complete != want {
		return fmt.Errorf("complete=%t but %d of %d clips processed", s.Complete, len(s.Processed), len(s.Clips))
	}

	return nil
}
