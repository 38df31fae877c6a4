// Copyright (C) 2024 The nightrail authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package status is the process-wide progress store a single merge or
// info-preload invocation shares across its worker pool: atomic counters,
// a monotonic abort flag, a mutex-protected per-path result map, and an
// emitter goroutine that pushes JSON snapshots to an optional Observer
// roughly twice a second, mirroring trawls's ProcessingStatus/
// InfoLoadingStatus window-event cadence.
package status

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hoxca-collective/nightrail/internal/nlog"
)

// EmitInterval is how often the emitter goroutine pushes a snapshot.
const EmitInterval = 500 * time.Millisecond

// Observer receives named event pushes. It is assumed not to be
// multi-producer-safe by the caller, so every invocation is serialized
// through a single emitter goroutine.
type Observer interface {
	Emit(event string, payload []byte)
}

// ImageResult is the per-source-path outcome recorded in the image-info map:
// either a success snapshot or an error summary, never both.
type ImageResult struct {
	Path    string `json:"path"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Snapshot is the JSON shape pushed to the observer and returned by JSON().
type Snapshot struct {
	TotalLights      int32 `json:"total_lights"`
	TotalDarks       int32 `json:"total_darks"`
	Loaded           int32 `json:"loaded"`
	Loading          int32 `json:"loading"`
	Merged           int32 `json:"merged"`
	Merging          int32 `json:"merging"`
	Aborted          bool  `json:"aborted"`
	Finished         bool  `json:"finished"`
}

// ProcessingStatus tracks one merge invocation's load/merge counters, its
// abort flag, and the per-path result map, pushing a snapshot to an
// optional observer every EmitInterval until Finish or Abort is called.
type ProcessingStatus struct {
	totalLights, totalDarks int32
	loaded, loading         int32
	merged, merging         int32
	aborted                 int32
	finished                int32

	mu      sync.Mutex
	results map[string]ImageResult

	observer Observer
	event    string
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewProcessingStatus constructs a status for a merge over the given
// light/dark counts. If observer is non-nil, an emitter goroutine begins
// immediately and keeps running, at EmitInterval cadence, until Finish or
// Abort makes Done() true, at which point it pushes one final snapshot and
// exits.
func NewProcessingStatus(totalLights, totalDarks int32, observer Observer) *ProcessingStatus {
	s := &ProcessingStatus{
		totalLights: totalLights,
		totalDarks:  totalDarks,
		results:     make(map[string]ImageResult),
		observer:    observer,
		event:       "processing_state_change",
		stop:        make(chan struct{}),
	}
	if observer != nil {
		s.wg.Add(1)
		go s.emitLoop()
	}
	return s
}

func (s *ProcessingStatus) emitLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(EmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.push()
			if s.Done() {
				s.push()
				return
			}
		case <-s.stop:
			s.push()
			return
		}
	}
}

func (s *ProcessingStatus) push() {
	snap := s.JSON()
	buf, err := json.Marshal(snap)
	if err != nil {
		nlog.Errorf("status: marshal snapshot: %v", err)
		return
	}
	s.observer.Emit(s.event, buf)
}

// StartLoading marks one load as in flight, skipping (returning false) if
// the status has already aborted.
func (s *ProcessingStatus) StartLoading() bool {
	if s.Aborted() {
		return false
	}
	atomic.AddInt32(&s.loading, 1)
	return true
}

// FinishLoading marks one load as complete, whether it succeeded or not.
func (s *ProcessingStatus) FinishLoading(path string, err error) {
	atomic.AddInt32(&s.loading, -1)
	atomic.AddInt32(&s.loaded, 1)
	s.record(path, err)
}

// StartMerging marks one merge as in flight, skipping if already aborted.
func (s *ProcessingStatus) StartMerging() bool {
	if s.Aborted() {
		return false
	}
	atomic.AddInt32(&s.merging, 1)
	return true
}

// FinishMerging marks one merge as complete.
func (s *ProcessingStatus) FinishMerging(err error) {
	atomic.AddInt32(&s.merging, -1)
	atomic.AddInt32(&s.merged, 1)
	if err != nil {
		s.record("", err)
	}
}

func (s *ProcessingStatus) record(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.results[path] = ImageResult{Path: path, OK: false, Message: err.Error()}
	} else {
		s.results[path] = ImageResult{Path: path, OK: true}
	}
}

// Results returns a snapshot copy of the per-path result map.
func (s *ProcessingStatus) Results() map[string]ImageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ImageResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

// Abort sets the monotonic abort flag. Once set, it is never cleared.
func (s *ProcessingStatus) Abort() {
	atomic.StoreInt32(&s.aborted, 1)
}

// Aborted reports whether Abort has ever been called.
func (s *ProcessingStatus) Aborted() bool {
	return atomic.LoadInt32(&s.aborted) != 0
}

// Finish marks the invocation as complete, stopping the emitter after one
// final push.
func (s *ProcessingStatus) Finish() {
	atomic.StoreInt32(&s.finished, 1)
	s.stopEmitter()
}

// Finished reports whether Finish has been called.
func (s *ProcessingStatus) Finished() bool {
	return atomic.LoadInt32(&s.finished) != 0
}

// Done reports whether the invocation has finished or aborted, the
// condition under which the emitter loop exits.
func (s *ProcessingStatus) Done() bool {
	return s.Finished() || s.Aborted()
}

func (s *ProcessingStatus) stopEmitter() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.wg.Wait()
}

// JSON returns the current counters as a Snapshot.
func (s *ProcessingStatus) JSON() Snapshot {
	return Snapshot{
		TotalLights: s.totalLights,
		TotalDarks:  s.totalDarks,
		Loaded:      atomic.LoadInt32(&s.loaded),
		Loading:     atomic.LoadInt32(&s.loading),
		Merged:      atomic.LoadInt32(&s.merged),
		Merging:     atomic.LoadInt32(&s.merging),
		Aborted:     s.Aborted(),
		Finished:    s.Finished(),
	}
}

// InfoLoadingStatus tracks the metadata-preload phase: one counter pair
// (total/loaded) over a candidate file list, plus the same abort/observer
// machinery as ProcessingStatus. It is a distinct type, not a type alias,
// because its event name and counter shape differ from the merge phase's.
type InfoLoadingStatus struct {
	total, loaded int32
	aborted       int32
	finished      int32

	mu      sync.Mutex
	results map[string]ImageResult

	observer Observer
	ref      string
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewInfoLoadingStatus constructs a status for preloading metadata over
// `total` candidate files. ref names this preload run for the observer
// event name ("loaded_image_info_<ref>").
func NewInfoLoadingStatus(total int32, ref string, observer Observer) *InfoLoadingStatus {
	s := &InfoLoadingStatus{
		total:    total,
		results:  make(map[string]ImageResult),
		observer: observer,
		ref:      ref,
		stop:     make(chan struct{}),
	}
	if observer != nil {
		s.wg.Add(1)
		go s.emitLoop()
	}
	return s
}

func (s *InfoLoadingStatus) emitLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(EmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.push()
			if s.Done() {
				s.push()
				return
			}
		case <-s.stop:
			s.push()
			return
		}
	}
}

func (s *InfoLoadingStatus) push() {
	snap := s.JSON()
	buf, err := json.Marshal(snap)
	if err != nil {
		nlog.Errorf("status: marshal snapshot: %v", err)
		return
	}
	s.observer.Emit("loaded_image_info_"+s.ref, buf)
}

// StartLoading reports whether a metadata load may start: false once the
// run has been aborted. It keeps no in-flight count.
func (s *InfoLoadingStatus) StartLoading() bool {
	if s.Aborted() {
		return false
	}
	return true
}

// FinishLoading records one metadata load's outcome and advances the counter.
func (s *InfoLoadingStatus) FinishLoading(path string, err error) {
	atomic.AddInt32(&s.loaded, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.results[path] = ImageResult{Path: path, OK: false, Message: err.Error()}
	} else {
		s.results[path] = ImageResult{Path: path, OK: true}
	}
}

// Results returns a snapshot copy of the per-path result map.
func (s *InfoLoadingStatus) Results() map[string]ImageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ImageResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

func (s *InfoLoadingStatus) Abort()           { atomic.StoreInt32(&s.aborted, 1) }
func (s *InfoLoadingStatus) Aborted() bool    { return atomic.LoadInt32(&s.aborted) != 0 }
func (s *InfoLoadingStatus) Finished() bool   { return atomic.LoadInt32(&s.finished) != 0 }
func (s *InfoLoadingStatus) Done() bool       { return s.Finished() || s.Aborted() }

func (s *InfoLoadingStatus) Finish() {
	atomic.StoreInt32(&s.finished, 1)
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.wg.Wait()
}

// JSON returns the current counters.
func (s *InfoLoadingStatus) JSON() struct {
	Total    int32 `json:"total"`
	Loaded   int32 `json:"loaded"`
	Aborted  bool  `json:"aborted"`
	Finished bool  `json:"finished"`
} {
	return struct {
		Total    int32 `json:"total"`
		Loaded   int32 `json:"loaded"`
		Aborted  bool  `json:"aborted"`
		Finished bool  `json:"finished"`
	}{
		Total:    s.total,
		Loaded:   atomic.LoadInt32(&s.loaded),
		Aborted:  s.Aborted(),
		Finished: s.Finished(),
	}
}
