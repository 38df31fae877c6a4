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

// Package scheduler is the Merge Scheduler (§4.1): the only component with
// concurrency. It turns a lights/darks path list and a mode into a single
// merged rawimage.Image by fanning the load across a worker pool sized to
// the host's hardware threads (mirroring the teacher's own cpuid-driven
// pool sizing), then tree-reducing the resulting frame.Frames with a
// partitioned (Light, Dark) accumulator pair so an in-tree Light-meets-Dark
// merge never has to happen mid-reduction.
package scheduler

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/klauspost/cpuid"
	"golang.org/x/sync/errgroup"

	"github.com/hoxca-collective/nightrail/internal/darksub"
	"github.com/hoxca-collective/nightrail/internal/frame"
	"github.com/hoxca-collective/nightrail/internal/merrors"
	"github.com/hoxca-collective/nightrail/internal/rawimage"
	"github.com/hoxca-collective/nightrail/internal/rawio"
	"github.com/hoxca-collective/nightrail/internal/status"
)

// Mode selects the intensity schedule applied to lights at load time
// (Table M1). Darks are always loaded at intensity 1.0 regardless of mode.
type Mode int

const (
	Normal Mode = iota
	Falling
	Rising
)

// ParseMode is the lenient parser used by the JSON/RPC surface: unknown
// strings fall through to Normal rather than erroring, matching the
// original source's own fallthrough (see SPEC_FULL.md's Open Question
// decision on unknown mode strings). The CLI layer uses a strict cobra enum
// instead and must not call this for user-facing validation.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "falling":
		return Falling
	case "rising":
		return Rising
	default:
		return Normal
	}
}

// LoadTask is one unit of work for the parallel map phase: Kind tags
// whether path is a light (at the given 0-based index within the lights
// list, which determines its intensity under Falling/Rising) or a dark.
type LoadTask struct {
	Kind  frame.Kind
	Index int // meaningful only when Kind == frame.Light
	Path  string
}

// intensity implements Table M1.
func intensity(mode Mode, kind frame.Kind, index int, totalLights int) float64 {
	if kind != frame.Light || mode == Normal || totalLights == 0 {
		return 1.0
	}
	frac := float64(index) / float64(totalLights)
	if mode == Falling {
		return 1.0 - frac
	}
	return frac
}

// buildTasks enumerates lights to LoadTask{Light(i), path} then appends each
// dark as LoadTask{Dark, path}, per §4.1.
func buildTasks(lights, darks []string) []LoadTask {
	tasks := make([]LoadTask, 0, len(lights)+len(darks))
	for i, p := range lights {
		tasks = append(tasks, LoadTask{Kind: frame.Light, Index: i, Path: p})
	}
	for _, p := range darks {
		tasks = append(tasks, LoadTask{Kind: frame.Dark, Path: p})
	}
	return tasks
}

// estimatedWorkerBytes is a conservative per-in-flight-image memory estimate
// used to cap the worker pool against a memory budget: the largest RAW the
// spec names is ~50 MP at 16-bit (100 MB), times a factor of 3 for the
// buffers alive around one in-flight task (the decoded source, its
// intensity-scaled copy, and the frame it merges into), the same per-image
// accounting the teacher's batch.go runs against pbnjay/memory.TotalMemory()
// before picking a batch size.
const estimatedWorkerBytes = 50_000_000 * 2 * 3

// workerOverride pins WorkerCount to a fixed width (config's
// processing.parallel_jobs) instead of auto-detecting from cpuid; 0 means
// "no override, auto-detect".
var workerOverride int32

// memoryBudgetMiB caps WorkerCount so no more than this many MiB of RAW
// buffers are estimated resident at once (config's
// processing.memory_budget_mib); 0 means "unbounded".
var memoryBudgetMiB int32

// SetWorkerOverride pins the worker pool width to n, bypassing cpuid
// auto-detection. Passing n <= 0 restores auto-detection.
func SetWorkerOverride(n int) { atomic.StoreInt32(&workerOverride, int32(n)) }

// SetMemoryBudgetMiB caps the worker pool width by estimatedWorkerBytes so
// the fan-out doesn't hold more RAW buffers in memory at once than budgetMiB
// allows. Passing budgetMiB <= 0 removes the cap.
func SetMemoryBudgetMiB(budgetMiB int) { atomic.StoreInt32(&memoryBudgetMiB, int32(budgetMiB)) }

// WorkerCount returns the parallel fan-out width: workerOverride if set,
// otherwise the number of logical CPUs cpuid reports (the same sizing
// signal the teacher's stacking commands use to avoid oversubscribing
// hyperthreads), further capped by memoryBudgetMiB if one was configured.
func WorkerCount() int {
	n := int(atomic.LoadInt32(&workerOverride))
	if n <= 0 {
		n = cpuid.CPU.LogicalCores
		if n < 1 {
			n = 1
		}
	}

	if budget := int(atomic.LoadInt32(&memoryBudgetMiB)); budget > 0 {
		byBudget := (budget * 1024 * 1024) / estimatedWorkerBytes
		if byBudget < 1 {
			byBudget = 1
		}
		if byBudget < n {
			n = byBudget
		}
	}

	return n
}

// accumulator is the partitioned reduction state: an optional running
// Light frame and an optional running Dark frame, combined independently
// (Option b from §4.1/§9). Merging two accumulators merges like with like.
type accumulator struct {
	light *frame.Frame
	dark  *frame.Frame
}

func (acc accumulator) merge(other accumulator) (accumulator, error) {
	out := accumulator{light: acc.light, dark: acc.dark}

	if other.light != nil {
		if out.light == nil {
			out.light = other.light
		} else {
			merged, err := frame.Merge(*out.light, *other.light)
			if err != nil {
				return accumulator{}, err
			}
			out.light = &merged
		}
	}
	if other.dark != nil {
		if out.dark == nil {
			out.dark = other.dark
		} else {
			merged, err := frame.Merge(*out.dark, *other.dark)
			if err != nil {
				return accumulator{}, err
			}
			out.dark = &merged
		}
	}
	return out, nil
}

func singleton(f frame.Frame) accumulator {
	switch f.Kind {
	case frame.Light:
		return accumulator{light: &f}
	case frame.Dark:
		return accumulator{dark: &f}
	default:
		return accumulator{}
	}
}

// RunMerge executes the full scheduler: parallel load, tree-reduction, and
// (if a dark-stack resulted) a final darkframe subtraction. st may be nil.
func RunMerge(ctx context.Context, lights, darks []string, mode Mode, st *status.ProcessingStatus) (*rawimage.Image, error) {
	tasks := buildTasks(lights, darks)
	totalLights := len(lights)

	frames := make([]frame.Frame, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, WorkerCount())

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			if st != nil && st.Aborted() {
				frames[i] = frame.NewIdentity()
				return nil
			}

			w := intensity(mode, task.Kind, task.Index, totalLights)
			img, err := rawio.Load(task.Path, w, st)
			if err != nil {
				if st != nil {
					st.Abort()
				}
				return err
			}

			switch task.Kind {
			case frame.Light:
				frames[i] = frame.FromLight(img)
			case frame.Dark:
				frames[i] = frame.FromDark(img)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if st != nil {
			st.Abort()
		}
		return nil, err
	}

	if st != nil && st.Aborted() {
		return nil, &merrors.AbortedErr{}
	}

	acc, err := reduceTree(frames, st)
	if err != nil {
		if st != nil {
			st.Abort()
		}
		return nil, err
	}

	result, err := finalize(acc)
	if st != nil {
		if err != nil {
			st.Abort()
		}
		st.Finish()
	}
	return result, err
}

// reduceTree combines all frames via balanced pairwise merges, tracked as
// an accumulator pair throughout so a Light-meets-Dark pairing never has to
// invoke frame.Merge directly (which would error as a KindMismatchErr).
func reduceTree(frames []frame.Frame, st *status.ProcessingStatus) (accumulator, error) {
	accs := make([]accumulator, len(frames))
	for i, f := range frames {
		accs[i] = singleton(f)
	}

	for len(accs) > 1 {
		next := make([]accumulator, 0, (len(accs)+1)/2)
		for i := 0; i+1 < len(accs); i += 2 {
			if st != nil && !st.StartMerging() {
				return accumulator{}, &merrors.AbortedErr{}
			}
			merged, err := accs[i].merge(accs[i+1])
			if st != nil {
				st.FinishMerging(err)
			}
			if err != nil {
				return accumulator{}, err
			}
			next = append(next, merged)
		}
		if len(accs)%2 == 1 {
			next = append(next, accs[len(accs)-1])
		}
		accs = next
	}
	if len(accs) == 0 {
		return accumulator{}, nil
	}
	return accs[0], nil
}

// finalize applies the Darkframe Subtractor when both a light-stack and a
// dark-stack survived the reduction; otherwise the light-stack alone is the
// result.
func finalize(acc accumulator) (*rawimage.Image, error) {
	if acc.light == nil {
		return nil, &merrors.DecodeFailedErr{Path: "", Cause: errNoLights}
	}
	if acc.dark == nil {
		return acc.light.Image, nil
	}
	return darksub.Subtract(acc.light.Image, acc.dark.Image)
}

var errNoLights = noLightsErr{}

type noLightsErr struct{}

func (noLightsErr) Error() string { return "scheduler: no light frames supplied" }

// RunInfoPreload drives the metadata-only preload path original_source's
// frontend.rs::load_image_infos performs ahead of a real merge: one
// rawio.LoadCandidate call per path, fanned out across the same
// WorkerCount-wide pool RunMerge uses, reporting through st (which may be
// nil). A single path's failure does not abort the run; it is recorded in
// st's result map the way InfoLoadingStatus intends callers to inspect
// per-file outcomes rather than fail the whole preload.
func RunInfoPreload(ctx context.Context, paths []string, st *status.InfoLoadingStatus) ([]rawio.Candidate, error) {
	candidates := make([]rawio.Candidate, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, WorkerCount())

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			if st != nil && !st.StartLoading() {
				return &merrors.AbortedErr{}
			}

			c, err := rawio.LoadCandidate(path)
			if st != nil {
				st.FinishLoading(path, err)
			}
			if err != nil {
				return nil
			}
			candidates[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if st != nil {
			st.Abort()
		}
		return nil, err
	}

	if st != nil {
		st.Finish()
	}
	return candidates, nil
}
