// Package pipeline runs function merging over module files. Files are
// independent; each one gets its own goroutine, its own module and its own
// merge run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"funcmerge/internal/ir"
	"funcmerge/internal/mergefunc"
	"funcmerge/internal/observ"
	"funcmerge/internal/trace"
)

// Request configures a pipeline run.
type Request struct {
	Files []string
	// Jobs bounds the number of files processed at once. <= 0 means
	// GOMAXPROCS.
	Jobs        int
	Merge       mergefunc.Options
	SimplifyCFG bool
	// Format is the output format passed to WriteModule.
	Format string
	// Output opens the destination for a merged file. Nil skips emitting.
	Output   func(file string) (io.WriteCloser, error)
	Progress ProgressSink
	Timer    *observ.Timer
}

// FileResult is the outcome for one file. Err is set when any stage failed;
// the other fields then describe how far the file got.
type FileResult struct {
	File   string
	Result mergefunc.Result
	// Before and After count function definitions around the merge.
	Before int
	After  int
	Err    error
}

// Run processes every file of req. One file failing does not stop the
// others; the returned error joins all per-file errors and is nil only if
// every file succeeded. Cancelling ctx stops files that have not started.
func Run(ctx context.Context, req *Request) ([]FileResult, error) {
	if req == nil {
		return nil, fmt.Errorf("missing pipeline request")
	}
	emitQueued(req.Progress, req.Files)

	results := make([]FileResult, len(req.Files))
	err := forEachFile(ctx, req.Files, req.Jobs, func(ctx context.Context, i int, path string) {
		results[i] = runFile(ctx, req, path)
	})

	errs := []error{err}
	for _, res := range results {
		errs = append(errs, res.Err)
	}
	return results, errors.Join(errs...)
}

// forEachFile calls fn for every file with at most jobs calls in flight. It
// returns the context error if ctx was cancelled before all files started.
func forEachFile(ctx context.Context, files []string, jobs int, fn func(ctx context.Context, i int, path string)) error {
	if len(files) == 0 {
		return nil
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(files)))
	for i, path := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			// results are indexed by i, so no locking is needed
			fn(gctx, i, path)
			return nil
		})
	}
	return g.Wait()
}

// fileRun carries the per-file state through the stages.
type fileRun struct {
	req   *Request
	path  string
	start time.Time
}

func (fr *fileRun) stage(stage Stage, fn func() error) error {
	emit(fr.req.Progress, Event{File: fr.path, Stage: stage, Status: StatusWorking})
	err := fr.req.Timer.Track(string(stage), fn)
	if err != nil {
		emit(fr.req.Progress, Event{File: fr.path, Stage: stage, Status: StatusError, Err: err, Elapsed: time.Since(fr.start)})
	}
	return err
}

func runFile(ctx context.Context, req *Request, path string) (res FileResult) {
	res.File = path
	ctx, span := trace.StartSpan(ctx, trace.ScopePass, "file")
	defer func() {
		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		span.WithExtra("before", strconv.Itoa(res.Before)).
			WithExtra("after", strconv.Itoa(res.After)).
			End(fmt.Sprintf("%s: %s", path, status))
	}()

	fr := &fileRun{req: req, path: path, start: time.Now()}
	var m *ir.Module
	steps := []struct {
		stage Stage
		skip  bool
		fn    func() error
	}{
		{StageLoad, false, func() (err error) {
			m, err = LoadModule(path)
			return err
		}},
		{StageValidate, false, func() error {
			if err := ir.Validate(m); err != nil {
				return fmt.Errorf("%s: invalid input module: %w", path, err)
			}
			res.Before = len(m.Definitions())
			return nil
		}},
		{StageSimplify, !req.SimplifyCFG, func() error {
			for _, f := range m.Definitions() {
				ir.SimplifyCFG(f)
			}
			return nil
		}},
		{StageMerge, false, func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Result = mergefunc.New(req.Merge).Run(ctx, m)
			res.After = len(m.Definitions())
			return nil
		}},
		{StageValidate, false, func() error {
			if err := ir.Validate(m); err != nil {
				return fmt.Errorf("%s: merged module is invalid: %w", path, err)
			}
			return nil
		}},
		{StageEmit, req.Output == nil, func() error {
			return emitModule(req, path, m)
		}},
	}
	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := fr.stage(step.stage, step.fn); err != nil {
			res.Err = err
			return res
		}
	}
	emit(req.Progress, Event{File: path, Stage: StageEmit, Status: StatusDone, Elapsed: time.Since(fr.start)})
	return res
}

// Aborter is implemented by outputs that can throw away what was written
// to them. emitModule aborts instead of closing when the write fails.
type Aborter interface {
	Abort() error
}

func emitModule(req *Request, path string, m *ir.Module) error {
	w, err := req.Output(path)
	if err != nil {
		return fmt.Errorf("%s: failed to open output: %w", path, err)
	}
	if err := WriteModule(w, m, req.Format); err != nil {
		werr := fmt.Errorf("%s: failed to write output: %w", path, err)
		if a, ok := w.(Aborter); ok {
			return errors.Join(werr, a.Abort())
		}
		return errors.Join(werr, w.Close())
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: failed to close output: %w", path, err)
	}
	return nil
}
