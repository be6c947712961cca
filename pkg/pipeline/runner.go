package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/reqlens/pkg/blackboard"
	"github.com/zen-systems/reqlens/pkg/config"
	"github.com/zen-systems/reqlens/pkg/evidence"
	"github.com/zen-systems/reqlens/pkg/oracle"
	"github.com/zen-systems/reqlens/pkg/scenario"
)

// RunOptions configures pipeline execution.
type RunOptions struct {
	// Input is the document path. With Content set it only names the
	// document.
	Input   string
	Content []byte
	Oracles Oracles
	// Analysis is the base analysis configuration; the manifest's
	// analysis section overrides it field by field.
	Analysis     config.AnalysisConfig
	Tracker      *oracle.CostTracker
	EvidenceDir  string
	PipelinePath string
	MaxPasses    int
	Logger       *zap.Logger
}

// RunResult captures pipeline outputs.
type RunResult struct {
	RunID       string
	EvidenceDir string
	Result      scenario.ProcessingResult
	Stats       blackboard.Stats
}

// Run executes the manifest against one document. Evidence is written
// when opts.EvidenceDir is set, including for failed runs.
func Run(ctx context.Context, m *Manifest, opts RunOptions) (*RunResult, error) {
	if m == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if opts.Input == "" {
		return nil, fmt.Errorf("input is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	data := opts.Content
	if data == nil {
		var err error
		if data, err = os.ReadFile(opts.Input); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}

	rec, err := newRecorder(opts.EvidenceDir)
	if err != nil {
		return nil, err
	}

	sources, err := Build(m, BuildOptions{
		Oracles:  opts.Oracles,
		Analysis: opts.Analysis,
		Logger:   logger,
		Observer: rec.oracleCall,
	})
	if err != nil {
		return nil, err
	}

	runID := evidence.NewRunID()
	if rec != nil {
		runID = filepath.Base(rec.writer.RunDir())
	}
	logger = logger.With(zap.String("run_id", runID), zap.String("pipeline", m.Name))

	controller := blackboard.NewController(sources,
		blackboard.WithLogger(logger),
		blackboard.WithMaxPasses(opts.MaxPasses),
		blackboard.WithObserver(rec.firing),
	)

	start := time.Now()
	board := blackboard.ForContent(opts.Input, data)
	stats, runErr := controller.Run(ctx, board)
	result, _ := board.Result.Get()

	logger.Info("pipeline finished",
		zap.Int("passes", stats.Passes),
		zap.Strings("fired", stats.Fired),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("degraded", result.Degraded()),
		zap.Error(runErr))

	out := &RunResult{RunID: runID, Result: result, Stats: stats}
	if rec != nil {
		out.EvidenceDir = rec.writer.RunDir()
		record := evidence.RunRecord{
			ID:           runID,
			Timestamp:    start.UTC(),
			Pipeline:     m.Name,
			PipelineFile: opts.PipelinePath,
			Inputs: []evidence.InputRecord{{
				Name:  opts.Input,
				Hash:  evidence.HashBytes(data),
				Bytes: len(data),
			}},
			Passes:       stats.Passes,
			Fired:        stats.Fired,
			Degraded:     result.Degraded(),
			ToolVersions: map[string]string{"go": runtime.Version()},
		}
		if opts.Tracker != nil {
			record.CostReport = opts.Tracker.Report()
		}
		if runErr != nil {
			record.Error = runErr.Error()
		}
		if err := rec.finish(record, board); err != nil {
			return out, err
		}
	}

	if runErr != nil {
		return out, runErr
	}
	if !board.Result.IsSet() {
		return out, fmt.Errorf("pipeline %s finished without a result", m.Name)
	}
	return out, nil
}

// recorder writes evidence as the run progresses. A nil recorder
// discards everything.
type recorder struct {
	writer *evidence.Writer

	mu      sync.Mutex
	calls   []evidence.OracleCallRecord
	firings int
	err     error
}

func newRecorder(baseDir string) (*recorder, error) {
	if baseDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	w, err := evidence.NewWriter(baseDir, evidence.NewRunID())
	if err != nil {
		return nil, err
	}
	return &recorder{writer: w}, nil
}

// oracleCall may be invoked from concurrent analyzer calls.
func (r *recorder) oracleCall(c oracle.Call) {
	if r == nil {
		return
	}
	record := evidence.OracleCallRecord{
		Task:           c.Task,
		Adapter:        c.Completion.Adapter,
		Model:          c.Completion.Model,
		Synthetic:      c.Completion.Synthetic,
		DurationMillis: c.Duration.Milliseconds(),
	}
	if c.Err != nil {
		record.Error = c.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if record.PromptRef, record.PromptHash, err = r.writer.WriteBlob("prompt", []byte(c.Prompt)); err != nil {
		r.setErr(err)
	}
	if c.Err == nil {
		if record.ResponseRef, record.ResponseHash, err = r.writer.WriteBlob("response", []byte(c.Completion.Text)); err != nil {
			r.setErr(err)
		}
	}
	r.calls = append(r.calls, record)
}

func (r *recorder) firing(f blackboard.Firing) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.firings++
	record := evidence.SourceRecord{
		Index:          r.firings,
		Name:           f.Source,
		Pass:           f.Pass,
		DurationMillis: f.Duration.Milliseconds(),
	}
	for _, k := range f.Wrote {
		record.Wrote = append(record.Wrote, string(k))
	}
	if f.Err != nil {
		record.Error = f.Err.Error()
	}
	if err := r.writer.WriteSource(record); err != nil {
		r.setErr(err)
	}
}

func (r *recorder) setErr(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("write evidence: %w", err)
	}
}

func (r *recorder) finish(record evidence.RunRecord, board *blackboard.Board) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.WriteRun(record); err != nil {
		return err
	}
	if err := r.writer.WriteOracleLog(evidence.OracleLog{Calls: r.calls, Cost: record.CostReport}); err != nil {
		return err
	}
	if res, ok := board.Result.Get(); ok {
		if err := r.writer.WriteResult(res); err != nil {
			return err
		}
	}
	return r.err
}
