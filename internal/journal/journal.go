// Package journal persists scan and review runs as JSON files. One worker
// goroutine owns every write, rename and delete in the journal directory.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwaldner/wheelhouse/internal/logger"
	"github.com/jwaldner/wheelhouse/internal/models"
	"github.com/jwaldner/wheelhouse/internal/pipeline"
)

const (
	timestampLayout = "20060102_150405"
	// DefaultFilenameFormat names runs <strategy>_<timestamp>_<short id>.json
	DefaultFilenameFormat = "{strategy}_{timestamp}_{id}.json"
	// StrategyReview tags position review runs
	StrategyReview models.Strategy = "review"
)

var (
	ErrNoRuns = errors.New("no journal runs")
	ErrClosed = errors.New("journal closed")
)

// Run is one persisted scan or review
type Run struct {
	ID              string                          `json:"id"`
	Strategy        models.Strategy                 `json:"strategy"`
	Timestamp       time.Time                       `json:"timestamp"`
	Tickers         []string                        `json:"tickers,omitempty"`
	Opportunities   []models.Opportunity            `json:"opportunities,omitempty"`
	Recommendations []models.PositionRecommendation `json:"recommendations,omitempty"`
	Steps           []pipeline.StepReport           `json:"steps,omitempty"`
	Skipped         map[string]int                  `json:"skipped,omitempty"`
}

// Entry summarizes a run without its rows
type Entry struct {
	ID        string          `json:"id"`
	Strategy  models.Strategy `json:"strategy"`
	Timestamp time.Time       `json:"timestamp"`
	Tickers   []string        `json:"tickers,omitempty"`
	Count     int             `json:"count"`
	File      string          `json:"file"`
}

type opKind int

const (
	opSave opKind = iota
	opCleanup
)

type op struct {
	kind     opKind
	run      Run
	keepDays int
	reply    chan opResult
}

type opResult struct {
	path    string
	removed int
	err     error
}

type Journal struct {
	dir    string
	format string
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	ops    chan op
	done   chan struct{}
}

// Open creates dir if needed and starts the writer
func Open(dir, filenameFormat string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	if filenameFormat == "" {
		filenameFormat = DefaultFilenameFormat
	}
	j := &Journal{
		dir:    dir,
		format: filenameFormat,
		now:    time.Now,
		ops:    make(chan op, 16),
		done:   make(chan struct{}),
	}
	go j.worker()
	return j, nil
}

// Close stops the writer after pending operations finish
func (j *Journal) Close() error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.ops)
	}
	j.mu.Unlock()
	<-j.done
	return nil
}

// Filename expands {strategy}, {timestamp} and {id} in a filename template
func Filename(format string, strategy models.Strategy, ts time.Time, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	result := format
	result = strings.ReplaceAll(result, "{strategy}", string(strategy))
	result = strings.ReplaceAll(result, "{timestamp}", ts.Format(timestampLayout))
	result = strings.ReplaceAll(result, "{id}", short)
	return result
}

// Save persists run, assigning an ID and timestamp when missing, and returns the file path
func (j *Journal) Save(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = j.now()
	}
	res, err := j.submit(ctx, op{kind: opSave, run: run})
	if err != nil {
		return "", err
	}
	return res.path, res.err
}

// Cleanup deletes runs older than keepDays and reports how many were removed
func (j *Journal) Cleanup(ctx context.Context, keepDays int) (int, error) {
	res, err := j.submit(ctx, op{kind: opCleanup, keepDays: keepDays})
	if err != nil {
		return 0, err
	}
	return res.removed, res.err
}

func (j *Journal) submit(ctx context.Context, o op) (opResult, error) {
	o.reply = make(chan opResult, 1)

	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return opResult{}, ErrClosed
	}
	select {
	case j.ops <- o:
		j.mu.RUnlock()
	case <-ctx.Done():
		j.mu.RUnlock()
		return opResult{}, ctx.Err()
	}

	select {
	case res := <-o.reply:
		return res, nil
	case <-ctx.Done():
		return opResult{}, ctx.Err()
	}
}

func (j *Journal) worker() {
	defer close(j.done)
	for o := range j.ops {
		switch o.kind {
		case opSave:
			path, err := j.write(o.run)
			if err != nil {
				logger.Warn.Printf("⚠️ JOURNAL: failed to save %s run: %v", o.run.Strategy, err)
			} else {
				logger.Debug.Printf("📝 JOURNAL: saved %s", path)
			}
			o.reply <- opResult{path: path, err: err}
		case opCleanup:
			n, err := j.cleanup(o.keepDays)
			o.reply <- opResult{removed: n, err: err}
		}
	}
}

func (j *Journal) write(run Run) (string, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(j.dir, Filename(j.format, run.Strategy, run.Timestamp, run.ID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func (j *Journal) cleanup(keepDays int) (int, error) {
	runs, err := j.load()
	if err != nil {
		return 0, err
	}
	cutoff := j.now().AddDate(0, 0, -keepDays)
	removed := 0
	for _, r := range runs {
		if !r.run.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		logger.Info.Printf("🧹 JOURNAL: removed %d runs older than %d days", removed, keepDays)
	}
	return removed, nil
}

type stored struct {
	path string
	run  Run
}

// load reads every run, newest first. Unreadable files are skipped.
func (j *Journal) load() ([]stored, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	out := make([]stored, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var r Run
		if err := json.Unmarshal(data, &r); err != nil {
			logger.Debug.Printf("🔍 JOURNAL: skipping %s: %v", m, err)
			continue
		}
		out = append(out, stored{path: m, run: r})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].run.Timestamp.After(out[b].run.Timestamp) })
	return out, nil
}

// List returns run summaries newest first. An empty strategy lists every run.
func (j *Journal) List(strategy models.Strategy) ([]Entry, error) {
	runs, err := j.load()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(runs))
	for _, r := range runs {
		if strategy != "" && r.run.Strategy != strategy {
			continue
		}
		out = append(out, Entry{
			ID:        r.run.ID,
			Strategy:  r.run.Strategy,
			Timestamp: r.run.Timestamp,
			Tickers:   r.run.Tickers,
			Count:     len(r.run.Opportunities) + len(r.run.Recommendations),
			File:      filepath.Base(r.path),
		})
	}
	return out, nil
}

// LoadLatest returns the newest run for strategy, or of any strategy when empty
func (j *Journal) LoadLatest(strategy models.Strategy) (*Run, error) {
	runs, err := j.load()
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if strategy == "" || r.run.Strategy == strategy {
			run := r.run
			return &run, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", strategy, ErrNoRuns)
}
