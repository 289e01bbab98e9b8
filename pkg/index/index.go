// Package index owns the clone index: the generalized suffix tree of every
// indexed SourceUnit and the set of entities already indexed. Both live on a
// single worker goroutine; callers reach them only by sending it closures, so
// the tree is never observed mid-mutation.
package index

import (
	"context"
	"errors"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/klone/pkg/models"
	"github.com/panbanda/klone/pkg/suffixtree"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("index closed")

// State is the worker-owned index content. It is only valid inside the
// closure it was passed to.
type State struct {
	tree      *suffixtree.Tree[models.Token]
	units     []models.SourceUnit
	processed map[models.Mode]*roaring.Bitmap
	logger    *slog.Logger
}

// Tree returns the suffix tree.
func (s *State) Tree() *suffixtree.Tree[models.Token] { return s.tree }

// Unit returns the SourceUnit stored as sequence id.
func (s *State) Unit(id int) (models.SourceUnit, bool) {
	if id < 0 || id >= len(s.units) {
		return models.SourceUnit{}, false
	}
	return s.units[id], true
}

// Units returns the number of indexed units.
func (s *State) Units() int { return len(s.units) }

// IsProcessed reports whether key was marked processed.
func (s *State) IsProcessed(key models.ProcessedKey) bool {
	bm, ok := s.processed[key.Mode]
	return ok && key.ID >= 0 && bm.Contains(uint32(key.ID))
}

// Processed returns the processed ids of mode in ascending order.
func (s *State) Processed(mode models.Mode) []int {
	bm, ok := s.processed[mode]
	if !ok {
		return nil
	}
	out := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

func (s *State) markProcessed(key models.ProcessedKey) {
	bm, ok := s.processed[key.Mode]
	if !ok {
		bm = roaring.New()
		s.processed[key.Mode] = bm
	}
	bm.Add(uint32(key.ID))
}

func (s *State) addUnit(u models.SourceUnit) error {
	if _, err := s.tree.AddSequence(u.Tokens); err != nil {
		return err
	}
	s.units = append(s.units, u)
	return nil
}

// Stats summarizes the index.
type Stats struct {
	Units                int `json:"units"`
	Tokens               int `json:"tokens"`
	ProcessedCourses     int `json:"processed_courses"`
	ProcessedSubmissions int `json:"processed_submissions"`
}

// Index is the handle to the worker goroutine.
type Index struct {
	ops    chan func(*State)
	quit   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// New starts the index worker. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{
		ops:    make(chan func(*State)),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	st := &State{
		tree:      suffixtree.New[models.Token](),
		processed: make(map[models.Mode]*roaring.Bitmap),
		logger:    logger,
	}
	go ix.loop(st)
	return ix
}

func (ix *Index) loop(st *State) {
	defer close(ix.done)
	for {
		select {
		case op := <-ix.ops:
			op(st)
		case <-ix.quit:
			return
		}
	}
}

// Close stops the worker. Pending calls return ErrClosed.
func (ix *Index) Close() {
	select {
	case <-ix.quit:
	default:
		close(ix.quit)
	}
	<-ix.done
}

// do runs fn on the worker and waits for it to return.
func (ix *Index) do(ctx context.Context, fn func(*State)) error {
	finished := make(chan struct{})
	op := func(st *State) {
		defer close(finished)
		fn(st)
	}
	select {
	case ix.ops <- op:
	case <-ix.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	// Once accepted the op runs to completion; waiting keeps fn's writes
	// visible to the caller.
	<-finished
	return nil
}

// View runs fn with exclusive access to the index state.
func (ix *Index) View(ctx context.Context, fn func(*State)) error {
	return ix.do(ctx, fn)
}

// AddUnits appends units to the suffix tree. Units too short to index are
// skipped and logged. It returns the number of units added.
func (ix *Index) AddUnits(ctx context.Context, units []models.SourceUnit) (int, error) {
	added := 0
	err := ix.do(ctx, func(st *State) {
		for _, u := range units {
			if err := st.addUnit(u); err != nil {
				st.logger.Debug("skipping unit", "file", u.File, "function", u.FunctionName, "error", err)
				continue
			}
			added++
		}
	})
	return added, err
}

// Ingest appends the units of key and marks it processed in one step, so a
// canceled caller never leaves an entity half indexed. An entity that is
// already processed is left alone and reported with skipped set.
func (ix *Index) Ingest(ctx context.Context, key models.ProcessedKey, units []models.SourceUnit) (added int, skipped bool, err error) {
	if key.ID < 0 {
		return 0, false, errors.New("negative entity id")
	}
	err = ix.do(ctx, func(st *State) {
		if st.IsProcessed(key) {
			skipped = true
			return
		}
		for _, u := range units {
			if err := st.addUnit(u); err != nil {
				st.logger.Debug("skipping unit", "entity", key.String(), "file", u.File, "function", u.FunctionName, "error", err)
				continue
			}
			added++
		}
		st.markProcessed(key)
	})
	return added, skipped, err
}

// MarkProcessed records that key has been fully indexed.
func (ix *Index) MarkProcessed(ctx context.Context, key models.ProcessedKey) error {
	if key.ID < 0 {
		return errors.New("negative entity id")
	}
	return ix.do(ctx, func(st *State) { st.markProcessed(key) })
}

// IsProcessed reports whether key has been fully indexed.
func (ix *Index) IsProcessed(ctx context.Context, key models.ProcessedKey) (bool, error) {
	var ok bool
	err := ix.do(ctx, func(st *State) { ok = st.IsProcessed(key) })
	return ok, err
}

// Stats returns index counters.
func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := ix.do(ctx, func(st *State) {
		s.Units = len(st.units)
		for _, u := range st.units {
			s.Tokens += len(u.Tokens)
		}
		if bm, ok := st.processed[models.ModeCourse]; ok {
			s.ProcessedCourses = int(bm.GetCardinality())
		}
		if bm, ok := st.processed[models.ModeSubmission]; ok {
			s.ProcessedSubmissions = int(bm.GetCardinality())
		}
	})
	return s, err
}
