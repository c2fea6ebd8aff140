package search

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

var ErrClosed = errors.New("search engine closed")

type Engine interface {
	Index(ctx context.Context, doc AlertDoc) error
	IndexBatch(ctx context.Context, docs []AlertDoc) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, req Query) (Result, error)
	Count() (uint64, error)
	Close() error
}

type bleveEngine struct {
	cfg    Config
	index  bleve.Index
	mu     sync.RWMutex
	closed bool
}

// New opens the index at cfg.IndexPath, creating it if missing. An empty path
// builds an in-memory index.
func New(cfg Config, m mapping.IndexMapping) (Engine, error) {
	if m == nil {
		m = BuildIndexMapping()
	}
	be := &bleveEngine{cfg: cfg}

	var (
		idx bleve.Index
		err error
	)
	switch {
	case strings.TrimSpace(cfg.IndexPath) == "":
		idx, err = bleve.NewMemOnly(m)
	default:
		if _, statErr := os.Stat(cfg.IndexPath); statErr == nil {
			idx, err = bleve.Open(cfg.IndexPath)
		} else if os.IsNotExist(statErr) {
			idx, err = bleve.New(cfg.IndexPath, m)
		} else {
			err = statErr
		}
	}
	if err != nil {
		return nil, err
	}
	be.index = idx
	return be, nil
}

func (e *bleveEngine) guard() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

func (e *bleveEngine) withDeadline(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	c, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	ch := make(chan error, 1)
	go func() { ch <- fn(c) }()
	select {
	case <-c.Done():
		return c.Err()
	case err := <-ch:
		return err
	}
}

func (e *bleveEngine) Index(ctx context.Context, doc AlertDoc) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.withDeadline(ctx, e.cfg.QueryTimeout, func(context.Context) error {
		return e.index.Index(doc.ID, docFields(doc))
	})
}

func (e *bleveEngine) IndexBatch(ctx context.Context, docs []AlertDoc) error {
	if err := e.guard(); err != nil {
		return err
	}
	bs := e.cfg.BatchSize
	if bs <= 0 {
		bs = 200
	}
	for i := 0; i < len(docs); i += bs {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + bs
		if end > len(docs) {
			end = len(docs)
		}
		b := e.index.NewBatch()
		for _, d := range docs[i:end] {
			if err := b.Index(d.ID, docFields(d)); err != nil {
				return err
			}
		}
		if err := e.index.Batch(b); err != nil {
			return err
		}
	}
	return nil
}

func (e *bleveEngine) Delete(ctx context.Context, id string) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.withDeadline(ctx, e.cfg.QueryTimeout, func(context.Context) error {
		return e.index.Delete(id)
	})
}

func (e *bleveEngine) Search(ctx context.Context, req Query) (Result, error) {
	if err := e.guard(); err != nil {
		return Result{}, err
	}

	sr := bleve.NewSearchRequest(buildQuery(req))
	if req.Size <= 0 || req.Size > 200 {
		req.Size = 50
	}
	if req.From < 0 {
		req.From = 0
	}
	sr.Size = req.Size
	sr.From = req.From
	// relevance first for text queries, otherwise newest first
	if strings.TrimSpace(req.Text) != "" {
		sr.SortBy([]string{"-_score", "-createdAt"})
	} else {
		sr.SortBy([]string{"-createdAt", "_id"})
	}

	var res *bleve.SearchResult
	err := e.withDeadline(ctx, e.cfg.QueryTimeout, func(ctx context.Context) error {
		r, err := e.index.SearchInContext(ctx, sr)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	out := Result{Total: res.Total, Took: res.Took, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, Hit{ID: h.ID, Score: h.Score})
	}
	return out, nil
}

func (e *bleveEngine) Count() (uint64, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	return e.index.DocCount()
}

func (e *bleveEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.index.Close()
}
