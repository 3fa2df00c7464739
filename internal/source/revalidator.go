package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"zeptobook/internal/types"
)

type Status uint8

const (
	StatusLoading Status = iota
	StatusError
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Snapshot is what a single render sees of the catalog
type Snapshot struct {
	Status    Status
	Response  *types.CatalogResponse
	Err       error
	FetchedAt time.Time
}

// Revalidator serves the last good response of Source and refreshes it in the background once it is older than TTL.
// Concurrent refreshes are collapsed into one outbound read.
type Revalidator struct {
	Source Source
	Logger *slog.Logger
	// TTL is how long a response is served without revalidation
	TTL time.Duration
	// ErrorHold is how long a failed first load is reported before the next attempt
	ErrorHold time.Duration
	// LoadWait is how long Load blocks for a response that is not there yet
	LoadWait time.Duration
	// FetchTimeout bounds every outbound read, independent of the requests waiting for it
	FetchTimeout time.Duration
	Now          func() time.Time

	group singleflight.Group
	wg    sync.WaitGroup

	mu        sync.Mutex
	resp      *types.CatalogResponse
	fetchedAt time.Time
	err       error
	failedAt  time.Time
}

func NewRevalidator(src Source, l *slog.Logger, ttl time.Duration) *Revalidator {
	return &Revalidator{
		Source:       src,
		Logger:       l,
		TTL:          ttl,
		ErrorHold:    30 * time.Second,
		LoadWait:     5 * time.Second,
		FetchTimeout: time.Minute,
		Now:          time.Now,
	}
}

func (r *Revalidator) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}

	return time.Now()
}

func (r *Revalidator) Load(ctx context.Context) Snapshot {
	r.mu.Lock()
	resp, fetchedAt, err, failedAt := r.resp, r.fetchedAt, r.err, r.failedAt
	r.mu.Unlock()

	now := r.now()

	if resp != nil {
		if now.Sub(fetchedAt) >= r.TTL {
			r.Logger.DebugContext(ctx, "Catalog is stale, revalidating in background")
			r.revalidate()
		}

		return Snapshot{Status: StatusReady, Response: resp, FetchedAt: fetchedAt}
	}

	if err != nil && now.Sub(failedAt) < r.ErrorHold {
		return Snapshot{Status: StatusError, Err: err}
	}

	ch := r.revalidate()

	timer := time.NewTimer(r.LoadWait)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{Status: StatusError, Err: res.Err}
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		return Snapshot{Status: StatusReady, Response: r.resp, FetchedAt: r.fetchedAt}
	case <-timer.C:
		return Snapshot{Status: StatusLoading}
	case <-ctx.Done():
		return Snapshot{Status: StatusLoading}
	}
}

// Revalidate forces an outbound read and waits for it
func (r *Revalidator) Revalidate(ctx context.Context) error {
	select {
	case res := <-r.revalidate():
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for the background reads in flight
func (r *Revalidator) Close() {
	r.wg.Wait()
}

func (r *Revalidator) revalidate() <-chan singleflight.Result {
	r.wg.Add(1)

	ch := r.group.DoChan("catalog", r.fetch)
	out := make(chan singleflight.Result, 1)

	go func() {
		defer r.wg.Done()
		out <- <-ch
	}()

	return out
}

func (r *Revalidator) fetch() (any, error) {
	ctx := context.Background()
	if r.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
	}

	resp, err := r.Source.Fetch(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.Logger.Error("Failed to load catalog: " + err.Error())
		r.err = err
		r.failedAt = r.now()
		return nil, err
	}

	if resp == nil {
		resp = &types.CatalogResponse{Results: make([]types.Book, 0)}
	}

	r.Logger.Debug("Catalog loaded", slog.Int("books", len(resp.Results)))
	r.resp = resp
	r.fetchedAt = r.now()
	r.err = nil

	return resp, nil
}
