package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kyleking/sqlpilot/internal/cache"
	"github.com/kyleking/sqlpilot/internal/logging"
	"github.com/kyleking/sqlpilot/internal/types"
)

// Snapshot is one immutable introspection result
type Snapshot struct {
	Schema  *types.Schema  `json:"schema"            yaml:"schema"`
	BuiltAt time.Time      `json:"built_at"          yaml:"built_at"`
	Skipped []SkippedTable `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Options configures a Catalog
type Options struct {
	// TTL is how long a snapshot is served before Snapshot rebuilds it; zero never expires
	TTL     time.Duration
	Workers int
	Include []string
	Exclude []string
	// Store persists snapshots across processes under StoreKey
	Store    cache.Cache
	StoreKey string
	// BuildTimeout bounds one shared introspection, independent of any caller
	BuildTimeout time.Duration
	Logger       *logging.Logger
	Now          func() time.Time
}

// Catalog serves schema snapshots. Readers always see a complete snapshot;
// refreshes build a new one and swap it in atomically.
type Catalog struct {
	inspector Inspector
	opts      Options
	current   atomic.Pointer[Snapshot]
	refresh   singleflight.Group
}

// New creates a Catalog over insp. No introspection happens until the first
// Snapshot, Build or Refresh call.
func New(insp Inspector, opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.BuildTimeout <= 0 {
		opts.BuildTimeout = 2 * time.Minute
	}

	return &Catalog{inspector: insp, opts: opts}
}

// Snapshot returns the current snapshot, loading it from the store or the
// database when absent and rebuilding it once the TTL has elapsed. A failed
// rebuild keeps serving the previous snapshot.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := c.current.Load()
	if snap != nil && !c.stale(snap) {
		return snap, nil
	}

	if snap == nil {
		if stored := c.loadStored(ctx); stored != nil && !c.stale(stored) {
			c.current.CompareAndSwap(nil, stored)
			return c.current.Load(), nil
		}
	}

	fresh, err := c.Refresh(ctx)
	if err != nil {
		if snap != nil {
			c.opts.Logger.WithError(err).Warn("schema refresh failed, serving previous snapshot")
			return snap, nil
		}

		return nil, err
	}

	return fresh, nil
}

// Build introspects synchronously and installs the result
func (c *Catalog) Build(ctx context.Context) (*Snapshot, error) {
	return c.Refresh(ctx)
}

// Refresh rebuilds the snapshot. Concurrent callers share one introspection,
// which runs detached from their contexts so one caller giving up does not
// fail the others; each caller still returns as soon as its own ctx ends.
func (c *Catalog) Refresh(ctx context.Context) (*Snapshot, error) {
	ch := c.refresh.DoChan("refresh", func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.BuildTimeout)
		defer cancel()

		schema, skipped, err := BuildSchema(buildCtx, c.inspector, BuildOptions{
			Workers: c.opts.Workers,
			Include: c.opts.Include,
			Exclude: c.opts.Exclude,
			Logger:  c.opts.Logger,
		})
		if err != nil {
			return nil, err
		}

		snap := &Snapshot{Schema: schema, BuiltAt: c.opts.Now(), Skipped: skipped}
		c.current.Store(snap)
		c.store(buildCtx, snap)

		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		return res.Val.(*Snapshot), nil
	}
}

// Schema returns the schema of the current snapshot, see Snapshot
func (c *Catalog) Schema(ctx context.Context) (*types.Schema, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	return snap.Schema, nil
}

// Current returns the installed snapshot without triggering introspection
func (c *Catalog) Current() *Snapshot {
	return c.current.Load()
}

// Get looks up one table in the current snapshot
func (c *Catalog) Get(table string) *types.TableSchema {
	snap := c.current.Load()
	if snap == nil || snap.Schema == nil {
		return nil
	}

	return snap.Schema.Table(table)
}

// Invalidate drops the installed and persisted snapshots
func (c *Catalog) Invalidate(ctx context.Context) error {
	c.current.Store(nil)

	if c.opts.Store == nil || c.opts.StoreKey == "" {
		return nil
	}

	return c.opts.Store.Delete(ctx, c.opts.StoreKey)
}

func (c *Catalog) stale(snap *Snapshot) bool {
	return c.opts.TTL > 0 && c.opts.Now().Sub(snap.BuiltAt) >= c.opts.TTL
}

func (c *Catalog) loadStored(ctx context.Context) *Snapshot {
	if c.opts.Store == nil || c.opts.StoreKey == "" {
		return nil
	}

	data, err := c.opts.Store.Get(ctx, c.opts.StoreKey)
	if err != nil {
		if !stderrors.Is(err, cache.ErrMiss) {
			c.opts.Logger.WithError(err).Debug("schema cache read failed")
		}

		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Schema == nil {
		c.opts.Logger.Debug("discarding unreadable cached schema")
		return nil
	}

	c.opts.Logger.WithField("tables", snap.Schema.Len()).Debug("loaded schema snapshot from cache")

	return &snap
}

func (c *Catalog) store(ctx context.Context, snap *Snapshot) {
	if c.opts.Store == nil || c.opts.StoreKey == "" {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		c.opts.Logger.WithError(err).Debug("failed to encode schema snapshot")
		return
	}

	if err := c.opts.Store.Set(ctx, c.opts.StoreKey, data, c.opts.TTL); err != nil {
		c.opts.Logger.WithError(err).Debug("failed to persist schema snapshot")
	}
}
