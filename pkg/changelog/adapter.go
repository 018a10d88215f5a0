// Package changelog aggregates completed tasks into deliverable/release
// records. Changelogs are append-only; creating one archives its related
// done tasks via the backlog adapter's subscription.
package changelog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/identity"
	"github.com/gitgov-io/gitgov/pkg/records"
	"github.com/gitgov-io/gitgov/pkg/store"
)

const eventSource = "changelog_adapter"

// Adapter is the changelog facade.
type Adapter struct {
	changelogs *store.Store
	tasks      *store.Store
	cycles     *store.Store
	identity   *identity.Adapter
	bus        *eventbus.Bus
	logger     *slog.Logger
}

// Options wires a changelog adapter. Tasks is required (related tasks must
// exist); Cycles is optional and enables the same check for relatedCycles.
type Options struct {
	Dir      string
	Tasks    *store.Store
	Cycles   *store.Store
	Identity *identity.Adapter
	Bus      *eventbus.Bus
	Logger   *slog.Logger
}

// NewAdapter opens the changelog store.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var resolver store.PublicKeyResolver
	if opts.Identity != nil {
		resolver = opts.Identity.Resolver()
	}
	st, err := store.New(opts.Dir, records.RecordTypeChangelog, resolver, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		changelogs: st,
		tasks:      opts.Tasks,
		cycles:     opts.Cycles,
		identity:   opts.Identity,
		bus:        opts.Bus,
		logger:     opts.Logger,
	}, nil
}

// Create validates, signs, persists, and announces a changelog. Every
// referenced task (and cycle, when a cycle store is wired) must exist, and
// a supplied version must parse as semver.
func (a *Adapter) Create(ctx context.Context, partial records.Changelog, actorID string) (*records.Changelog, error) {
	cl, err := records.NewChangelog(partial)
	if err != nil {
		return nil, err
	}
	if cl.Version != "" {
		if _, err := semver.NewVersion(cl.Version); err != nil {
			return nil, fmt.Errorf("changelog version %q is not semver: %w", cl.Version, err)
		}
	}
	for _, taskID := range cl.RelatedTasks {
		if _, err := a.tasks.Get(ctx, taskID); err != nil {
			return nil, fmt.Errorf("related task %s: %w", taskID, err)
		}
	}
	if a.cycles != nil {
		for _, cycleID := range cl.RelatedCycles {
			if _, err := a.cycles.Get(ctx, cycleID); err != nil {
				return nil, fmt.Errorf("related cycle %s: %w", cycleID, err)
			}
		}
	}

	rec, err := records.NewRecord(records.RecordTypeChangelog, cl)
	if err != nil {
		return nil, err
	}
	if err := a.identity.SignRecord(ctx, rec, actorID, "author", ""); err != nil {
		return nil, err
	}
	if err := a.changelogs.Put(ctx, cl.ID, rec); err != nil {
		return nil, err
	}

	if a.bus != nil {
		a.bus.Publish(ctx, eventbus.NewEvent(eventbus.EventChangelogCreated, eventSource, eventbus.ChangelogCreated{
			ChangelogID:  cl.ID,
			RelatedTasks: cl.RelatedTasks,
			Title:        cl.Title,
			Version:      cl.Version,
		}))
	}
	return cl, nil
}

// GetChangelog returns one changelog record.
func (a *Adapter) GetChangelog(ctx context.Context, id string) (*records.Changelog, error) {
	rec, err := a.changelogs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return records.Decode[records.Changelog](rec)
}

// Query filters and orders GetAllChangelogs results.
type Query struct {
	Tags      []string
	Version   string
	Limit     int
	SortBy    string // "completedAt" (default) or "title"
	SortOrder string // "asc" or "desc" (default)
}

// GetAllChangelogs returns readable changelogs matching the query, newest
// first by default. Corrupt records are logged and omitted.
func (a *Adapter) GetAllChangelogs(ctx context.Context, q Query) ([]records.Changelog, error) {
	ids, err := a.changelogs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]records.Changelog, 0, len(ids))
	for _, id := range ids {
		cl, err := a.GetChangelog(ctx, id)
		if err != nil {
			a.logger.Warn("skipping unreadable changelog record", "id", id, "error", err)
			continue
		}
		if q.Version != "" && cl.Version != q.Version {
			continue
		}
		if len(q.Tags) > 0 && !hasAnyTag(cl.Tags, q.Tags) {
			continue
		}
		out = append(out, *cl)
	}

	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "completedAt"
	}
	asc := strings.EqualFold(q.SortOrder, "asc")
	sort.SliceStable(out, func(i, j int) bool {
		if sortBy == "title" {
			if asc {
				return out[i].Title < out[j].Title
			}
			return out[i].Title > out[j].Title
		}
		if asc {
			return out[i].CompletedAt < out[j].CompletedAt
		}
		return out[i].CompletedAt > out[j].CompletedAt
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// GetChangelogsByTask returns the changelogs that include taskID in their
// relatedTasks.
func (a *Adapter) GetChangelogsByTask(ctx context.Context, taskID string) ([]records.Changelog, error) {
	all, err := a.GetAllChangelogs(ctx, Query{})
	if err != nil {
		return nil, err
	}
	var out []records.Changelog
	for _, cl := range all {
		for _, id := range cl.RelatedTasks {
			if id == taskID {
				out = append(out, cl)
				break
			}
		}
	}
	return out, nil
}

// GetRecentChangelogs returns the newest changelogs, at most limit.
func (a *Adapter) GetRecentChangelogs(ctx context.Context, limit int) ([]records.Changelog, error) {
	return a.GetAllChangelogs(ctx, Query{Limit: limit})
}
