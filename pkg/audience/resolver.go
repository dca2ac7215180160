package audience

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// ResolverConfig holds configuration for the resolver.
type ResolverConfig struct {
	Table     *Table
	Directory Directory
	Logger    hclog.Logger
}

// Resolver turns an event into per-strategy recipient sets.
type Resolver struct {
	table  *Table
	dir    Directory
	logger hclog.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Table == nil {
		return nil, errors.New("audience table is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Resolver{
		table:  cfg.Table,
		dir:    cfg.Directory,
		logger: cfg.Logger.Named("audience"),
	}, nil
}

type outcome struct {
	members []Member
	done    chan struct{}
}

type resolution struct {
	r  *Resolver
	in Input

	outcomes map[Name]*outcome

	targetOnce sync.Once
	target     Entity
	targetErr  error

	mu   sync.Mutex
	errs *multierror.Error
}

// Resolve resolves each named strategy for the event. The returned map
// holds exactly the requested names. Strategies that fail resolve to an
// empty set and their errors are returned together; the map is complete
// either way.
func (r *Resolver) Resolve(ctx context.Context, in Input, names []Name) (map[Name]Set, error) {
	result := make(map[Name]Set, len(names))
	if in.Event == nil {
		return result, errors.New("event is required")
	}

	res := &resolution{
		r:        r,
		in:       in,
		outcomes: map[Name]*outcome{},
	}

	for _, name := range names {
		result[name] = Set{}
		if !r.table.Has(name) {
			res.fail(&LookupError{Audience: name, Err: errors.New("unknown audience strategy")})
		}
	}

	needed := r.table.closure(names)
	for _, name := range needed {
		res.outcomes[name] = &outcome{done: make(chan struct{})}
	}

	var g errgroup.Group
	for _, name := range needed {
		name := name
		g.Go(func() error {
			res.run(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	for _, name := range names {
		o, ok := res.outcomes[name]
		if !ok {
			continue
		}
		for _, m := range o.members {
			result[name].Add(m.UserID)
		}
	}

	return result, res.errs.ErrorOrNil()
}

func (res *resolution) run(ctx context.Context, name Name) {
	o := res.outcomes[name]
	defer close(o.done)

	s, _ := res.r.table.Lookup(name)
	members, err := res.resolveSafely(ctx, s)
	if err != nil {
		relation := ""
		if s.Query != nil {
			relation = s.Query.Relation
		}
		res.fail(&LookupError{Audience: name, Relation: relation, Err: err})
		return
	}
	o.members = members
}

func (res *resolution) resolveSafely(ctx context.Context, s Strategy) (members []Member, err error) {
	defer func() {
		if p := recover(); p != nil {
			members = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if s.Target != nil {
		return res.resolveTarget(ctx, s.Target)
	}
	return res.resolveQuery(ctx, s.Query)
}

func (res *resolution) resolveTarget(ctx context.Context, t *TargetLookup) ([]Member, error) {
	if !t.applies(res.in.Event.TargetType) {
		return nil, nil
	}

	res.targetOnce.Do(func() {
		res.target, res.targetErr = res.r.dir.FindTarget(ctx, res.in.Event.TargetType, res.in.Event.TargetID)
	})
	if res.targetErr != nil {
		return nil, fmt.Errorf("fetch %s %d: %w", res.in.Event.TargetType, res.in.Event.TargetID, res.targetErr)
	}

	return idsToMembers(t.Fields(res.target)), nil
}

func (res *resolution) resolveQuery(ctx context.Context, q *Query) ([]Member, error) {
	var keys []uint

	switch {
	case q.DependsOn != nil:
		dep := res.outcomes[q.DependsOn.Audience]
		select {
		case <-dep.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		for _, m := range dep.members {
			if v := q.DependsOn.Field(m); v != 0 {
				keys = append(keys, v)
			}
		}
		if len(keys) == 0 {
			return nil, nil
		}
	case q.Key != nil:
		keys = q.Key(res.in)
		if len(keys) == 0 {
			return nil, nil
		}
	}

	return q.Lookup(ctx, res.in, keys)
}

func (res *resolution) fail(err *LookupError) {
	res.r.logger.Warn("audience lookup failed",
		"audience", err.Audience,
		"relation", err.Relation,
		"event_id", res.in.Event.ID,
		"error", err.Err)

	res.mu.Lock()
	res.errs = multierror.Append(res.errs, err)
	res.mu.Unlock()
}
