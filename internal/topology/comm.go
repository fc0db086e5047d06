package topology

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// hub is the rendezvous point shared by every communicator of one launch.
type hub struct {
	mu     sync.Mutex
	rounds map[string]*round
}

// round collects one contribution per member of a communicator for a single
// collective call.
type round struct {
	mu      sync.Mutex
	slots   []any
	arrived int
	done    chan struct{}
}

func (h *hub) round(key string, size int) *round {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rounds[key]
	if !ok {
		r = &round{slots: make([]any, size), done: make(chan struct{})}
		h.rounds[key] = r
	}
	return r
}

func (h *hub) forget(key string) {
	h.mu.Lock()
	delete(h.rounds, key)
	h.mu.Unlock()
}

// Comm is one rank's handle on a communicator. A Comm is owned by a single
// goroutine and must not be shared.
type Comm struct {
	hub   *hub
	id    string
	ranks []int // world ranks of the members, indexed by local rank
	rank  int
	seq   int
}

// Rank returns the rank of the caller within the communicator.
func (c *Comm) Rank() int { return c.rank }

// Size returns the number of members.
func (c *Comm) Size() int { return len(c.ranks) }

// WorldRank returns the world rank of the member with the given local rank.
func (c *Comm) WorldRank(local int) int { return c.ranks[local] }

// Ranks returns the world ranks of all members in local rank order.
func (c *Comm) Ranks() []int { return slices.Clone(c.ranks) }

// exchange contributes v to the next collective of the communicator and
// blocks until every member has contributed. The returned slice is shared
// between members and must be treated as read-only.
func (c *Comm) exchange(ctx context.Context, v any) ([]any, error) {
	c.seq++
	key := fmt.Sprintf("%s#%d", c.id, c.seq)
	r := c.hub.round(key, len(c.ranks))

	r.mu.Lock()
	r.slots[c.rank] = v
	r.arrived++
	if r.arrived == len(r.slots) {
		close(r.done)
		c.hub.forget(key)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return r.slots, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s collective %d: %w", c.id, c.seq, ctx.Err())
	}
}

// Barrier blocks until every member has reached it.
func (c *Comm) Barrier(ctx context.Context) error {
	_, err := c.exchange(ctx, nil)
	return err
}

// Gather collects v from every member on root, in local rank order. Other
// members receive nil.
func Gather[T any](ctx context.Context, c *Comm, v T, root int) ([]T, error) {
	slots, err := c.exchange(ctx, v)
	if err != nil || c.rank != root {
		return nil, err
	}
	return typed[T](slots), nil
}

// AllGather collects v from every member on every member.
func AllGather[T any](ctx context.Context, c *Comm, v T) ([]T, error) {
	slots, err := c.exchange(ctx, v)
	if err != nil {
		return nil, err
	}
	return typed[T](slots), nil
}

// Bcast returns the value contributed by root on every member. The v passed
// by other members is ignored.
func Bcast[T any](ctx context.Context, c *Comm, v T, root int) (T, error) {
	slots, err := c.exchange(ctx, v)
	if err != nil {
		var zero T
		return zero, err
	}
	return slots[root].(T), nil
}

func typed[T any](slots []any) []T {
	out := make([]T, len(slots))
	for i, s := range slots {
		out[i] = s.(T)
	}
	return out
}

type splitKey struct {
	color, key, rank int
}

// Split partitions the communicator by color. Members with equal color form
// a new communicator, ordered by key and then by their current rank.
func (c *Comm) Split(ctx context.Context, color, key int) (*Comm, error) {
	all, err := AllGather(ctx, c, splitKey{color: color, key: key, rank: c.rank})
	if err != nil {
		return nil, err
	}
	var members []splitKey
	for _, m := range all {
		if m.color == color {
			members = append(members, m)
		}
	}
	slices.SortFunc(members, func(a, b splitKey) int {
		return cmp.Or(cmp.Compare(a.key, b.key), cmp.Compare(a.rank, b.rank))
	})

	sub := &Comm{hub: c.hub, id: fmt.Sprintf("%s/s%d.%d", c.id, c.seq, color)}
	for i, m := range members {
		if m.rank == c.rank {
			sub.rank = i
		}
		sub.ranks = append(sub.ranks, c.ranks[m.rank])
	}
	return sub, nil
}

// Include builds a communicator from the members with the given local ranks,
// in that order. Every member must call it; non-members receive nil.
func (c *Comm) Include(ctx context.Context, ranks []int) (*Comm, error) {
	if err := c.Barrier(ctx); err != nil {
		return nil, err
	}
	for _, r := range ranks {
		if r < 0 || r >= len(c.ranks) {
			return nil, fmt.Errorf("include: rank %d outside communicator of size %d", r, len(c.ranks))
		}
	}
	idx := slices.Index(ranks, c.rank)
	if idx < 0 {
		return nil, nil
	}
	sub := &Comm{hub: c.hub, id: fmt.Sprintf("%s/i%d", c.id, c.seq), rank: idx}
	for _, r := range ranks {
		sub.ranks = append(sub.ranks, c.ranks[r])
	}
	return sub, nil
}

// Launch runs fn on size ranks, each in its own goroutine with its own world
// communicator. The first error cancels the context of the other ranks, so
// any collective they are blocked in returns.
func Launch(ctx context.Context, size int, fn func(ctx context.Context, world *Comm) error) error {
	if size < 1 {
		return fmt.Errorf("%w: need at least one rank, got %d", ErrTopology, size)
	}
	h := &hub{rounds: make(map[string]*round)}
	ranks := make([]int, size)
	for i := range ranks {
		ranks[i] = i
	}

	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		world := &Comm{hub: h, id: "world", ranks: ranks, rank: r}
		g.Go(func() error {
			return fn(gctx, world)
		})
	}
	return g.Wait()
}
