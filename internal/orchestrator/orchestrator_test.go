package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"agentreflect/internal/evidence"
	"agentreflect/internal/slogutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// delayedSearcher finishes categories in reverse order of their delay.
type delayedSearcher struct {
	delays  map[string]time.Duration
	fail    map[string]bool
	panics  map[string]bool
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (d *delayedSearcher) Search(ctx context.Context, c evidence.Category) (*evidence.CategoryResult, error) {
	n := d.active.Add(1)
	defer d.active.Add(-1)
	for {
		cur := d.maxSeen.Load()
		if n <= cur || d.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}

	select {
	case <-time.After(d.delays[c.Name]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if d.panics[c.Name] {
		panic("backend exploded")
	}
	if d.fail[c.Name] {
		return nil, errors.New("search broke")
	}
	r := evidence.NewCategoryResult(c)
	r.Indexed.Add(evidence.Hit{SourcePath: c.Name, LineNumber: 1})
	return r, nil
}

func categories(names ...string) []evidence.Category {
	out := make([]evidence.Category, len(names))
	for i, n := range names {
		out[i] = evidence.Category{Name: n, Queries: []string{n}}
	}
	return out
}

func TestRun_PreservesConfiguredOrder(t *testing.T) {
	s := &delayedSearcher{delays: map[string]time.Duration{
		"first":  40 * time.Millisecond,
		"second": 20 * time.Millisecond,
		"third":  1 * time.Millisecond,
		"fourth": 10 * time.Millisecond,
	}}
	o := New(s, 4, slogutil.NewDiscardLogger())

	set, err := o.Run(context.Background(), categories("first", "second", "third", "fourth"))
	require.NoError(t, err)

	want := []string{"first", "second", "third", "fourth"}
	if diff := cmp.Diff(want, set.Names()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	for _, r := range set.All() {
		assert.Equal(t, 1, r.TotalHits())
	}
}

func TestRun_BoundsParallelism(t *testing.T) {
	delays := map[string]time.Duration{}
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, n := range names {
		delays[n] = 15 * time.Millisecond
	}
	s := &delayedSearcher{delays: delays}
	o := New(s, 2, slogutil.NewDiscardLogger())

	set, err := o.Run(context.Background(), categories(names...))
	require.NoError(t, err)
	assert.Equal(t, len(names), set.Len())
	assert.LessOrEqual(t, s.maxSeen.Load(), int32(2))
}

func TestRun_FailuresBecomeMarkers(t *testing.T) {
	s := &delayedSearcher{
		fail:   map[string]bool{"broken": true},
		panics: map[string]bool{"explodes": true},
	}
	o := New(s, 0, slogutil.NewDiscardLogger())

	set, err := o.Run(context.Background(), categories("ok", "broken", "explodes"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "broken", "explodes"}, set.Names())

	broken, _ := set.Get("broken")
	assert.Equal(t, "search broke", broken.Error)
	assert.Equal(t, 0, broken.TotalHits())

	explodes, _ := set.Get("explodes")
	assert.Contains(t, explodes.Error, "backend exploded")

	ok, _ := set.Get("ok")
	assert.Empty(t, ok.Error)
}

func TestRun_Cancelled(t *testing.T) {
	s := &delayedSearcher{delays: map[string]time.Duration{"slow": time.Second}}
	o := New(s, 1, slogutil.NewDiscardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := o.Run(ctx, categories("slow", "slower"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_Empty(t *testing.T) {
	o := New(&delayedSearcher{}, 3, slogutil.NewDiscardLogger())
	set, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}
