package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/ms2bridge/pkg/bridge"
	"github.com/marmos91/ms2bridge/pkg/media"
	"github.com/marmos91/ms2bridge/pkg/media/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind string
	name string
	id   string
}

// recorder is a Listener that records events and can refuse endpoints.
type recorder struct {
	mu     sync.Mutex
	events []event
	refuse map[string]bool
}

func (r *recorder) EndpointAdded(e *Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse[e.Name] {
		return errors.New("name taken on the bus")
	}
	r.events = append(r.events, event{"added", e.Name, ""})
	return nil
}

func (r *recorder) EndpointRemoved(e *Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"removed", e.Name, ""})
}

func (r *recorder) ObjectUpdated(e *Endpoint, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"updated", e.Name, id})
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

// browseOnly is a backend that cannot resolve.
type browseOnly struct{ *memory.Backend }

func (browseOnly) Operations() media.Operations { return media.OpBrowse }

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"grl-filesystem", "grl_filesystem"},
		{"grl:youtube", "grl_youtube"},
		{"plain_Name9", "plain_Name9"},
		{"9lives", "_9lives"},
		{"", "_"},
		{"a.b/c d", "a_b_c_d"},
		{"ünï", "__n__"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestAddBackend(t *testing.T) {
	reg := New(Options{Limit: 10})
	rec := &recorder{}
	reg.Subscribe(rec)

	e, err := reg.AddBackend(memory.New("grl-memory", "Memory", true))
	require.NoError(t, err)
	assert.Equal(t, "grl_memory", e.Name)
	assert.True(t, e.Searchable())
	assert.EqualValues(t, 10, e.Bridge.Limit())

	got, ok := reg.Endpoint("grl_memory")
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, []event{{"added", "grl_memory", ""}}, rec.snapshot())
}

func TestAddBackend_EntryPoints(t *testing.T) {
	reg := New(Options{})
	b := memory.New("grl-memory", "Memory", false)
	_, err := b.Add("", media.NewNode("", "a", media.KindAudio).SetTitle("A"))
	require.NoError(t, err)

	e, err := reg.AddBackend(b)
	require.NoError(t, err)
	assert.Nil(t, e.Search, "search is only installed when supported")

	ctx := context.Background()
	values, err := e.Properties(ctx, bridge.RootID, []string{"DisplayName"})
	require.NoError(t, err)
	assert.Equal(t, "Memory", values[0].AsString())

	rows, err := e.Children(ctx, bridge.RootID, bridge.ListItems, 0, 0, []string{"DisplayName"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0][0].AsString())

	_, err = e.SearchObjects(ctx, bridge.RootID, "a", 0, 0, []string{"DisplayName"})
	assert.ErrorIs(t, err, bridge.ErrBackendUnavailable)
}

func TestAddBackend_Rejections(t *testing.T) {
	reg := New(Options{})
	_, err := reg.AddBackend(memory.New("grl-memory", "Memory", false))
	require.NoError(t, err)

	_, err = reg.AddBackend(browseOnly{memory.New("grl-x", "X", false)})
	assert.ErrorIs(t, err, ErrIncapable)

	_, err = reg.AddBackend(memory.New("grl-other", "Memory", false))
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = reg.AddBackend(memory.New("grl:memory", "Another", false))
	assert.ErrorIs(t, err, ErrNameTaken, "grl:memory sanitizes to the same name")

	assert.Equal(t, 1, reg.Count())
}

func TestAddBackend_AllowDuplicates(t *testing.T) {
	reg := New(Options{AllowDuplicates: true})
	_, err := reg.AddBackend(memory.New("grl-a", "Music", false))
	require.NoError(t, err)
	_, err = reg.AddBackend(memory.New("grl-b", "Music", false))
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Count())
}

func TestAddBackend_ListenerFailureRollsBackOnlyThatBackend(t *testing.T) {
	reg := New(Options{})
	first := &recorder{}
	second := &recorder{refuse: map[string]bool{"grl_bad": true}}
	reg.Subscribe(first)
	reg.Subscribe(second)

	_, err := reg.AddBackend(memory.New("grl-good", "Good", false))
	require.NoError(t, err)

	_, err = reg.AddBackend(memory.New("grl-bad", "Bad", false))
	require.Error(t, err)

	_, ok := reg.Endpoint("grl_bad")
	assert.False(t, ok)
	_, ok = reg.Endpoint("grl_good")
	assert.True(t, ok)

	assert.Equal(t, []event{
		{"added", "grl_good", ""},
		{"added", "grl_bad", ""},
		{"removed", "grl_bad", ""},
	}, first.snapshot())
}

func TestSubscribe_Replays(t *testing.T) {
	reg := New(Options{})
	_, err := reg.AddBackend(memory.New("grl-b", "B", false))
	require.NoError(t, err)
	_, err = reg.AddBackend(memory.New("grl-a", "A", false))
	require.NoError(t, err)

	rec := &recorder{}
	reg.Subscribe(rec)
	assert.Equal(t, []event{{"added", "grl_a", ""}, {"added", "grl_b", ""}}, rec.snapshot())

	reg.Unsubscribe(rec)
	require.NoError(t, reg.RemoveBackend("grl_a"))
	assert.Len(t, rec.snapshot(), 2)
}

func TestSubscribe_RefusalRemovesEndpoint(t *testing.T) {
	reg := New(Options{})
	watcher := &recorder{}
	reg.Subscribe(watcher)
	_, err := reg.AddBackend(memory.New("grl-a", "A", false))
	require.NoError(t, err)
	_, err = reg.AddBackend(memory.New("grl-bad", "Bad", false))
	require.NoError(t, err)

	reg.Subscribe(&recorder{refuse: map[string]bool{"grl_bad": true}})

	_, ok := reg.Endpoint("grl_bad")
	assert.False(t, ok)
	_, ok = reg.Endpoint("grl_a")
	assert.True(t, ok)
	assert.Contains(t, watcher.snapshot(), event{"removed", "grl_bad", ""})
}

func TestRemoveBackend(t *testing.T) {
	reg := New(Options{})
	rec := &recorder{}
	reg.Subscribe(rec)

	_, err := reg.AddBackend(memory.New("grl-memory", "Memory", false))
	require.NoError(t, err)
	require.NoError(t, reg.RemoveBackend("grl_memory"))

	assert.Zero(t, reg.Count())
	assert.Equal(t, event{"removed", "grl_memory", ""}, rec.snapshot()[1])
	assert.ErrorIs(t, reg.RemoveBackend("grl_memory"), ErrNotFound)
}

func TestNotifyUpdated(t *testing.T) {
	reg := New(Options{})
	rec := &recorder{}
	reg.Subscribe(rec)
	_, err := reg.AddBackend(memory.New("grl-memory", "Memory", false))
	require.NoError(t, err)

	dir := media.NewNode("grl-memory", "dir", media.KindContainer)
	require.NoError(t, reg.NotifyUpdated("grl_memory", []*media.Node{dir}))
	require.NoError(t, reg.NotifyUpdated("grl_memory", nil))

	events := rec.snapshot()
	assert.Equal(t, event{"updated", "grl_memory", bridge.EncodePath([]*media.Node{dir})}, events[1])
	assert.Equal(t, event{"updated", "grl_memory", bridge.RootID}, events[2])

	assert.ErrorIs(t, reg.NotifyUpdated("nope", nil), ErrNotFound)
}

func TestWatcherChangesAreRelayed(t *testing.T) {
	reg := New(Options{})
	rec := &recorder{}
	reg.Subscribe(rec)

	b := memory.New("grl-memory", "Memory", false)
	_, err := reg.AddBackend(b)
	require.NoError(t, err)

	// The watch goroutine subscribes asynchronously.
	require.Eventually(t, func() bool {
		_, _ = b.Add("", media.NewNode("", "", media.KindAudio))
		for _, ev := range rec.snapshot() {
			if ev.kind == "updated" && ev.id == bridge.RootID {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, reg.Close())
	assert.Zero(t, reg.Count())
}
