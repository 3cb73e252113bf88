package dbus

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/marmos91/ms2bridge/pkg/media"
	"github.com/marmos91/ms2bridge/pkg/media/memory"
	"github.com/marmos91/ms2bridge/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signal struct {
	path godbus.ObjectPath
	name string
}

// fakeConn records bus interactions. Names in foreign are owned by another
// connection.
type fakeConn struct {
	mu      sync.Mutex
	foreign map[string]bool
	names   map[string]bool
	exports map[godbus.ObjectPath]map[string]interface{}
	signals []signal
	closed  bool

	ctx  context.Context
	drop context.CancelFunc
}

func newFakeConn() *fakeConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeConn{
		foreign: map[string]bool{},
		names:   map[string]bool{},
		exports: map[godbus.ObjectPath]map[string]interface{}{},
		ctx:     ctx,
		drop:    cancel,
	}
}

func (f *fakeConn) RequestName(name string, flags godbus.RequestNameFlags) (godbus.RequestNameReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if flags&godbus.NameFlagDoNotQueue == 0 {
		return 0, errors.New("expected DoNotQueue")
	}
	if f.foreign[name] {
		return godbus.RequestNameReplyExists, nil
	}
	f.names[name] = true
	return godbus.RequestNameReplyPrimaryOwner, nil
}

func (f *fakeConn) ReleaseName(name string) (godbus.ReleaseNameReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.names, name)
	return godbus.ReleaseNameReplyReleased, nil
}

func (f *fakeConn) ExportSubtree(v interface{}, path godbus.ObjectPath, iface string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v == nil {
		delete(f.exports[path], iface)
		if len(f.exports[path]) == 0 {
			delete(f.exports, path)
		}
		return nil
	}
	if f.exports[path] == nil {
		f.exports[path] = map[string]interface{}{}
	}
	f.exports[path][iface] = v
	return nil
}

func (f *fakeConn) Emit(path godbus.ObjectPath, name string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal{path, name})
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) Context() context.Context {
	return f.ctx
}

func (f *fakeConn) handler(path godbus.ObjectPath, iface string) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exports[path][iface]
}

func (f *fakeConn) owns(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[name]
}

func (f *fakeConn) emitted() []signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]signal(nil), f.signals...)
}

func catalog(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New("grl-memory", "Memory", false)
	_, err := b.Add("", media.NewNode("", "containerA", media.KindContainer).SetTitle("containerA"))
	require.NoError(t, err)
	_, err = b.Add("", media.NewNode("", "itemB", media.KindAudio).SetTitle("itemB"))
	require.NoError(t, err)
	_, err = b.Add("", media.NewNode("", "itemC", media.KindVideo).SetTitle("itemC"))
	require.NoError(t, err)
	return b
}

// start serves a registry holding the catalog backend over a fake bus.
func start(t *testing.T, conn *fakeConn) (*DBusAdapter, *registry.Registry, <-chan error) {
	t.Helper()
	reg := registry.New(registry.Options{})
	_, err := reg.AddBackend(catalog(t))
	require.NoError(t, err)

	a := New(Config{Enabled: true})
	a.dial = func(Config) (Conn, error) { return conn, nil }
	a.SetRegistry(reg)

	served := make(chan error, 1)
	go func() { served <- a.Serve(context.Background()) }()
	require.Eventually(t, func() bool { return len(a.Published()) == 1 }, time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		_ = a.Stop(context.Background())
		_ = reg.Close()
	})
	return a, reg, served
}

func call(path godbus.ObjectPath) godbus.Message {
	return godbus.Message{Headers: map[godbus.HeaderField]godbus.Variant{
		godbus.FieldPath: godbus.MakeVariant(path),
	}}
}

func errorName(err *godbus.Error) string {
	if err == nil {
		return ""
	}
	return err.Name
}

const root = godbus.ObjectPath("/org/gnome/UPnP/MediaServer2/grl_memory")

func TestServe_PublishesEndpoints(t *testing.T) {
	conn := newFakeConn()
	a, _, _ := start(t, conn)

	assert.True(t, conn.owns("org.gnome.UPnP.MediaServer2.grl_memory"))
	assert.Equal(t, []string{"grl_memory"}, a.Published())
	assert.Equal(t, "session", a.Address())
	assert.Equal(t, "D-Bus", a.Protocol())

	for _, iface := range []string{IfaceContainer, ifaceProperties, ifaceIntrospectable} {
		assert.NotNil(t, conn.handler(root, iface), iface)
	}
}

func TestListChildren(t *testing.T) {
	conn := newFakeConn()
	start(t, conn)
	h := conn.handler(root, IfaceContainer).(containerHandler)

	out, derr := h.ListChildren(call(root), 0, 0, []string{"DisplayName", "Parent", "Path", "Type"})
	require.Nil(t, derr)
	require.Len(t, out, 3)

	var names []string
	for _, r := range out {
		names = append(names, r["DisplayName"].Value().(string))
		assert.Equal(t, root, r["Parent"].Value())
		path := r["Path"].Value().(godbus.ObjectPath)
		assert.True(t, strings.HasPrefix(string(path), string(root)+"/"), path)
	}
	assert.Equal(t, []string{"containerA", "itemB", "itemC"}, names)
	assert.Equal(t, "container", out[0]["Type"].Value())

	items, derr := h.ListItems(call(root), 1, 0, []string{"DisplayName"})
	require.Nil(t, derr)
	require.Len(t, items, 1)
	assert.Equal(t, "itemC", items[0]["DisplayName"].Value())

	containers, derr := h.ListContainers(call(root), 0, 0, []string{"*"})
	require.Nil(t, derr)
	require.Len(t, containers, 1)
	assert.Contains(t, containers[0], "AlbumArt", "wildcard expands to the full schema")
}

func TestListChildren_ChildPaths(t *testing.T) {
	conn := newFakeConn()
	start(t, conn)
	h := conn.handler(root, IfaceContainer).(containerHandler)

	out, derr := h.ListContainers(call(root), 0, 0, []string{"Path"})
	require.Nil(t, derr)
	child := out[0]["Path"].Value().(godbus.ObjectPath)

	nested, derr := h.ListChildren(call(child), 0, 0, []string{"DisplayName"})
	require.Nil(t, derr)
	assert.Empty(t, nested)
}

func TestMethodErrors(t *testing.T) {
	conn := newFakeConn()
	start(t, conn)
	h := conn.handler(root, IfaceContainer).(containerHandler)

	tests := []struct {
		name string
		run  func() *godbus.Error
		want string
	}{
		{"unknown property", func() *godbus.Error {
			_, err := h.ListChildren(call(root), 0, 0, []string{"Bogus"})
			return err
		}, ErrorPrefix + "UnknownProperty"},
		{"malformed identifier", func() *godbus.Error {
			_, err := h.ListChildren(call(root+"/notbase32"), 0, 0, []string{"DisplayName"})
			return err
		}, ErrorPrefix + "InvalidIdentifier"},
		{"path of another endpoint", func() *godbus.Error {
			_, err := h.ListChildren(call("/org/gnome/UPnP/MediaServer2/other"), 0, 0, nil)
			return err
		}, ErrorPrefix + "InvalidIdentifier"},
		{"search unsupported", func() *godbus.Error {
			_, err := h.SearchObjects(call(root), "a", 0, 0, []string{"DisplayName"})
			return err
		}, ErrorPrefix + "BackendUnavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorName(tt.run()))
		})
	}
}

func TestProperties(t *testing.T) {
	conn := newFakeConn()
	start(t, conn)
	props := conn.handler(root, ifaceProperties).(propertiesHandler)

	v, derr := props.Get(call(root), IfaceObject, "DisplayName")
	require.Nil(t, derr)
	assert.Equal(t, "Memory", v.Value())

	v, derr = props.Get(call(root), IfaceContainer, "ChildCount")
	require.Nil(t, derr)
	assert.Equal(t, uint32(3), v.Value())

	all, derr := props.GetAll(call(root), IfaceContainer)
	require.Nil(t, derr)
	assert.Equal(t, false, all["Searchable"].Value())
	assert.Len(t, all, 5)

	_, derr = props.Get(call(root), IfaceObject, "ChildCount")
	assert.Equal(t, ErrorPrefix+"UnknownProperty", errorName(derr))

	_, derr = props.GetAll(call(root), IfaceItem)
	assert.Equal(t, errUnknownInterface, errorName(derr))

	derr = props.Set(IfaceObject, "DisplayName", godbus.MakeVariant("x"))
	assert.Equal(t, errReadOnly, errorName(derr))
}

func TestProperties_Item(t *testing.T) {
	conn := newFakeConn()
	start(t, conn)
	h := conn.handler(root, IfaceContainer).(containerHandler)
	props := conn.handler(root, ifaceProperties).(propertiesHandler)

	out, derr := h.ListItems(call(root), 0, 1, []string{"Path"})
	require.Nil(t, derr)
	item := out[0]["Path"].Value().(godbus.ObjectPath)

	all, derr := props.GetAll(call(item), IfaceItem)
	require.Nil(t, derr)
	assert.Equal(t, []string{"Unknown"}, all["URLs"].Value())
	assert.Equal(t, int32(-1), all["Bitrate"].Value())

	_, derr = props.GetAll(call(item), IfaceContainer)
	assert.Equal(t, errUnknownInterface, errorName(derr))
}

func TestIntrospect(t *testing.T) {
	conn := newFakeConn()
	start(t, conn)
	h := conn.handler(root, IfaceContainer).(containerHandler)
	in := conn.handler(root, ifaceIntrospectable).(introspectHandler)

	xml, derr := in.Introspect(call(root))
	require.Nil(t, derr)
	assert.Contains(t, xml, IfaceContainer)
	assert.Contains(t, xml, `name="ListChildren"`)
	assert.NotContains(t, xml, IfaceItem)

	out, derr := h.ListItems(call(root), 0, 1, []string{"Path"})
	require.Nil(t, derr)
	xml, derr = in.Introspect(call(out[0]["Path"].Value().(godbus.ObjectPath)))
	require.Nil(t, derr)
	assert.Contains(t, xml, IfaceItem)
	assert.Contains(t, xml, `name="URLs" type="as"`)
	assert.NotContains(t, xml, IfaceContainer)
}

func TestEndpointAdded_NameTaken(t *testing.T) {
	conn := newFakeConn()
	conn.foreign["org.gnome.UPnP.MediaServer2.grl_taken"] = true
	a, reg, _ := start(t, conn)

	_, err := reg.AddBackend(memory.New("grl-taken", "Taken", false))
	assert.ErrorIs(t, err, ErrNameTaken)

	_, ok := reg.Endpoint("grl_taken")
	assert.False(t, ok, "only the refused backend is dropped")
	assert.Equal(t, []string{"grl_memory"}, a.Published())
	assert.Nil(t, conn.handler(rootPath("grl_taken"), IfaceContainer))
}

func TestEndpointRemoved(t *testing.T) {
	conn := newFakeConn()
	a, reg, _ := start(t, conn)

	_, err := reg.AddBackend(memory.New("grl-other", "Other", false))
	require.NoError(t, err)
	published := a.Published()
	sort.Strings(published)
	assert.Equal(t, []string{"grl_memory", "grl_other"}, published)

	require.NoError(t, reg.RemoveBackend("grl_other"))
	assert.Equal(t, []string{"grl_memory"}, a.Published())
	assert.False(t, conn.owns("org.gnome.UPnP.MediaServer2.grl_other"))
	assert.Nil(t, conn.handler(rootPath("grl_other"), ifaceProperties))
}

func TestObjectUpdated(t *testing.T) {
	conn := newFakeConn()
	_, reg, _ := start(t, conn)

	require.NoError(t, reg.NotifyUpdated("grl_memory", nil))
	assert.Equal(t, []signal{{root, "org.gnome.UPnP.MediaContainer2.Updated"}}, conn.emitted())
}

func TestStop(t *testing.T) {
	conn := newFakeConn()
	a, reg, served := start(t, conn)
	h := conn.handler(root, IfaceContainer).(containerHandler)

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, <-served)

	_, derr := h.ListChildren(call(root), 0, 0, []string{"DisplayName"})
	assert.Equal(t, ErrorPrefix+"BackendUnavailable", errorName(derr))

	assert.Empty(t, a.Published())
	assert.False(t, conn.owns("org.gnome.UPnP.MediaServer2.grl_memory"))
	conn.mu.Lock()
	assert.True(t, conn.closed)
	conn.mu.Unlock()

	_, err := reg.AddBackend(memory.New("grl-late", "Late", false))
	require.NoError(t, err, "stopped adapter no longer listens")
	require.NoError(t, a.Stop(context.Background()), "Stop is idempotent")
}

func TestServe_ConnectionLost(t *testing.T) {
	conn := newFakeConn()
	_, _, served := start(t, conn)

	conn.drop()
	select {
	case err := <-served:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after losing the bus")
	}
}

func TestServe_DialError(t *testing.T) {
	a := New(Config{})
	a.dial = func(Config) (Conn, error) { return nil, errors.New("no bus") }
	a.SetRegistry(registry.New(registry.Options{}))

	err := a.Serve(context.Background())
	assert.ErrorContains(t, err, "no bus")
}

func TestNew_InvalidConfig(t *testing.T) {
	assert.Panics(t, func() { New(Config{Bus: "starbus"}) })
}
