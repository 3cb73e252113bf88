package dbus

import (
	"context"

	godbus "github.com/godbus/dbus/v5"
	"github.com/marmos91/ms2bridge/pkg/bridge"
	"github.com/marmos91/ms2bridge/pkg/registry"
)

const (
	errUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	errReadOnly         = "org.freedesktop.DBus.Error.PropertyReadOnly"
)

// object serves every path below one endpoint root. godbus exports
// methods by reflection, so the interfaces are split across the handler
// types below and all share this state.
type object struct {
	adapter  *DBusAdapter
	endpoint *registry.Endpoint
}

// call resolves the target identifier of msg and runs fn with the
// adapter's request context.
func (o *object) call(msg godbus.Message, fn func(ctx context.Context, id string) error) *godbus.Error {
	done, ok := o.adapter.beginCall()
	if !ok {
		return dbusError(bridge.Unavailable("call", o.endpoint.Name))
	}
	defer done()

	id, err := identifier(o.endpoint.Name, messagePath(msg))
	if err != nil {
		return dbusError(err)
	}
	return dbusError(fn(o.adapter.shutdownCtx, id))
}

// isContainer decodes id far enough to tell containers from items.
func (o *object) isContainer(id string) (bool, error) {
	node, err := o.endpoint.Bridge.Decode(id)
	if err != nil {
		return false, err
	}
	return node.IsContainer(), nil
}

// containerHandler implements org.gnome.UPnP.MediaContainer2.
type containerHandler struct{ *object }

func (h containerHandler) list(msg godbus.Message, kind bridge.ListKind, offset, max uint32, filter []string) ([]map[string]godbus.Variant, *godbus.Error) {
	var out []map[string]godbus.Variant
	derr := h.call(msg, func(ctx context.Context, id string) error {
		f, err := bridge.ParseFilter(filter)
		if err != nil {
			return err
		}
		list, err := h.endpoint.Children(ctx, id, kind, offset, max, filter)
		if err != nil {
			return err
		}
		out = rows(h.endpoint.Name, f.Names(), list)
		return nil
	})
	if derr != nil {
		return nil, derr
	}
	return out, nil
}

func (h containerHandler) ListChildren(msg godbus.Message, offset, max uint32, filter []string) ([]map[string]godbus.Variant, *godbus.Error) {
	return h.list(msg, bridge.ListChildren, offset, max, filter)
}

func (h containerHandler) ListContainers(msg godbus.Message, offset, max uint32, filter []string) ([]map[string]godbus.Variant, *godbus.Error) {
	return h.list(msg, bridge.ListContainers, offset, max, filter)
}

func (h containerHandler) ListItems(msg godbus.Message, offset, max uint32, filter []string) ([]map[string]godbus.Variant, *godbus.Error) {
	return h.list(msg, bridge.ListItems, offset, max, filter)
}

func (h containerHandler) SearchObjects(msg godbus.Message, query string, offset, max uint32, filter []string) ([]map[string]godbus.Variant, *godbus.Error) {
	var out []map[string]godbus.Variant
	derr := h.call(msg, func(ctx context.Context, id string) error {
		f, err := bridge.ParseFilter(filter)
		if err != nil {
			return err
		}
		list, err := h.endpoint.SearchObjects(ctx, id, query, offset, max, filter)
		if err != nil {
			return err
		}
		out = rows(h.endpoint.Name, f.Names(), list)
		return nil
	})
	if derr != nil {
		return nil, derr
	}
	return out, nil
}

// propertiesHandler implements org.freedesktop.DBus.Properties.
type propertiesHandler struct{ *object }

// role maps an interface name to the properties it carries on id. Items do
// not carry MediaContainer2 and containers do not carry MediaItem2.
func (h propertiesHandler) role(id, iface string) (bridge.Role, *godbus.Error) {
	container, err := h.isContainer(id)
	if err != nil {
		return 0, dbusError(err)
	}
	switch {
	case iface == IfaceObject:
		return bridge.RoleObject, nil
	case iface == IfaceContainer && container:
		return bridge.RoleContainer, nil
	case iface == IfaceItem && !container:
		return bridge.RoleItem, nil
	}
	return 0, godbus.NewError(errUnknownInterface, []interface{}{"no interface " + iface})
}

func (h propertiesHandler) Get(msg godbus.Message, iface, property string) (godbus.Variant, *godbus.Error) {
	var out godbus.Variant
	derr := h.call(msg, func(ctx context.Context, id string) error {
		role, derr := h.role(id, iface)
		if derr != nil {
			return derr
		}
		p, ok := bridge.LookupProperty(property)
		if !ok || p.Role() != role {
			return &bridge.Error{Kind: bridge.KindUnknownProperty, Message: "unknown property", Property: property}
		}
		values, err := h.endpoint.Properties(ctx, id, []string{property})
		if err != nil {
			return err
		}
		out = variant(h.endpoint.Name, values[0])
		return nil
	})
	if derr != nil {
		return godbus.Variant{}, derr
	}
	return out, nil
}

func (h propertiesHandler) GetAll(msg godbus.Message, iface string) (map[string]godbus.Variant, *godbus.Error) {
	var out map[string]godbus.Variant
	derr := h.call(msg, func(ctx context.Context, id string) error {
		role, derr := h.role(id, iface)
		if derr != nil {
			return derr
		}
		names := bridge.FilterOf(bridge.PropertiesFor(role)...).Names()
		values, err := h.endpoint.Properties(ctx, id, names)
		if err != nil {
			return err
		}
		out = row(h.endpoint.Name, names, values)
		return nil
	})
	if derr != nil {
		return nil, derr
	}
	return out, nil
}

func (h propertiesHandler) Set(iface, property string, value godbus.Variant) *godbus.Error {
	return godbus.NewError(errReadOnly, []interface{}{property + " is read-only"})
}

// introspectHandler implements org.freedesktop.DBus.Introspectable.
type introspectHandler struct{ *object }

func (h introspectHandler) Introspect(msg godbus.Message) (string, *godbus.Error) {
	var out string
	derr := h.call(msg, func(_ context.Context, id string) error {
		container, err := h.isContainer(id)
		if err != nil {
			return err
		}
		out = introspection(container)
		return nil
	})
	if derr != nil {
		return "", derr
	}
	return out, nil
}
