package dbus

import (
	"errors"
	"strings"

	godbus "github.com/godbus/dbus/v5"
	"github.com/marmos91/ms2bridge/pkg/bridge"
)

const (
	// BusNamePrefix is followed by the endpoint name.
	BusNamePrefix = "org.gnome.UPnP.MediaServer2."

	// PathPrefix is followed by the endpoint name to form the root object path.
	PathPrefix = "/org/gnome/UPnP/MediaServer2/"

	IfaceObject    = "org.gnome.UPnP.MediaObject2"
	IfaceContainer = "org.gnome.UPnP.MediaContainer2"
	IfaceItem      = "org.gnome.UPnP.MediaItem2"

	ifaceProperties     = "org.freedesktop.DBus.Properties"
	ifaceIntrospectable = "org.freedesktop.DBus.Introspectable"

	// ErrorPrefix is followed by the bridge error kind.
	ErrorPrefix = "org.gnome.UPnP.MediaServer2.Error."
)

func busName(endpoint string) string {
	return BusNamePrefix + endpoint
}

func rootPath(endpoint string) godbus.ObjectPath {
	return godbus.ObjectPath(PathPrefix + endpoint)
}

// objectPath maps an identifier of endpoint to its object path. Identifiers
// are path element safe, so they are appended as-is.
func objectPath(endpoint, id string) godbus.ObjectPath {
	if id == bridge.RootID {
		return rootPath(endpoint)
	}
	return godbus.ObjectPath(PathPrefix + endpoint + "/" + id)
}

// identifier maps an object path below the endpoint root back to an
// identifier. Paths outside the endpoint or nested deeper than one element
// are rejected.
func identifier(endpoint string, path godbus.ObjectPath) (string, error) {
	root := string(rootPath(endpoint))
	p := string(path)
	if p == root {
		return bridge.RootID, nil
	}
	id, ok := strings.CutPrefix(p, root+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", &bridge.Error{Kind: bridge.KindInvalidIdentifier, Message: "invalid object path " + p}
	}
	return id, nil
}

// messagePath returns the object path a method call was addressed to.
func messagePath(msg godbus.Message) godbus.ObjectPath {
	v, ok := msg.Headers[godbus.FieldPath]
	if !ok {
		return ""
	}
	p, _ := v.Value().(godbus.ObjectPath)
	return p
}

// variant converts a property value to its wire representation.
func variant(endpoint string, v bridge.Value) godbus.Variant {
	if v.Kind() == bridge.ValueObject {
		return godbus.MakeVariant(objectPath(endpoint, v.AsString()))
	}
	return godbus.MakeVariant(v.Interface())
}

// row zips a projected node with the requested names into an a{sv}.
func row(endpoint string, names []string, values []bridge.Value) map[string]godbus.Variant {
	out := make(map[string]godbus.Variant, len(names))
	for i, name := range names {
		out[name] = variant(endpoint, values[i])
	}
	return out
}

func rows(endpoint string, names []string, list [][]bridge.Value) []map[string]godbus.Variant {
	out := make([]map[string]godbus.Variant, len(list))
	for i, values := range list {
		out[i] = row(endpoint, names, values)
	}
	return out
}

// dbusError maps a bridge error onto a named D-Bus error. D-Bus errors pass
// through unchanged.
func dbusError(err error) *godbus.Error {
	if err == nil {
		return nil
	}
	var de *godbus.Error
	if errors.As(err, &de) {
		return de
	}
	var be *bridge.Error
	if errors.As(err, &be) {
		return godbus.NewError(ErrorPrefix+be.Kind.String(), []interface{}{err.Error()})
	}
	return godbus.NewError(ErrorPrefix+bridge.KindBackendError.String(), []interface{}{err.Error()})
}
