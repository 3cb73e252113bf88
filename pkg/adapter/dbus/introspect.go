package dbus

import (
	"encoding/xml"

	"github.com/godbus/dbus/v5/introspect"
	"github.com/marmos91/ms2bridge/pkg/bridge"
)

// signature maps a value kind to its D-Bus type signature.
func signature(k bridge.ValueKind) string {
	switch k {
	case bridge.ValueObject:
		return "o"
	case bridge.ValueInt32:
		return "i"
	case bridge.ValueInt64:
		return "x"
	case bridge.ValueUint32:
		return "u"
	case bridge.ValueBool:
		return "b"
	case bridge.ValueStringList:
		return "as"
	default:
		return "s"
	}
}

func properties(role bridge.Role) []introspect.Property {
	props := bridge.PropertiesFor(role)
	out := make([]introspect.Property, len(props))
	for i, p := range props {
		out[i] = introspect.Property{Name: p.String(), Type: signature(p.Kind()), Access: "read"}
	}
	return out
}

func listMethod(name string) introspect.Method {
	return introspect.Method{
		Name: name,
		Args: []introspect.Arg{
			{Name: "offset", Type: "u", Direction: "in"},
			{Name: "max", Type: "u", Direction: "in"},
			{Name: "filter", Type: "as", Direction: "in"},
			{Name: "objects", Type: "aa{sv}", Direction: "out"},
		},
	}
}

var (
	objectInterface = introspect.Interface{
		Name:       IfaceObject,
		Properties: properties(bridge.RoleObject),
	}

	containerInterface = introspect.Interface{
		Name: IfaceContainer,
		Methods: []introspect.Method{
			listMethod("ListChildren"),
			listMethod("ListContainers"),
			listMethod("ListItems"),
			{
				Name: "SearchObjects",
				Args: []introspect.Arg{
					{Name: "query", Type: "s", Direction: "in"},
					{Name: "offset", Type: "u", Direction: "in"},
					{Name: "max", Type: "u", Direction: "in"},
					{Name: "filter", Type: "as", Direction: "in"},
					{Name: "objects", Type: "aa{sv}", Direction: "out"},
				},
			},
		},
		Signals:    []introspect.Signal{{Name: "Updated"}},
		Properties: properties(bridge.RoleContainer),
	}

	itemInterface = introspect.Interface{
		Name:       IfaceItem,
		Properties: properties(bridge.RoleItem),
	}

	propertiesInterface = introspect.Interface{
		Name: ifaceProperties,
		Methods: []introspect.Method{
			{Name: "Get", Args: []introspect.Arg{
				{Name: "interface", Type: "s", Direction: "in"},
				{Name: "property", Type: "s", Direction: "in"},
				{Name: "value", Type: "v", Direction: "out"},
			}},
			{Name: "GetAll", Args: []introspect.Arg{
				{Name: "interface", Type: "s", Direction: "in"},
				{Name: "properties", Type: "a{sv}", Direction: "out"},
			}},
			{Name: "Set", Args: []introspect.Arg{
				{Name: "interface", Type: "s", Direction: "in"},
				{Name: "property", Type: "s", Direction: "in"},
				{Name: "value", Type: "v", Direction: "in"},
			}},
		},
	}
)

// introspection returns the XML description of a container or an item.
// Both documents are built once.
func introspection(container bool) string {
	if container {
		return containerXML
	}
	return itemXML
}

var (
	containerXML = render(objectInterface, containerInterface)
	itemXML      = render(objectInterface, itemInterface)
)

func render(ifaces ...introspect.Interface) string {
	node := introspect.Node{
		Interfaces: append([]introspect.Interface{introspect.IntrospectData, propertiesInterface}, ifaces...),
	}
	data, err := xml.MarshalIndent(node, "", "  ")
	if err != nil {
		panic("introspection data does not marshal: " + err.Error())
	}
	return introspect.IntrospectDeclarationString + string(data)
}
