package bridge

import (
	"math"

	"github.com/marmos91/ms2bridge/pkg/media"
)

// Property is a field of the fixed MediaServer2 object schema.
type Property uint8

const (
	PropParent Property = iota
	PropType
	PropPath
	PropDisplayName
	PropChildCount
	PropItemCount
	PropContainerCount
	PropSearchable
	PropIcon
	PropURLs
	PropMIMEType
	PropSize
	PropArtist
	PropAlbum
	PropDate
	PropGenre
	PropDLNAProfile
	PropDuration
	PropBitrate
	PropSampleRate
	PropBitsPerSample
	PropWidth
	PropHeight
	PropColorDepth
	PropPixelWidth
	PropPixelHeight
	PropThumbnail
	PropAlbumArt

	numProperties
)

// Wildcard selects every schema field.
const Wildcard = "*"

const (
	// UnknownString is the placeholder for text fields and list entries.
	UnknownString = "Unknown"

	// UnknownInt is the placeholder for numeric fields.
	UnknownInt = -1

	// UnknownCount is reported by containers that cannot count their children.
	UnknownCount = math.MaxInt32
)

// Role groups properties by the protocol interface that exposes them.
type Role uint8

const (
	RoleObject Role = iota
	RoleContainer
	RoleItem
)

type propertyInfo struct {
	name string
	kind ValueKind
	role Role
	key  media.Key // zero when the value never comes from the backend
}

var schema = [numProperties]propertyInfo{
	PropParent:         {"Parent", ValueObject, RoleObject, 0},
	PropType:           {"Type", ValueString, RoleObject, 0},
	PropPath:           {"Path", ValueObject, RoleObject, 0},
	PropDisplayName:    {"DisplayName", ValueString, RoleObject, media.KeyTitle},
	PropChildCount:     {"ChildCount", ValueUint32, RoleContainer, media.KeyChildCount},
	PropItemCount:      {"ItemCount", ValueUint32, RoleContainer, media.KeyChildCount},
	PropContainerCount: {"ContainerCount", ValueUint32, RoleContainer, media.KeyChildCount},
	PropSearchable:     {"Searchable", ValueBool, RoleContainer, 0},
	PropIcon:           {"Icon", ValueString, RoleContainer, 0},
	PropURLs:           {"URLs", ValueStringList, RoleItem, media.KeyURL},
	PropMIMEType:       {"MIMEType", ValueString, RoleItem, media.KeyMIME},
	PropSize:           {"Size", ValueInt64, RoleItem, media.KeySize},
	PropArtist:         {"Artist", ValueString, RoleItem, media.KeyArtist},
	PropAlbum:          {"Album", ValueString, RoleItem, media.KeyAlbum},
	PropDate:           {"Date", ValueString, RoleItem, media.KeyPublicationDate},
	PropGenre:          {"Genre", ValueString, RoleItem, media.KeyGenre},
	PropDLNAProfile:    {"DLNAProfile", ValueString, RoleItem, 0},
	PropDuration:       {"Duration", ValueInt32, RoleItem, media.KeyDuration},
	PropBitrate:        {"Bitrate", ValueInt32, RoleItem, media.KeyBitrate},
	PropSampleRate:     {"SampleRate", ValueInt32, RoleItem, media.KeySampleRate},
	PropBitsPerSample:  {"BitsPerSample", ValueInt32, RoleItem, 0},
	PropWidth:          {"Width", ValueInt32, RoleItem, media.KeyWidth},
	PropHeight:         {"Height", ValueInt32, RoleItem, media.KeyHeight},
	PropColorDepth:     {"ColorDepth", ValueInt32, RoleItem, 0},
	PropPixelWidth:     {"PixelWidth", ValueInt32, RoleItem, 0},
	PropPixelHeight:    {"PixelHeight", ValueInt32, RoleItem, 0},
	PropThumbnail:      {"Thumbnail", ValueString, RoleItem, media.KeyThumbnail},
	PropAlbumArt:       {"AlbumArt", ValueString, RoleItem, 0},
}

var byName = func() map[string]Property {
	m := make(map[string]Property, numProperties)
	for p := Property(0); p < numProperties; p++ {
		m[schema[p].name] = p
	}
	return m
}()

func (p Property) String() string {
	if p < numProperties {
		return schema[p].name
	}
	return "Invalid"
}

// Kind is the value type carried by the property.
func (p Property) Kind() ValueKind {
	return schema[p].kind
}

func (p Property) Role() Role {
	return schema[p].role
}

// BackendKey is the metadata key the property is read from, if any.
func (p Property) BackendKey() (media.Key, bool) {
	k := schema[p].key
	return k, k != 0
}

// LookupProperty resolves a schema field by its protocol name.
func LookupProperty(name string) (Property, bool) {
	p, ok := byName[name]
	return p, ok
}

// AllProperties returns the full schema in declaration order.
func AllProperties() []Property {
	props := make([]Property, numProperties)
	for i := range props {
		props[i] = Property(i)
	}
	return props
}

// PropertiesFor returns the fields exposed by one protocol role.
func PropertiesFor(role Role) []Property {
	var props []Property
	for p := Property(0); p < numProperties; p++ {
		if schema[p].role == role {
			props = append(props, p)
		}
	}
	return props
}

// Placeholder returns the schema-typed value used when a backend cannot
// supply p.
func Placeholder(p Property) Value {
	switch p.Kind() {
	case ValueStringList:
		return StringList(UnknownString)
	case ValueInt32:
		return Int32(UnknownInt)
	case ValueInt64:
		return Int64(UnknownInt)
	case ValueUint32:
		return Uint32(UnknownCount)
	case ValueBool:
		return Bool(false)
	case ValueObject:
		return Object(RootID)
	default:
		return String(UnknownString)
	}
}
