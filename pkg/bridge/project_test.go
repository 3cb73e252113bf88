package bridge

import (
	"testing"

	"github.com/marmos91/ms2bridge/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keySet(m PropertyMap) []Property {
	var keys []Property
	for _, p := range AllProperties() {
		if _, ok := m[p]; ok {
			keys = append(keys, p)
		}
	}
	return keys
}

func TestCheckFilter(t *testing.T) {
	bad, ok := CheckFilter([]string{"DisplayName", "URLs", "*"})
	assert.True(t, ok)
	assert.Empty(t, bad)

	bad, ok = CheckFilter([]string{"DisplayName", "Colour", "Nope"})
	assert.False(t, ok)
	assert.Equal(t, "Colour", bad)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter([]string{"URLs", "DisplayName"})
	require.NoError(t, err)
	assert.Equal(t, []Property{PropURLs, PropDisplayName}, f.Properties())
	assert.Equal(t, []string{"URLs", "DisplayName"}, f.Names())
	assert.False(t, f.IsWildcard())

	f, err = ParseFilter([]string{"Path", "*"})
	require.NoError(t, err)
	assert.True(t, f.IsWildcard())
	assert.Equal(t, AllProperties(), f.Properties())

	_, err = ParseFilter([]string{"Path", "displayname"})
	require.Error(t, err)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, KindUnknownProperty, be.Kind)
	assert.Equal(t, "displayname", be.Property)
}

func TestFilter_BackendKeys(t *testing.T) {
	f := FilterOf(PropPath, PropChildCount, PropItemCount, PropURLs, PropDLNAProfile)
	assert.Equal(t, []media.Key{media.KeyChildCount, media.KeyURL}, f.BackendKeys())
}

func TestPropertiesFor_PartitionsSchema(t *testing.T) {
	total := len(PropertiesFor(RoleObject)) + len(PropertiesFor(RoleContainer)) + len(PropertiesFor(RoleItem))
	assert.Equal(t, len(AllProperties()), total)
	assert.Equal(t, []Property{PropParent, PropType, PropPath, PropDisplayName}, PropertiesFor(RoleObject))
}

func TestProject_KeySetMatchesFilter(t *testing.T) {
	p := NewProjector("Test", true)
	item := media.NewNode("grl-test", "a", media.KindAudio).SetTitle("Song")

	m, err := p.Project(item, []string{"DisplayName", "Bitrate", "URLs"})
	require.NoError(t, err)
	assert.Equal(t, sortedBySchema([]Property{PropDisplayName, PropBitrate, PropURLs}), keySet(m))

	m, err = p.Project(item, []string{"*"})
	require.NoError(t, err)
	assert.Equal(t, AllProperties(), keySet(m))

	m, err = p.Project(item, []string{})
	require.NoError(t, err)
	assert.Empty(t, m)
}

func sortedBySchema(props []Property) []Property {
	var out []Property
	for _, p := range AllProperties() {
		for _, q := range props {
			if p == q {
				out = append(out, p)
			}
		}
	}
	return out
}

func TestProject_UnknownPropertyFails(t *testing.T) {
	p := NewProjector("Test", false)
	_, err := p.Project(media.NewRoot("grl-test"), []string{"DisplayName", "Bogus"})
	assert.ErrorIs(t, err, ErrUnknownProperty)
}

func TestProject_Placeholders(t *testing.T) {
	p := NewProjector("Test", false)
	item := media.NewNode("grl-test", "a", media.KindVideo)

	m := p.ProjectFilter(item, FilterOf(PropBitrate, PropURLs, PropArtist, PropSize, PropDisplayName, PropDLNAProfile))

	assert.Equal(t, Int32(UnknownInt), m[PropBitrate])
	assert.Equal(t, StringList(UnknownString), m[PropURLs])
	assert.Equal(t, String(UnknownString), m[PropArtist])
	assert.Equal(t, Int64(UnknownInt), m[PropSize])
	assert.Equal(t, String(UnknownString), m[PropDisplayName])
	assert.Equal(t, String(UnknownString), m[PropDLNAProfile])
}

func TestProject_BackendValues(t *testing.T) {
	p := NewProjector("Test", false)
	item := media.NewNode("grl-test", "a", media.KindAudio).
		SetTitle("Song").
		SetString(media.KeyURL, "file:///a.mp3").
		SetString(media.KeyMIME, "audio/mpeg").
		SetInt(media.KeyDuration, 215).
		SetInt(media.KeySize, 1<<40)

	m := p.ProjectFilter(item, FilterOf(PropDisplayName, PropURLs, PropMIMEType, PropDuration, PropSize, PropType))

	assert.Equal(t, String("Song"), m[PropDisplayName])
	assert.Equal(t, []string{"file:///a.mp3"}, m[PropURLs].AsStringList())
	assert.Equal(t, "audio/mpeg", m[PropMIMEType].AsString())
	assert.Equal(t, Int32(215), m[PropDuration])
	assert.Equal(t, Int64(1<<40), m[PropSize])
	assert.Equal(t, String("audio"), m[PropType])
}

func TestProject_IdentityFields(t *testing.T) {
	p := NewProjector("Test", false)

	root, err := DecodeIdentifier(RootID, "grl-test")
	require.NoError(t, err)
	m := p.ProjectFilter(root, FilterOf(PropPath, PropParent, PropDisplayName, PropType))
	assert.Equal(t, Object(RootID), m[PropPath])
	assert.Equal(t, Object(RootID), m[PropParent])
	assert.Equal(t, String("Test"), m[PropDisplayName], "untitled root uses the backend name")
	assert.Equal(t, String("container"), m[PropType])

	child := &media.Node{Source: "grl-test", ID: "dir", Kind: media.KindContainer, Parent: RootID}
	m = p.ProjectFilter(child, FilterOf(PropPath, PropParent))
	assert.Equal(t, Object(EncodeIdentifier(child)), m[PropPath])
	assert.Equal(t, Object(RootID), m[PropParent])
}

func TestProject_Counts(t *testing.T) {
	p := NewProjector("Test", true)
	counts := FilterOf(PropChildCount, PropItemCount, PropContainerCount)

	known := media.NewNode("grl-test", "dir", media.KindContainer).SetInt(media.KeyChildCount, 7)
	m := p.ProjectFilter(known, counts)
	for _, prop := range counts.Properties() {
		assert.Equal(t, Uint32(7), m[prop], prop.String())
	}

	unknown := media.NewNode("grl-test", "dir", media.KindContainer)
	m = p.ProjectFilter(unknown, counts)
	assert.Equal(t, Uint32(UnknownCount), m[PropChildCount])

	item := media.NewNode("grl-test", "a", media.KindImage)
	m = p.ProjectFilter(item, counts)
	assert.Equal(t, Uint32(0), m[PropContainerCount])
}

func TestProject_SearchableOnlyAtRoot(t *testing.T) {
	f := FilterOf(PropSearchable)
	dir := media.NewNode("grl-test", "dir", media.KindContainer)

	assert.True(t, NewProjector("T", true).ProjectFilter(media.NewRoot("grl-test"), f)[PropSearchable].AsBool())
	assert.False(t, NewProjector("T", true).ProjectFilter(dir, f)[PropSearchable].AsBool())
	assert.False(t, NewProjector("T", false).ProjectFilter(media.NewRoot("grl-test"), f)[PropSearchable].AsBool())
}
