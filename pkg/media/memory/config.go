package memory

import (
	"fmt"
	"time"

	"github.com/marmos91/ms2bridge/pkg/media"
)

// Config is the memory backend section of the configuration file.
type Config struct {
	// RootTitle names the root container. Empty uses the backend name.
	RootTitle string `mapstructure:"root_title"`

	// Searchable enables title search.
	Searchable bool `mapstructure:"searchable"`

	// Nodes are inserted in order; parents must precede their children.
	Nodes []NodeConfig `mapstructure:"nodes"`
}

// NodeConfig describes one catalog entry.
type NodeConfig struct {
	ID       string `mapstructure:"id"`
	Parent   string `mapstructure:"parent"`
	Title    string `mapstructure:"title"`
	Kind     string `mapstructure:"kind"`
	MIME     string `mapstructure:"mime"`
	URL      string `mapstructure:"url"`
	Artist   string `mapstructure:"artist"`
	Album    string `mapstructure:"album"`
	Genre    string `mapstructure:"genre"`
	Date     string `mapstructure:"date"`
	Size     int64  `mapstructure:"size"`
	Duration int64  `mapstructure:"duration"`
	Bitrate  int64  `mapstructure:"bitrate"`
	Width    int64  `mapstructure:"width"`
	Height   int64  `mapstructure:"height"`
}

// NewFromConfig builds a populated catalog.
func NewFromConfig(id, name string, cfg Config) (*Backend, error) {
	b := New(id, name, cfg.Searchable)
	if cfg.RootTitle != "" {
		b.SetRootTitle(cfg.RootTitle)
	}

	for i, nc := range cfg.Nodes {
		n, err := nc.node(id)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		if _, err := b.Add(nc.Parent, n); err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
	}
	return b, nil
}

func (nc NodeConfig) node(source string) (*media.Node, error) {
	n := media.NewNode(source, nc.ID, media.ParseKind(nc.Kind))
	n.SetTitle(nc.Title).
		SetString(media.KeyMIME, nc.MIME).
		SetString(media.KeyURL, nc.URL).
		SetString(media.KeyArtist, nc.Artist).
		SetString(media.KeyAlbum, nc.Album).
		SetString(media.KeyGenre, nc.Genre)

	if nc.Date != "" {
		t, err := time.Parse(time.RFC3339, nc.Date)
		if err != nil {
			if t, err = time.Parse(time.DateOnly, nc.Date); err != nil {
				return nil, fmt.Errorf("invalid date %q", nc.Date)
			}
		}
		n.SetTime(media.KeyPublicationDate, t)
	}

	for key, v := range map[media.Key]int64{
		media.KeySize:     nc.Size,
		media.KeyDuration: nc.Duration,
		media.KeyBitrate:  nc.Bitrate,
		media.KeyWidth:    nc.Width,
		media.KeyHeight:   nc.Height,
	} {
		if v > 0 {
			n.SetInt(key, v)
		}
	}
	return n, nil
}
