package filesystem

// Config is the filesystem backend section of the configuration file.
type Config struct {
	// Root is the directory exposed as the root container.
	Root string `mapstructure:"root" validate:"required"`

	// IncludeAll exposes files that are not audio, video or images.
	IncludeAll bool `mapstructure:"include_all"`

	// Search enables full text search over titles, artists, albums and genres.
	Search bool `mapstructure:"search"`

	// IndexPath persists the search index. Empty keeps it in memory.
	IndexPath string `mapstructure:"index_path"`

	// CachePath persists extracted file metadata. Empty keeps it in memory.
	CachePath string `mapstructure:"cache_path"`

	// Watch raises change notifications when the tree is modified.
	Watch bool `mapstructure:"watch"`
}
