// Package filesystem exposes a local directory tree as a media backend.
//
// Directories are containers and media files are items. The node ID of an
// entry is its slash separated path relative to the configured root; the root
// itself has the empty ID. File metadata (MIME type, audio tags, image
// dimensions) is extracted on first sight and cached in BadgerDB until the
// file's size or modification time changes. When search is enabled every
// media file is indexed with bleve; when watching is enabled modifications
// are reported through Watch.
package filesystem

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"github.com/fsnotify/fsnotify"
	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/media"
)

// Backend serves a directory tree.
type Backend struct {
	media.Notifier

	id   string
	name string
	root string
	cfg  Config

	cache *cache
	index *index

	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// New opens the tree at cfg.Root. With search enabled the whole tree is
// scanned and indexed before New returns.
func New(id, name string, cfg Config) (*Backend, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", cfg.Root, err)
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}

	c, err := openCache(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		id:    id,
		name:  name,
		root:  root,
		cfg:   cfg,
		cache: c,
		stop:  make(chan struct{}),
	}

	if cfg.Search {
		if b.index, err = openIndex(cfg.IndexPath); err != nil {
			_ = c.close()
			return nil, err
		}
		if err := b.scan(); err != nil {
			_ = b.Close()
			return nil, err
		}
	}

	if cfg.Watch {
		if err := b.startWatcher(); err != nil {
			_ = b.Close()
			return nil, err
		}
	}

	logger.Info("Filesystem backend %s serving %s (search=%t, watch=%t)", id, root, cfg.Search, cfg.Watch)
	return b, nil
}

func (b *Backend) ID() string   { return b.id }
func (b *Backend) Name() string { return b.name }

func (b *Backend) Operations() media.Operations {
	ops := media.OpResolve | media.OpBrowse
	if b.index != nil {
		ops |= media.OpSearch
	}
	return ops
}

func (b *Backend) Close() error {
	var firstErr error
	b.closeOnce.Do(func() {
		close(b.stop)
		if b.watcher != nil {
			if err := b.watcher.Close(); err != nil {
				firstErr = err
			}
		}
		b.wg.Wait()

		if b.index != nil {
			if err := b.index.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := b.cache.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// abs maps a node ID to a path inside the root. Hidden elements are
// refused and symlinks must resolve inside the root.
func (b *Backend) abs(rel string) (string, error) {
	if rel == "" {
		return b.root, nil
	}
	clean := path.Clean("/" + rel)[1:]
	if clean != rel || clean == "" {
		return "", fmt.Errorf("invalid node id %q", rel)
	}
	for _, elem := range strings.Split(clean, "/") {
		if hidden(elem) {
			return "", fmt.Errorf("node %q: %w", rel, media.ErrNotFound)
		}
	}

	p := filepath.Join(b.root, filepath.FromSlash(clean))
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("node %q: %w", rel, media.ErrNotFound)
		}
		return "", err
	}
	if r, ok := b.rel(resolved); !ok || r == "" {
		return "", fmt.Errorf("node %q resolves outside the root: %w", rel, media.ErrNotFound)
	}
	return p, nil
}

// rel maps an absolute path inside the root to a node ID.
func (b *Backend) rel(abs string) (string, bool) {
	r, err := filepath.Rel(b.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return "", true
	}
	return filepath.ToSlash(r), true
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func kindOf(mime string) media.Kind {
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return media.KindAudio
	case strings.HasPrefix(mime, "video/"):
		return media.KindVideo
	case strings.HasPrefix(mime, "image/"):
		return media.KindImage
	default:
		return media.KindUnknown
	}
}

// inspect returns the metadata record of a regular file, extracting it if
// the cached copy is missing or stale.
func (b *Backend) inspect(rel string, info fs.FileInfo) (*record, error) {
	mtime := info.ModTime().UnixNano()
	if rec, ok := b.cache.get(rel, info.Size(), mtime); ok {
		return rec, nil
	}

	abs, err := b.abs(rel)
	if err != nil {
		return nil, err
	}
	rec, err := extract(abs)
	if err != nil {
		return nil, err
	}
	rec.Size = info.Size()
	rec.ModTime = mtime
	if rec.Title == "" {
		base := path.Base(rel)
		rec.Title = strings.TrimSuffix(base, path.Ext(base))
	}

	if err := b.cache.put(rel, rec); err != nil {
		logger.Warn("Failed to cache metadata of %s: %v", rel, err)
	}
	return rec, nil
}

func extract(abs string) (*record, error) {
	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to detect type of %s: %w", abs, err)
	}
	mime, _, _ := strings.Cut(mt.String(), ";")
	rec := &record{MIME: mime}

	switch kindOf(mime) {
	case media.KindAudio:
		readTags(abs, rec)
	case media.KindImage:
		readDimensions(abs, rec)
	}
	return rec, nil
}

// readTags fills rec from embedded audio tags. Files without tags keep their
// file name as title.
func readTags(abs string, rec *record) {
	f, err := os.Open(abs)
	if err != nil {
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		logger.Debug("No tags in %s: %v", abs, err)
		return
	}
	rec.Title = m.Title()
	rec.Artist = m.Artist()
	if rec.Artist == "" {
		rec.Artist = m.AlbumArtist()
	}
	rec.Album = m.Album()
	rec.Genre = m.Genre()
	rec.Year = m.Year()
}

func readDimensions(abs string, rec *record) {
	f, err := os.Open(abs)
	if err != nil {
		return
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return
	}
	rec.Width, rec.Height = cfg.Width, cfg.Height
}

// describe builds the node for the entry rel. It reports false for entries
// the backend does not expose.
func (b *Backend) describe(rel string, info fs.FileInfo) (*media.Node, bool) {
	if info.IsDir() {
		n := media.NewNode(b.id, rel, media.KindContainer)
		if rel != "" {
			n.SetTitle(info.Name())
		}
		if count, err := b.countVisible(rel); err == nil {
			n.SetInt(media.KeyChildCount, int64(count))
		}
		n.SetTime(media.KeyPublicationDate, info.ModTime())
		return n, true
	}
	if !info.Mode().IsRegular() {
		return nil, false
	}

	rec, err := b.inspect(rel, info)
	if err != nil {
		logger.Debug("Skipping %s: %v", rel, err)
		return nil, false
	}
	kind := kindOf(rec.MIME)
	if kind == media.KindUnknown && !b.cfg.IncludeAll {
		return nil, false
	}
	abs, _ := b.abs(rel)

	n := media.NewNode(b.id, rel, kind).
		SetTitle(rec.Title).
		SetString(media.KeyMIME, rec.MIME).
		SetString(media.KeyURL, (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()).
		SetString(media.KeyArtist, rec.Artist).
		SetString(media.KeyAlbum, rec.Album).
		SetString(media.KeyGenre, rec.Genre).
		SetInt(media.KeySize, rec.Size).
		SetTime(media.KeyPublicationDate, info.ModTime())
	if rec.Width > 0 && rec.Height > 0 {
		n.SetInt(media.KeyWidth, int64(rec.Width)).SetInt(media.KeyHeight, int64(rec.Height))
	}
	return n, true
}

// entries lists the visible children of the directory rel in name order.
func (b *Backend) entries(rel string) ([]*media.Node, error) {
	abs, err := b.abs(rel)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory %q: %w", rel, media.ErrNotFound)
		}
		return nil, err
	}

	out := make([]*media.Node, 0, len(dirents))
	for _, d := range dirents {
		if hidden(d.Name()) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		if n, ok := b.describe(path.Join(rel, d.Name()), info); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// countVisible counts the children of rel without describing subdirectories.
func (b *Backend) countVisible(rel string) (int, error) {
	abs, err := b.abs(rel)
	if err != nil {
		return 0, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, d := range dirents {
		if hidden(d.Name()) {
			continue
		}
		if d.IsDir() {
			count++
			continue
		}
		if b.cfg.IncludeAll && d.Type().IsRegular() {
			count++
			continue
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if rec, err := b.inspect(path.Join(rel, d.Name()), info); err == nil && kindOf(rec.MIME) != media.KindUnknown {
			count++
		}
	}
	return count, nil
}

func (b *Backend) lookup(rel string) (*media.Node, error) {
	abs, err := b.abs(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("node %q: %w", rel, media.ErrNotFound)
		}
		return nil, err
	}
	n, ok := b.describe(rel, info)
	if !ok {
		return nil, fmt.Errorf("node %q: %w", rel, media.ErrNotFound)
	}
	return n, nil
}

func (b *Backend) Resolve(ctx context.Context, node *media.Node, keys []media.Key, cb media.ResolveFunc) media.Operation {
	return media.ResolveAsync(ctx, func(context.Context) (*media.Node, error) {
		return b.lookup(node.ID)
	}, cb)
}

func (b *Backend) Browse(ctx context.Context, container *media.Node, keys []media.Key, opts media.Options, cb media.BrowseFunc) media.Operation {
	return media.Stream(ctx, opts, func(context.Context) ([]*media.Node, error) {
		return b.entries(container.ID)
	}, cb)
}

// Search runs query against the index using bleve's query string syntax.
// The window is applied by the index.
func (b *Backend) Search(ctx context.Context, query string, keys []media.Key, opts media.Options, cb media.BrowseFunc) media.Operation {
	return media.Stream(ctx, media.Options{}, func(ctx context.Context) ([]*media.Node, error) {
		if b.index == nil {
			return nil, media.ErrUnsupported
		}
		paths, err := b.index.search(query, int(opts.Skip), int(opts.Count))
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}

		out := make([]*media.Node, 0, len(paths))
		for _, rel := range paths {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			n, err := b.lookup(rel)
			if err != nil {
				continue
			}
			out = append(out, n)
		}
		return out, nil
	}, cb)
}

// scan indexes every media file below the root.
func (b *Backend) scan() error {
	recs := make(map[string]*record)
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if p != b.root && hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, ok := b.rel(p)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rec, err := b.inspect(rel, info)
		if err != nil || kindOf(rec.MIME) == media.KindUnknown {
			return nil
		}
		recs[rel] = rec
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", b.root, err)
	}
	if err := b.index.putBatch(recs); err != nil {
		return fmt.Errorf("failed to index %s: %w", b.root, err)
	}
	logger.Debug("Indexed %d files below %s", len(recs), b.root)
	return nil
}
