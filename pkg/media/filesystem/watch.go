package filesystem

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/marmos91/ms2bridge/internal/logger"
	"github.com/marmos91/ms2bridge/pkg/media"
)

func (b *Backend) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	b.watcher = w

	if err := b.watchTree(b.root); err != nil {
		return err
	}

	b.wg.Add(1)
	go b.watchLoop()
	return nil
}

// watchTree adds dir and every visible directory below it. fsnotify does not
// watch recursively.
func (b *Backend) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != b.root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return b.watcher.Add(p)
	})
}

func (b *Backend) watchLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleEvent(ev)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Filesystem watcher on %s: %v", b.root, err)
		}
	}
}

func (b *Backend) handleEvent(ev fsnotify.Event) {
	if ev.Has(fsnotify.Chmod) {
		return
	}
	rel, ok := b.rel(ev.Name)
	if !ok || rel == "" || hidden(path.Base(rel)) {
		return
	}

	info, statErr := os.Stat(ev.Name)
	exists := statErr == nil

	if exists && info.IsDir() && ev.Has(fsnotify.Create) {
		if err := b.watchTree(ev.Name); err != nil {
			logger.Warn("Failed to watch %s: %v", ev.Name, err)
		}
	}

	if b.index != nil {
		b.reindex(rel, info, exists)
	}
	if !exists {
		if err := b.cache.delete(rel); err != nil {
			logger.Debug("Failed to drop cached metadata of %s: %v", rel, err)
		}
	}

	logger.Debug("Filesystem change %s on %s", ev.Op, rel)
	b.Publish(media.Change{Path: b.chain(path.Dir(rel))})
}

func (b *Backend) reindex(rel string, info fs.FileInfo, exists bool) {
	if !exists {
		// A removed directory takes its files with it; they are pruned lazily
		// by lookup failures in Search.
		if err := b.index.delete(rel); err != nil {
			logger.Debug("Failed to unindex %s: %v", rel, err)
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	rec, err := b.inspect(rel, info)
	if err != nil || kindOf(rec.MIME) == media.KindUnknown {
		return
	}
	if err := b.index.put(rel, rec); err != nil {
		logger.Debug("Failed to index %s: %v", rel, err)
	}
}

// chain returns the container nodes from the first child of the root down
// to dir. The root yields an empty chain.
func (b *Backend) chain(dir string) []*media.Node {
	if dir == "." || dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	out := make([]*media.Node, 0, len(parts))
	for i := range parts {
		rel := strings.Join(parts[:i+1], "/")
		out = append(out, media.NewNode(b.id, rel, media.KindContainer).SetTitle(parts[i]))
	}
	return out
}
