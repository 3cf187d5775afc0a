package watcher

import (
	"io/fs"
	"path/filepath"
	"time"
)

// poller detects object changes by comparing directory snapshots. It is used
// when fsnotify is unavailable.
type poller struct {
	root  string
	opts  Options
	state map[string]fileSnapshot
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

func newPoller(root string, opts Options) *poller {
	return &poller{root: root, opts: opts, state: make(map[string]fileSnapshot)}
}

// baseline records the current state without reporting it.
func (p *poller) baseline() {
	p.state = p.snapshot()
}

// poll reports changes since the previous snapshot.
func (p *poller) poll(emit func(ObjectEvent)) {
	now := time.Now()
	current := p.snapshot()

	for path, snap := range current {
		prev, ok := p.state[path]
		switch {
		case !ok:
			emit(ObjectEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			emit(ObjectEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path := range p.state {
		if _, ok := current[path]; !ok {
			emit(ObjectEvent{Path: path, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
}

func (p *poller) snapshot() map[string]fileSnapshot {
	out := make(map[string]fileSnapshot)
	_ = filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == "." {
			return nil
		}
		if p.opts.ignored(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[path] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	return out
}
