// Package assets implements the asset bundle contract from spec.md §6:
// a root directory listing bundles in assets.json, each holding named
// assets and ship/planetoid prototype definitions. Parsing the
// per-asset payload formats themselves is out of scope (spec.md
// Non-goals); this package only maintains the name/id index and raw
// byte storage plus prototype records, and watches the root for edits.
package assets

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/starhold/server/internal/logger"
)

// Index maps an asset's display name to its bytes and MIME type, and
// holds the prototype records a bundle's ships.json/planetoids.json
// define. Prototype field shape is intentionally opaque (json.RawMessage)
// since defining the full entity template schema is out of scope.
type Index struct {
	mu         sync.RWMutex
	byName     map[string]asset
	prototypes map[string]json.RawMessage
}

type asset struct {
	data []byte
	mime string
}

// ListEntry is one row of the /assets index response.
type ListEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newIndex() *Index {
	return &Index{
		byName:     make(map[string]asset),
		prototypes: make(map[string]json.RawMessage),
	}
}

// List returns every loaded asset's id/name pair, for the /assets
// endpoint.
func (idx *Index) List() []ListEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]ListEntry, 0, len(idx.byName))
	for name := range idx.byName {
		out = append(out, ListEntry{ID: name, Name: name})
	}
	return out
}

// Get returns an asset's bytes and MIME type by name.
func (idx *Index) Get(name string) (data []byte, mime string, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	a, ok := idx.byName[name]
	return a.data, a.mime, ok
}

// Prototype returns a raw prototype definition by name (e.g. a ship or
// planetoid template), for the simulation's spawn logic to unmarshal.
func (idx *Index) Prototype(name string) (json.RawMessage, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.prototypes[name]
	return p, ok
}

func (idx *Index) put(name, mime string, data []byte) {
	idx.mu.Lock()
	idx.byName[name] = asset{data: data, mime: mime}
	idx.mu.Unlock()
}

func (idx *Index) putPrototype(name string, raw json.RawMessage) {
	idx.mu.Lock()
	idx.prototypes[name] = raw
	idx.mu.Unlock()
}

func (idx *Index) reset() {
	idx.mu.Lock()
	idx.byName = make(map[string]asset)
	idx.prototypes = make(map[string]json.RawMessage)
	idx.mu.Unlock()
}

// bundleList is the root-level assets.json contract.
type bundleList struct {
	Bundles []string `json:"bundles"`
}

// Load reads root/assets.json and every listed bundle (a directory or a
// .zip archive), populating a fresh Index. Configuration errors
// (missing assets.json, a malformed definition file) are fatal at
// startup per spec.md §7.
func Load(root string) (*Index, error) {
	idx := newIndex()
	if err := loadInto(idx, root); err != nil {
		return nil, err
	}
	return idx, nil
}

func loadInto(idx *Index, root string) error {
	listPath := filepath.Join(root, "assets.json")
	data, err := os.ReadFile(listPath)
	if err != nil {
		return fmt.Errorf("assets: read %s: %w", listPath, err)
	}
	var list bundleList
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("assets: parse %s: %w", listPath, err)
	}

	idx.reset()
	for _, bundle := range list.Bundles {
		path := filepath.Join(root, bundle)
		var loadErr error
		if filepath.Ext(path) == ".zip" {
			loadErr = loadZipBundle(idx, path)
		} else {
			loadErr = loadDirBundle(idx, path)
		}
		if loadErr != nil {
			return fmt.Errorf("assets: load bundle %s: %w", bundle, loadErr)
		}
	}
	return nil
}

func loadDirBundle(idx *Index, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := loadBundleFile(idx, entry.Name(), func() ([]byte, error) {
			return os.ReadFile(path)
		}); err != nil {
			return err
		}
	}
	return nil
}

func loadZipBundle(idx *Index, path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for _, f := range r.File {
		f := f
		if err := loadBundleFile(idx, f.Name, func() ([]byte, error) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadBundleFile classifies a bundle member by name: asset.json
// describes a single named asset, its bytes inline as a base64 "data"
// field; ships.json/planetoids.json list prototype
// records; anything else is logged and ignored (spec.md §6: "Unknown
// definition files are logged and ignored").
func loadBundleFile(idx *Index, name string, read func() ([]byte, error)) error {
	switch name {
	case "asset.json":
		data, err := read()
		if err != nil {
			return err
		}
		var desc struct {
			Name string `json:"name"`
			MIME string `json:"mime"`
			Data []byte `json:"data"`
		}
		if err := json.Unmarshal(data, &desc); err != nil {
			return fmt.Errorf("malformed asset.json: %w", err)
		}
		idx.put(desc.Name, desc.MIME, desc.Data)
		return nil
	case "ships.json", "planetoids.json":
		data, err := read()
		if err != nil {
			return err
		}
		var records map[string]json.RawMessage
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("malformed %s: %w", name, err)
		}
		for protoName, raw := range records {
			idx.putPrototype(protoName, raw)
		}
		return nil
	default:
		logger.Warn("assets: ignoring unknown bundle file", "name", name)
		return nil
	}
}

// Watcher reloads the index whenever the bundle root changes on disk.
type Watcher struct {
	root string
	idx  *Index
}

func NewWatcher(root string, idx *Index) *Watcher {
	return &Watcher{root: root, idx: idx}
}

// Run watches root for filesystem events and reloads the index on each
// one, until stop is closed. Reload failures are logged and the
// previous index contents are kept.
func (w *Watcher) Run(stop <-chan struct{}) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("assets: new watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.root); err != nil {
		return fmt.Errorf("assets: watch %s: %w", w.root, err)
	}

	for {
		select {
		case <-stop:
			return nil
		case _, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			next := newIndex()
			if err := loadInto(next, w.root); err != nil {
				logger.Warn("assets: reload failed, keeping previous bundle", "err", err)
			} else {
				w.idx.mu.Lock()
				w.idx.byName, w.idx.prototypes = next.byName, next.prototypes
				w.idx.mu.Unlock()
				logger.Info("assets: bundle reloaded", "root", w.root)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("assets watch error", "err", err)
		}
	}
}
