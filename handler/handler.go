// Package handler manages collections of tags. A Handler indexes
// definitions by id and file extension, bulk loads every matching file
// under a directory, and writes edited tags back while skipping files
// whose serialized bytes have not changed.
package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/binstruct/bindef"
	"github.com/binstruct/bindef/binio"
	"github.com/binstruct/bindef/descfile"
	"github.com/binstruct/bindef/field"
)

// Handler tracks definitions and the tags loaded with them.
type Handler struct {
	mu    sync.RWMutex
	defs  map[string]*field.BlockDef
	byExt map[string]*field.BlockDef
	tags  map[string]*bindef.Tag

	// sums holds the digest of each tag's bytes as last read from or
	// written to disk, so unchanged tags can skip their write.
	sums map[string][32]byte

	log *logrus.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger replaces the default logger.
func WithLogger(l *logrus.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// New returns an empty Handler.
func New(opts ...Option) *Handler {
	h := &Handler{
		defs:  make(map[string]*field.BlockDef),
		byExt: make(map[string]*field.BlockDef),
		tags:  make(map[string]*bindef.Tag),
		sums:  make(map[string][32]byte),
		log:   logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// AddDef registers a definition. Definitions with errors, duplicate ids or
// duplicate extensions are rejected.
func (h *Handler) AddDef(bd *field.BlockDef) error {
	if bd.Err != nil {
		return fmt.Errorf("%w: definition %q is unusable", binio.ErrDescriptor, bd.ID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.defs[bd.ID]; ok {
		return fmt.Errorf("%w: definition %q already registered", binio.ErrDescriptor, bd.ID)
	}
	if bd.Ext != "" {
		if prev, ok := h.byExt[bd.Ext]; ok {
			return fmt.Errorf("%w: extension %q already handled by %q",
				binio.ErrDescriptor, bd.Ext, prev.ID)
		}
		h.byExt[bd.Ext] = bd
	}
	h.defs[bd.ID] = bd
	return nil
}

// LoadDefs walks dir and registers every definition file it finds. Files
// that fail to load are logged and collected into the returned error; the
// rest still register.
func (h *Handler) LoadDefs(dir string) (int, error) {
	var loaded int
	var errs []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isDefFile(path) {
			return nil
		}
		bd, err := descfile.Load(path, nil)
		if err == nil {
			err = h.AddDef(bd)
		}
		if err != nil {
			h.log.WithField("path", path).WithError(err).Warn("definition rejected")
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		h.log.WithFields(logrus.Fields{"path": path, "id": bd.ID}).Debug("definition loaded")
		loaded++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return loaded, errors.Join(errs...)
}

func isDefFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".jsonc":
		return true
	}
	return false
}

// Def returns the definition registered under id, or nil.
func (h *Handler) Def(id string) *field.BlockDef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.defs[id]
}

// DefForPath returns the definition handling path's extension, or nil.
func (h *Handler) DefForPath(path string) *field.BlockDef {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byExt[strings.ToLower(filepath.Ext(path))]
}

// LoadTag loads a single file with the definition its extension maps to.
func (h *Handler) LoadTag(path string) (*bindef.Tag, error) {
	bd := h.DefForPath(path)
	if bd == nil {
		return nil, fmt.Errorf("%w: no definition handles %q",
			binio.ErrDescriptor, filepath.Ext(path))
	}
	tag, err := bindef.Load(bd, path, nil)
	if err != nil {
		return nil, err
	}
	// Digest the same serialization WriteAll compares against, so a tag
	// that is loaded and never touched skips its write.
	out, err := tag.Serialize(&bindef.SerializeOptions{CalcPointers: true})
	if err == nil {
		h.mu.Lock()
		h.sums[path] = blake3.Sum256(out)
		h.mu.Unlock()
	}
	h.mu.Lock()
	h.tags[path] = tag
	h.mu.Unlock()
	return tag, nil
}

// LoadDir walks dir and loads every file whose extension a registered
// definition handles. Files that fail to parse are logged and collected
// into the returned error; the rest still load.
func (h *Handler) LoadDir(dir string) (int, error) {
	var loaded int
	var errs []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || h.DefForPath(path) == nil {
			return nil
		}
		if _, err := h.LoadTag(path); err != nil {
			h.log.WithField("path", path).WithError(err).Warn("tag failed to load")
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		loaded++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return loaded, errors.Join(errs...)
}

// Tag returns the loaded tag for path, or nil.
func (h *Handler) Tag(path string) *bindef.Tag {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tags[path]
}

// Tags returns every loaded tag, ordered by path.
func (h *Handler) Tags() []*bindef.Tag {
	h.mu.RLock()
	defer h.mu.RUnlock()
	paths := make([]string, 0, len(h.tags))
	for p := range h.tags {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]*bindef.Tag, 0, len(paths))
	for _, p := range paths {
		out = append(out, h.tags[p])
	}
	return out
}

// Remove forgets the tag loaded from path without touching the file.
func (h *Handler) Remove(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tags, path)
	delete(h.sums, path)
}

// WriteAll writes every loaded tag whose serialized bytes differ from what
// was last on disk, and reports how many files were written. Failures are
// logged and collected; the rest still write.
func (h *Handler) WriteAll() (int, error) {
	var written int
	var errs []error
	for _, tag := range h.Tags() {
		ok, err := h.writeTag(tag)
		if err != nil {
			h.log.WithField("path", tag.Filepath).WithError(err).Error("tag failed to write")
			errs = append(errs, fmt.Errorf("%s: %w", tag.Filepath, err))
			continue
		}
		if ok {
			written++
		}
	}
	return written, errors.Join(errs...)
}

func (h *Handler) writeTag(tag *bindef.Tag) (bool, error) {
	out, err := tag.Serialize(&bindef.SerializeOptions{CalcPointers: true})
	if err != nil {
		return false, err
	}
	sum := blake3.Sum256(out)

	h.mu.RLock()
	prev, known := h.sums[tag.Filepath]
	h.mu.RUnlock()
	if known && prev == sum {
		h.log.WithField("path", tag.Filepath).Debug("tag unchanged, skipping write")
		return false, nil
	}

	if err := tag.Write("", nil); err != nil {
		return false, err
	}
	h.mu.Lock()
	h.sums[tag.Filepath] = sum
	h.mu.Unlock()
	h.log.WithField("path", tag.Filepath).Info("tag written")
	return true, nil
}
