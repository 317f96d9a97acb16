// Package classpath locates, loads, and indexes ClassFiles from a
// classpath, and maintains the class hierarchy (parent/child pointers
// and the interface-implementation relation) that pkg/rta mutates.
package classpath

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/vantage-dev/jvmrta/pkg/classfile"
)

// source identifies where a class's bytes come from: a loose .class file
// on disk, or an entry inside a .jar/.zip archive.
type source struct {
	diskPath string // set for loose files
	archive  string // set for archive entries
	entry    string // archive entry name, set for archive entries
}

// ClassPath indexes every class name reachable from a list of directory
// and archive locations, and lazily decodes class bodies on first use.
type ClassPath struct {
	locations []string

	mu      sync.Mutex
	sources map[string]source // class internal name -> where to read it

	bodies *xsync.Map[string, *classfile.ClassFile]

	hierarchy *Hierarchy
	hmu       sync.Mutex // guards Hierarchy mutation during eager ancestor loads

	logger *slog.Logger
}

// Open parses a classpath string (colon- or semicolon-separated, per the
// host OS convention callers pass in) and indexes every directory and
// archive it names. Indexing itself is parallel across locations; no
// class body is read until Load is called for it.
func Open(classpath string, logger *slog.Logger) (*ClassPath, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	locations := splitClasspath(classpath)
	cp := &ClassPath{
		locations: locations,
		sources:   make(map[string]source),
		bodies:    xsync.NewMap[string, *classfile.ClassFile](),
		hierarchy: NewHierarchy(),
		logger:    logger,
	}

	g := new(errgroup.Group)
	for _, loc := range locations {
		loc := loc
		g.Go(func() error { return cp.indexLocation(loc) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cp, nil
}

func splitClasspath(s string) []string {
	sep := ":"
	if strings.Contains(s, ";") {
		sep = ";"
	}
	var out []string
	for _, p := range strings.Split(s, sep) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (cp *ClassPath) indexLocation(loc string) error {
	info, err := os.Stat(loc)
	if err != nil {
		return fmt.Errorf("classpath entry %q: %w", loc, err)
	}
	if info.IsDir() {
		return cp.indexDir(loc)
	}
	switch strings.ToLower(filepath.Ext(loc)) {
	case ".jar", ".zip":
		return cp.indexArchive(loc)
	default:
		return fmt.Errorf("classpath entry %q: unsupported file type", loc)
	}
}

func (cp *ClassPath) indexDir(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".class") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.ToSlash(rel), ".class")
		cp.register(name, source{diskPath: path})
		return nil
	})
}

func (cp *ClassPath) indexArchive(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open archive %q: %w", path, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".class") {
			continue
		}
		name := strings.TrimSuffix(f.Name, ".class")
		cp.register(name, source{archive: path, entry: f.Name})
	}
	return nil
}

func (cp *ClassPath) register(name string, s source) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, exists := cp.sources[name]; exists {
		return // first entry on the classpath wins, per JVM classpath search order
	}
	cp.sources[name] = s
}

// Has reports whether a class name is indexed on this classpath, without
// loading its body.
func (cp *ClassPath) Has(name string) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	_, ok := cp.sources[name]
	return ok
}

// Load decodes and returns the ClassFile for name, caching the result.
// Concurrent callers that miss the cache for the same class may each
// decode it; all of them get the first result stored in the cache.
func (cp *ClassPath) Load(name string) (*classfile.ClassFile, error) {
	if cf, ok := cp.bodies.Load(name); ok {
		return cf, nil
	}
	cp.mu.Lock()
	src, ok := cp.sources[name]
	cp.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("class not found on classpath: %s", name)
	}

	r, closeFn, err := cp.openSource(src)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	cf, err := classfile.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse class %s: %w", name, err)
	}
	actual, _ := cp.bodies.LoadOrStore(name, cf)
	return actual, nil
}

func (cp *ClassPath) openSource(src source) (io.Reader, func(), error) {
	if src.diskPath != "" {
		f, err := os.Open(src.diskPath)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	}
	zr, err := zip.OpenReader(src.archive)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range zr.File {
		if f.Name == src.entry {
			rc, err := f.Open()
			if err != nil {
				zr.Close()
				return nil, nil, err
			}
			return rc, func() { rc.Close(); zr.Close() }, nil
		}
	}
	zr.Close()
	return nil, nil, fmt.Errorf("archive entry vanished: %s", src.entry)
}

// Hierarchy returns the class hierarchy arena this ClassPath populates
// on demand via EnsureNode.
func (cp *ClassPath) Hierarchy() *Hierarchy { return cp.hierarchy }

// Close releases resources held by the classpath handle. ClassPath opens
// archives only for the duration of a single Load call, so this is
// currently a no-op; it exists so callers can acquire/release with a
// single defer regardless of future archive-handle caching.
func (cp *ClassPath) Close() error { return nil }

// EnsureNode loads the class (and, eagerly, every superclass and
// directly/transitively-declared interface not yet indexed) and returns
// its Node. This is the "on first visit of a class, load it eagerly with
// all superclasses and interfaces" step the RTA driver depends on.
func (cp *ClassPath) EnsureNode(name string) (*Node, error) {
	cp.hmu.Lock()
	defer cp.hmu.Unlock()
	return cp.ensureNodeLocked(name)
}

func (cp *ClassPath) ensureNodeLocked(name string) (*Node, error) {
	if n := cp.hierarchy.Node(name); n != nil {
		return n, nil
	}
	cf, err := cp.Load(name)
	if err != nil {
		return nil, err
	}

	n := &Node{
		Name:                   name,
		IsInterface:            cf.IsInterface(),
		AccessFlags:            cf.AccessFlags,
		SuperIdx:                -1,
		Methods:                cf.Methods,
		Fields:                 cf.Fields,
		InstantiatedSubclasses: make(map[string]int),
	}
	idx := cp.hierarchy.AddNode(n)

	if superName := cf.SuperClassName(); superName != "" {
		superNode, err := cp.ensureNodeLocked(superName)
		if err != nil {
			cp.logger.Warn("classpath: super class unresolved", "class", name, "super", superName, "err", err)
		} else {
			n.SuperIdx = cp.hierarchy.Index(superNode.Name)
		}
	}
	for _, ifaceName := range cf.InterfaceNames() {
		ifaceNode, err := cp.ensureNodeLocked(ifaceName)
		if err != nil {
			cp.logger.Warn("classpath: interface unresolved", "class", name, "interface", ifaceName, "err", err)
			continue
		}
		n.InterfaceIdxs = append(n.InterfaceIdxs, cp.hierarchy.Index(ifaceNode.Name))
	}
	cp.hierarchy.Link(idx)
	return n, nil
}
