// Package resolver maps request paths onto concrete files on disk.
//
// Resolution walks a fixed ladder: the public directory, the configured
// source-root mounts (rewriting the request into the project root), sibling
// extension substitution for neutral script requests, and finally SPA-style
// fallback routing onto HTML documents. The first rung that produces an
// existing regular file wins.
package resolver

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/unbundle/unbundle/internal/config"
)

// ServedScriptExt is the canonical extension source files are served under.
const ServedScriptExt = ".js"

// sourceExts are the sibling extensions probed, in priority order, when a
// neutral script request has no direct file hit under a source mount.
var sourceExts = []string{".ts", ".jsx", ".tsx"}

// ResolvedFile is the concrete on-disk match for a request.
type ResolvedFile struct {
	// Path is the file that satisfies the request.
	Path string
	// Key is the cache key: the pre-substitution candidate path, so a
	// request for app.js served from app.tsx is cached under app.js.
	Key string
	// Extension is the extension the response is served as.
	Extension string
	// IsRoute marks a match reached via fallback routing rather than a
	// direct file hit; routed documents get the reload snippet appended
	// and announce a new browsing session.
	IsRoute bool
}

// Resolver resolves request paths against the project's serving roots.
type Resolver struct {
	root       string
	publicRoot string
	fallback   string
	mounts     []config.Mount
	modulesDir string
}

// New creates a resolver for the given serving configuration. root must be
// an absolute path to the project root.
func New(root string, serve config.ServeConfig) *Resolver {
	return &Resolver{
		root:       root,
		publicRoot: filepath.Join(root, serve.PublicDir),
		fallback:   serve.Fallback,
		mounts:     serve.Mounts,
		modulesDir: serve.ModulesDir,
	}
}

// Candidate computes the on-disk candidate for a request path from the
// mount table alone, without touching the filesystem. The returned path is
// the cache key a non-routed response is stored under, which lets the
// request handler check the cache before any extension probing happens.
func (r *Resolver) Candidate(requestPath string) (candidate string, isSrc bool) {
	cleaned := normalize(requestPath)

	// Default candidate lives under the public root
	candidate = filepath.Join(r.publicRoot, filepath.FromSlash(cleaned))

	// Mounted prefixes resolve against the project root instead. The loop
	// never short-circuits: with duplicate prefixes the last mount wins.
	for _, mount := range r.mounts {
		if !strings.HasPrefix(cleaned, mount.Prefix) {
			continue
		}
		rewritten := mount.Dir() + strings.TrimPrefix(cleaned, mount.Prefix)
		candidate = filepath.Join(r.root, filepath.FromSlash(rewritten))
		isSrc = true
	}

	return candidate, isSrc
}

// Resolve maps a request path to a file on disk. ok is false when no
// candidate exists.
func (r *Resolver) Resolve(requestPath string) (ResolvedFile, bool) {
	cleaned := normalize(requestPath)
	candidate, isSrc := r.Candidate(requestPath)

	if isRegularFile(candidate) {
		return ResolvedFile{
			Path:      candidate,
			Key:       candidate,
			Extension: filepath.Ext(candidate),
		}, true
	}

	// A neutral script request under a source mount may be satisfied by a
	// sibling source file awaiting transformation.
	if isSrc && filepath.Ext(candidate) == ServedScriptExt {
		base := strings.TrimSuffix(candidate, ServedScriptExt)
		for _, ext := range sourceExts {
			sibling := base + ext
			if isRegularFile(sibling) {
				return ResolvedFile{
					Path:      sibling,
					Key:       candidate,
					Extension: ServedScriptExt,
				}, true
			}
		}
	}

	// Extensionless requests fall back to HTML routing
	if filepath.Ext(cleaned) == "" {
		for _, probe := range []string{
			candidate + ".html",
			filepath.Join(candidate, "index.html"),
			candidate + "index.html", // legacy: no separator
			filepath.Join(r.publicRoot, filepath.FromSlash(r.fallback)),
		} {
			if isRegularFile(probe) {
				return ResolvedFile{
					Path:      probe,
					Key:       probe,
					Extension: ".html",
					IsRoute:   true,
				}, true
			}
		}
	}

	return ResolvedFile{}, false
}

// CacheKeys returns the cache keys to invalidate for a changed file. A
// source file under the project root maps onto the served-script key it
// would have been cached under; the raw path is always included since
// direct hits cache under it.
func (r *Resolver) CacheKeys(changedPath string) []string {
	keys := []string{changedPath}

	if !strings.HasPrefix(changedPath, r.root+string(filepath.Separator)) {
		return keys
	}

	ext := filepath.Ext(changedPath)
	for _, sourceExt := range sourceExts {
		if ext == sourceExt {
			keys = append(keys, strings.TrimSuffix(changedPath, ext)+ServedScriptExt)
			break
		}
	}

	return keys
}

// IsModulePath reports whether p lies under the pre-resolved third-party
// module directory, whose contents are served verbatim.
func (r *Resolver) IsModulePath(p string) bool {
	sep := string(filepath.Separator)
	return strings.Contains(p, sep+r.modulesDir+sep)
}

// Root returns the absolute project root.
func (r *Resolver) Root() string {
	return r.root
}

// PublicRoot returns the absolute public directory.
func (r *Resolver) PublicRoot() string {
	return r.publicRoot
}

// normalize cleans a request path into a rooted, slash-separated form.
func normalize(requestPath string) string {
	if requestPath == "" {
		return "/"
	}
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}

	cleaned := path.Clean(requestPath)

	// path.Clean drops the trailing slash that distinguishes a directory
	// request; the routing probes handle both forms, so that is fine.
	return cleaned
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
