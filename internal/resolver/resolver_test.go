package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbundle/unbundle/internal/config"
)

func writeFile(t *testing.T, root string, parts ...string) string {
	t.Helper()
	p := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("content of "+filepath.Base(p)), 0o644))
	return p
}

func testServeConfig(mounts ...config.Mount) config.ServeConfig {
	return config.ServeConfig{
		PublicDir:  "public",
		Fallback:   "index.html",
		ModulesDir: "web_modules",
		Mounts:     mounts,
	}
}

func TestResolve_DirectPublicHit(t *testing.T) {
	root := t.TempDir()
	styles := writeFile(t, root, "public", "styles.css")

	r := New(root, testServeConfig())

	resolved, ok := r.Resolve("/styles.css")
	require.True(t, ok)
	assert.Equal(t, styles, resolved.Path)
	assert.Equal(t, styles, resolved.Key)
	assert.Equal(t, ".css", resolved.Extension)
	assert.False(t, resolved.IsRoute)
}

func TestResolve_MountRewrite(t *testing.T) {
	root := t.TempDir()
	appJS := writeFile(t, root, "src", "components", "app.js")

	r := New(root, testServeConfig(config.Mount{Prefix: "/components/", RewriteTo: "/src/components/"}))

	resolved, ok := r.Resolve("/components/app.js")
	require.True(t, ok)
	assert.Equal(t, appJS, resolved.Path)
	assert.False(t, resolved.IsRoute)
}

func TestResolve_ExtensionSubstitution(t *testing.T) {
	// Scenario: /components/app.js mounted onto /src/components/, where only
	// app.tsx exists on disk. The resolver must return app.tsx while keeping
	// the cache key on app.js.
	root := t.TempDir()
	appTSX := writeFile(t, root, "src", "components", "app.tsx")

	r := New(root, testServeConfig(config.Mount{Prefix: "/components/", RewriteTo: "/src/components/"}))

	resolved, ok := r.Resolve("/components/app.js")
	require.True(t, ok)
	assert.Equal(t, appTSX, resolved.Path)
	assert.Equal(t, filepath.Join(root, "src", "components", "app.js"), resolved.Key)
	assert.Equal(t, ".js", resolved.Extension)
	assert.False(t, resolved.IsRoute)
}

func TestResolve_SubstitutionPriority(t *testing.T) {
	// .ts beats .jsx and .tsx when several siblings exist
	root := t.TempDir()
	appTS := writeFile(t, root, "src", "app.ts")
	writeFile(t, root, "src", "app.jsx")
	writeFile(t, root, "src", "app.tsx")

	r := New(root, testServeConfig(config.Mount{Prefix: "/src/"}))

	resolved, ok := r.Resolve("/src/app.js")
	require.True(t, ok)
	assert.Equal(t, appTS, resolved.Path)
}

func TestResolve_NoSubstitutionOutsideMounts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "public", "vendor.ts")

	r := New(root, testServeConfig())

	_, ok := r.Resolve("/vendor.js")
	assert.False(t, ok, "extension substitution only applies under source mounts")
}

func TestResolve_DuplicateMountLastWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src", "util.js")
	rewritten := writeFile(t, root, "lib", "util.js")

	r := New(root, testServeConfig(
		config.Mount{Prefix: "/src/"},
		config.Mount{Prefix: "/src/", RewriteTo: "/lib/"},
	))

	resolved, ok := r.Resolve("/src/util.js")
	require.True(t, ok)
	assert.Equal(t, rewritten, resolved.Path, "later mount registration wins for duplicate prefixes")
}

func TestResolve_RoutePriority(t *testing.T) {
	t.Run("path.html beats directory index and fallback", func(t *testing.T) {
		root := t.TempDir()
		aboutHTML := writeFile(t, root, "public", "about.html")
		writeFile(t, root, "public", "about", "index.html")
		writeFile(t, root, "public", "index.html")

		r := New(root, testServeConfig())

		resolved, ok := r.Resolve("/about")
		require.True(t, ok)
		assert.Equal(t, aboutHTML, resolved.Path)
		assert.True(t, resolved.IsRoute)
		assert.Equal(t, ".html", resolved.Extension)
	})

	t.Run("directory index beats fallback", func(t *testing.T) {
		root := t.TempDir()
		dirIndex := writeFile(t, root, "public", "about", "index.html")
		writeFile(t, root, "public", "index.html")

		r := New(root, testServeConfig())

		resolved, ok := r.Resolve("/about")
		require.True(t, ok)
		assert.Equal(t, dirIndex, resolved.Path)
		assert.True(t, resolved.IsRoute)
	})

	t.Run("fallback document catches unknown routes", func(t *testing.T) {
		root := t.TempDir()
		fallback := writeFile(t, root, "public", "index.html")

		r := New(root, testServeConfig())

		resolved, ok := r.Resolve("/deeply/nested/route")
		require.True(t, ok)
		assert.Equal(t, fallback, resolved.Path)
		assert.True(t, resolved.IsRoute)
	})

	t.Run("requests with an extension never route", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "public", "index.html")

		r := New(root, testServeConfig())

		_, ok := r.Resolve("/missing.png")
		assert.False(t, ok)
	})
}

func TestResolve_RootRequest(t *testing.T) {
	root := t.TempDir()
	index := writeFile(t, root, "public", "index.html")

	r := New(root, testServeConfig())

	resolved, ok := r.Resolve("/")
	require.True(t, ok)
	assert.Equal(t, index, resolved.Path)
	assert.True(t, resolved.IsRoute)
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	r := New(root, testServeConfig())

	_, ok := r.Resolve("/nothing.js")
	assert.False(t, ok)
}

func TestCacheKeys(t *testing.T) {
	root := t.TempDir()
	r := New(root, testServeConfig())

	t.Run("source file under root maps onto served key", func(t *testing.T) {
		changed := filepath.Join(root, "src", "app.tsx")
		keys := r.CacheKeys(changed)
		assert.Contains(t, keys, changed)
		assert.Contains(t, keys, filepath.Join(root, "src", "app.js"))
	})

	t.Run("non-source file keeps its own key only", func(t *testing.T) {
		changed := filepath.Join(root, "public", "index.html")
		keys := r.CacheKeys(changed)
		assert.Equal(t, []string{changed}, keys)
	})

	t.Run("file outside root is untouched", func(t *testing.T) {
		keys := r.CacheKeys("/elsewhere/app.tsx")
		assert.Equal(t, []string{"/elsewhere/app.tsx"}, keys)
	})
}

func TestIsModulePath(t *testing.T) {
	root := t.TempDir()
	r := New(root, testServeConfig())

	assert.True(t, r.IsModulePath(filepath.Join(root, "web_modules", "preact.js")))
	assert.False(t, r.IsModulePath(filepath.Join(root, "src", "app.js")))
}
