package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbundle/unbundle/internal/bus"
	"github.com/unbundle/unbundle/internal/errors"
)

func newTestTransformer(t *testing.T) (*Transformer, *bus.Bus) {
	t.Helper()
	b := bus.New()
	options, err := LoadOptions(t.TempDir())
	require.NoError(t, err)
	return New(b, options), b
}

func drainEvents(ch <-chan bus.Event) []bus.Event {
	var events []bus.Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestTransform_TypeScript(t *testing.T) {
	tr, _ := newTestTransformer(t)

	code, err := tr.Transform("src/app.ts", []byte("const n: number = 1\nexport default n"))
	require.NoError(t, err)

	output := string(code)
	assert.Contains(t, output, "const n = 1")
	assert.NotContains(t, output, ": number", "type annotations must be stripped")
}

func TestTransform_TSX(t *testing.T) {
	tr, _ := newTestTransformer(t)

	code, err := tr.Transform("src/app.tsx", []byte("export const App = () => <div>hi</div>"))
	require.NoError(t, err)

	assert.Contains(t, string(code), "React.createElement", "default JSX factory applies")
}

func TestTransform_JSXInPlainJS(t *testing.T) {
	tr, _ := newTestTransformer(t)

	_, err := tr.Transform("src/widget.js", []byte("export const W = () => <span/>"))
	assert.NoError(t, err, "plain .js files may carry JSX")
}

func TestTransform_FailureRecordsPending(t *testing.T) {
	tr, b := newTestTransformer(t)
	events, cancel := b.Subscribe()
	defer cancel()

	_, err := tr.Transform("src/broken.ts", []byte("const = ;"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTransform))

	assert.True(t, tr.HasPending("src/broken.ts"))
	pendingErr, ok := tr.PendingFailure("src/broken.ts")
	require.True(t, ok)
	assert.Equal(t, err, pendingErr)

	got := drainEvents(events)
	require.Len(t, got, 2)
	assert.IsType(t, bus.TransformStart{}, got[0])
	assert.IsType(t, bus.TransformError{}, got[1])
}

func TestTransform_SuccessClearsPending(t *testing.T) {
	tr, b := newTestTransformer(t)

	_, err := tr.Transform("src/app.ts", []byte("const = ;"))
	require.Error(t, err)
	require.True(t, tr.HasPending("src/app.ts"))

	events, cancel := b.Subscribe()
	defer cancel()

	_, err = tr.Transform("src/app.ts", []byte("export const ok = true"))
	require.NoError(t, err)

	assert.False(t, tr.HasPending("src/app.ts"))
	assert.Equal(t, 0, tr.PendingCount())

	got := drainEvents(events)
	require.Len(t, got, 2)
	assert.IsType(t, bus.TransformStart{}, got[0])
	assert.IsType(t, bus.TransformOK{}, got[1])
}

func TestTransform_ErrorCarriesLocation(t *testing.T) {
	tr, _ := newTestTransformer(t)

	_, err := tr.Transform("src/broken.ts", []byte("export const a = 1\nconst = ;"))
	require.Error(t, err)

	var devErr *errors.DevError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, "src/broken.ts", devErr.FilePath)
	assert.Equal(t, 2, devErr.Line)
}

func TestShouldTransform(t *testing.T) {
	tests := []struct {
		ext  string
		want bool
	}{
		{".js", true},
		{".mjs", true},
		{".jsx", true},
		{".ts", true},
		{".tsx", true},
		{".TS", true},
		{".css", false},
		{".html", false},
		{".json", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldTransform(tt.ext))
		})
	}
}

func TestLoadOptions(t *testing.T) {
	t.Run("missing config yields defaults", func(t *testing.T) {
		options, err := LoadOptions(t.TempDir())
		require.NoError(t, err)
		assert.Empty(t, options.TsconfigRaw)
		assert.Empty(t, options.ConfigPath)
	})

	t.Run("tsconfig is discovered and applied", func(t *testing.T) {
		root := t.TempDir()
		tsconfig := `{"compilerOptions": {"jsxFactory": "h", "jsxFragmentFactory": "Fragment"}}`
		require.NoError(t, os.WriteFile(filepath.Join(root, "tsconfig.json"), []byte(tsconfig), 0o644))

		options, err := LoadOptions(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "tsconfig.json"), options.ConfigPath)

		tr := New(bus.New(), options)
		code, err := tr.Transform("src/app.tsx", []byte("export const App = () => <div/>"))
		require.NoError(t, err)
		assert.Contains(t, string(code), "h(", "configured jsxFactory must be used")
		assert.NotContains(t, string(code), "React.createElement")
	})

	t.Run("malformed config is fatal", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "tsconfig.json"), []byte("{not json"), 0o644))

		_, err := LoadOptions(root)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
	})

	t.Run("jsconfig is a fallback", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "jsconfig.json"), []byte(`{"compilerOptions":{}}`), 0o644))

		options, err := LoadOptions(root)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(root, "jsconfig.json"), options.ConfigPath)
	})
}
