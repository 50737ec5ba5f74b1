// Package transform compiles individual source files into directly
// browser-executable script, one file per request, via esbuild's transform
// API. Compilation failures are retained per file so the watcher can retry
// them on the next change without waiting for a new request.
package transform

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/unbundle/unbundle/internal/bus"
	"github.com/unbundle/unbundle/internal/errors"
)

// transformedExts are the extensions whose content is compiled before
// serving. Anything else is served verbatim.
var transformedExts = map[string]bool{
	".js":  true,
	".mjs": true,
	".jsx": true,
	".ts":  true,
	".tsx": true,
}

// ShouldTransform reports whether a file with the given extension carries
// executable script content that goes through the compiler.
func ShouldTransform(ext string) bool {
	return transformedExts[strings.ToLower(ext)]
}

// Transformer compiles source files and tracks pending failures.
type Transformer struct {
	bus     *bus.Bus
	options Options

	pendingMutex sync.Mutex
	pending      map[string]error
}

// New creates a transformer publishing lifecycle events on b.
func New(b *bus.Bus, options Options) *Transformer {
	return &Transformer{
		bus:     b,
		options: options,
		pending: make(map[string]error),
	}
}

// Transform compiles the contents of path. On success any pending failure
// for the path is cleared; on failure it is recorded for retry.
func (t *Transformer) Transform(path string, contents []byte) ([]byte, error) {
	t.bus.Publish(bus.TransformStart{File: path})

	result := api.Transform(string(contents), t.transformOptions(path))
	if len(result.Errors) > 0 {
		err := transformError(path, result.Errors[0])
		t.recordFailure(path, err)
		t.bus.Publish(bus.TransformError{File: path, Err: err})
		return nil, err
	}

	t.ClearPending(path)
	t.bus.Publish(bus.TransformOK{File: path})
	return result.Code, nil
}

// HasPending reports whether the last transform of path failed.
func (t *Transformer) HasPending(path string) bool {
	t.pendingMutex.Lock()
	defer t.pendingMutex.Unlock()

	_, exists := t.pending[path]
	return exists
}

// PendingFailure returns the retained error for path, if any.
func (t *Transformer) PendingFailure(path string) (error, bool) {
	t.pendingMutex.Lock()
	defer t.pendingMutex.Unlock()

	err, exists := t.pending[path]
	return err, exists
}

// ClearPending drops the retained failure for path. Used when the transform
// succeeds or the underlying file disappears.
func (t *Transformer) ClearPending(path string) {
	t.pendingMutex.Lock()
	defer t.pendingMutex.Unlock()

	delete(t.pending, path)
}

// PendingCount returns the number of files whose last transform failed.
func (t *Transformer) PendingCount() int {
	t.pendingMutex.Lock()
	defer t.pendingMutex.Unlock()

	return len(t.pending)
}

func (t *Transformer) recordFailure(path string, err error) {
	t.pendingMutex.Lock()
	defer t.pendingMutex.Unlock()

	t.pending[path] = err
}

func (t *Transformer) transformOptions(path string) api.TransformOptions {
	opts := api.TransformOptions{
		Loader:      loaderForExt(filepath.Ext(path)),
		Format:      api.FormatESModule,
		Target:      t.options.Target,
		Sourcefile:  path,
		TsconfigRaw: t.options.TsconfigRaw,
	}

	return opts
}

func loaderForExt(ext string) api.Loader {
	switch strings.ToLower(ext) {
	case ".ts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		// Plain .js may still carry JSX, matching the permissive behavior
		// of a catch-all compiler configuration.
		return api.LoaderJSX
	}
}

func transformError(path string, msg api.Message) *errors.DevError {
	err := errors.NewTransformError("compile_failed", msg.Text, nil)
	if msg.Location != nil {
		err = err.WithLocation(path, msg.Location.Line, msg.Location.Column)
	} else {
		err.FilePath = path
	}

	return err
}

// formatMessages renders esbuild diagnostics for logs.
func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s",
				msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		parts = append(parts, msg.Text)
	}

	return strings.Join(parts, "; ")
}
