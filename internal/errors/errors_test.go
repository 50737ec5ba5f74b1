package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDevError_Error(t *testing.T) {
	t.Run("full context", func(t *testing.T) {
		err := NewTransformError("compile_failed", "unexpected token", nil).
			WithLocation("src/app.tsx", 12, 4)

		msg := err.Error()
		assert.Contains(t, msg, "[compile_failed]")
		assert.Contains(t, msg, "src/app.tsx:12:4")
		assert.Contains(t, msg, "unexpected token")
	})

	t.Run("cause is appended", func(t *testing.T) {
		cause := fmt.Errorf("permission denied")
		err := NewIOError("read_failed", "reading index.html", cause)

		assert.Contains(t, err.Error(), "permission denied")
		assert.Equal(t, cause, stderrors.Unwrap(err))
	})

	t.Run("line without column", func(t *testing.T) {
		err := NewTransformError("compile_failed", "bad syntax", nil).
			WithLocation("main.ts", 3, 0)

		assert.Contains(t, err.Error(), "main.ts:3")
		assert.NotContains(t, err.Error(), "main.ts:3:0")
	})
}

func TestDevError_Is(t *testing.T) {
	err := NewResolveError("not_found", "no file for /missing")
	target := NewResolveError("not_found", "different message")

	assert.True(t, stderrors.Is(err, target), "same category and code should match")

	other := NewResolveError("other_code", "no file for /missing")
	assert.False(t, stderrors.Is(err, other), "different code should not match")
}

func TestIsCategory(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		want     bool
	}{
		{"transform error matches", NewTransformError("x", "y", nil), CategoryTransform, true},
		{"config error matches", NewConfigError("x", "y", nil), CategoryConfig, true},
		{"category mismatch", NewIOError("x", "y", nil), CategoryTransform, false},
		{"plain error never matches", fmt.Errorf("plain"), CategoryIO, false},
		{"wrapped dev error matches", fmt.Errorf("wrap: %w", NewResolveError("x", "y")), CategoryResolve, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCategory(tt.err, tt.category))
		})
	}
}
