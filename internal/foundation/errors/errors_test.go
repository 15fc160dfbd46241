package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "mediapipe.yaml").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "invalid configuration", err.Message())

		file, exists := err.Context().GetString("file")
		require.True(t, exists)
		assert.Equal(t, "mediapipe.yaml", file)
	})

	t.Run("Error detection", func(t *testing.T) {
		err := ConfigError("test error").Build()

		assert.True(t, IsClassified(err))
		assert.True(t, HasCategory(err, CategoryConfig))
		assert.True(t, HasSeverity(err, SeverityFatal))
		assert.False(t, err.CanRetry())
		assert.True(t, err.IsFatal())
	})

	t.Run("Detection through wrapping", func(t *testing.T) {
		inner := NetworkError("retries exhausted").Fatal().Build()
		wrapped := fmt.Errorf("download phase: %w", inner)

		assert.True(t, HasCategory(wrapped, CategoryNetwork))
		assert.Equal(t, RetryBackoff, GetRetryStrategy(wrapped))
		assert.Equal(t, CategoryInternal, GetCategory(errors.New("plain")))
	})
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, CategoryNetwork, "network failure").
		Warning().
		Retryable().
		WithContext("host", "example.com").
		WithContext("port", 443).
		Build()

	assert.Equal(t, CategoryNetwork, err.Category())
	assert.Equal(t, SeverityWarning, err.Severity())
	assert.Equal(t, RetryBackoff, err.RetryStrategy())
	assert.True(t, errors.Is(err, originalErr))
	assert.True(t, err.IsTransient())

	host, _ := err.Context().GetString("host")
	assert.Equal(t, "example.com", host)
	assert.Contains(t, err.Error(), "[network:warning] network failure: original error")
}

func TestRateLimitStrategy(t *testing.T) {
	err := NetworkError("rate limited").RateLimit().Build()
	assert.True(t, err.CanRetry())
	assert.True(t, err.IsTransient())
}

func TestCategoryBuilders(t *testing.T) {
	cause := errors.New("disk full")
	fsErr := FileSystemError("failed to save cache").WithCause(cause).Build()
	assert.True(t, HasCategory(fsErr, CategoryFileSystem))
	assert.True(t, errors.Is(fsErr, cause))

	plErr := PluginError("failed to register plugin").Fatal().Build()
	assert.True(t, HasCategory(plErr, CategoryPlugin))
	assert.True(t, HasSeverity(plErr, SeverityFatal))
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := ToolError("probe failed").Build()
	derived := base.WithContext("path", "/tmp/a.png")

	_, ok := base.Context().Get("path")
	assert.False(t, ok)
	p, ok := derived.Context().GetString("path")
	require.True(t, ok)
	assert.Equal(t, "/tmp/a.png", p)
	assert.True(t, errors.Is(derived, base))
}

func TestErrorContextMerge(t *testing.T) {
	a := ErrorContext{"a": 1, "b": 1}
	b := ErrorContext{"b": 2}
	merged := a.Merge(b)
	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, 2, merged["b"])
	assert.Equal(t, b, ErrorContext(nil).Merge(b))
}
