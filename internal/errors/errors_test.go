package errors

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "structural",
			err:      &StructuralError{File: "a.get.go", Reason: "no registration call"},
			expected: "a.get.go: no registration call",
		},
		{
			name:     "resolution",
			err:      &ResolutionError{File: "a.get.go", Field: "output", Reason: "unknown"},
			expected: "a.get.go: cannot resolve output type: unknown",
		},
		{
			name:     "write",
			err:      &WriteError{File: "out.go", Err: errors.New("disk full")},
			expected: "writing out.go: disk full",
		},
		{
			name:     "path",
			err:      &PathError{Path: "x.patch.go", Reason: "unsupported method"},
			expected: `invalid endpoint path "x.patch.go": unsupported method`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestClassification(t *testing.T) {
	structural := fmt.Errorf("job: %w", &StructuralError{File: "a", Reason: "r"})
	resolution := fmt.Errorf("job: %w", &ResolutionError{File: "a", Field: "input"})

	assert.True(t, IsStructural(structural))
	assert.False(t, IsResolution(structural))
	assert.True(t, IsResolution(resolution))
	assert.False(t, IsStructural(resolution))
	assert.False(t, IsStructural(nil))

	cause := errors.New("denied")
	assert.ErrorIs(t, &WriteError{File: "f", Err: cause}, cause)
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	assert.NoError(t, c.Err())
	assert.Empty(t, c.Summary())

	var wg sync.WaitGroup
	for _, file := range []string{"c.go", "a.go", "b.go"} {
		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			c.Add(file, errors.New("failed "+file))
			c.Add(file+".ok", nil)
		}(file)
	}
	wg.Wait()

	require.Equal(t, 3, c.Len())
	errs := c.Errors()
	assert.Equal(t, "a.go", errs[0].File)
	assert.Equal(t, "b.go", errs[1].File)
	assert.Equal(t, "c.go", errs[2].File)

	assert.ErrorContains(t, c.Err(), "failed b.go")
	assert.Equal(t, "3 file(s) failed:\n  a.go: failed a.go\n  b.go: failed b.go\n  c.go: failed c.go\n", c.Summary())
}
