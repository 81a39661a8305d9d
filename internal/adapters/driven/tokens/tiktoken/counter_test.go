package tiktoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator(t *testing.T) {
	c := NewEstimator()
	assert.False(t, c.Exact())
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 3, c.Count("twelve chars"))

	var nilCounter *Counter
	assert.Equal(t, 2, nilCounter.Count("abcdefgh"))
}

func TestNew(t *testing.T) {
	c, err := New("")
	if err != nil {
		// The BPE ranks are fetched on first use.
		t.Skipf("encoding unavailable: %v", err)
	}
	require.True(t, c.Exact())
	assert.Equal(t, 2, c.Count("hello world"))
	assert.Equal(t, 0, c.Count(""))
}

func TestNew_UnknownEncoding(t *testing.T) {
	_, err := New("no_such_encoding")
	assert.Error(t, err)
}
