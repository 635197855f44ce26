package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRef(t *testing.T) {
	assert.Equal(t, "42", MessageRef(42))
}

func TestSummaryRef(t *testing.T) {
	assert.Equal(t, "S7", SummaryRef(7))
}

func TestFileRefID(t *testing.T) {
	assert.Equal(t, "F3", FileRefID(3))
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		raw      string
		wantKind RefKind
		wantID   int64
	}{
		{"42", RefMessage, 42},
		{"S7", RefSummary, 7},
		{"F3", RefFile, 3},
	}

	for _, tt := range tests {
		kind, id, err := ParseRef(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.wantKind, kind)
		assert.Equal(t, tt.wantID, id)
	}
}

func TestParseRef_Invalid(t *testing.T) {
	_, _, err := ParseRef("")
	assert.Error(t, err)

	_, _, err = ParseRef("Snotanumber")
	assert.Error(t, err)

	_, _, err = ParseRef("notanumber")
	assert.Error(t, err)
}

func TestParseRef_RoundTrip(t *testing.T) {
	kind, id, err := ParseRef(MessageRef(100))
	require.NoError(t, err)
	assert.Equal(t, RefMessage, kind)
	assert.Equal(t, int64(100), id)

	kind, id, err = ParseRef(SummaryRef(200))
	require.NoError(t, err)
	assert.Equal(t, RefSummary, kind)
	assert.Equal(t, int64(200), id)

	kind, id, err = ParseRef(FileRefID(300))
	require.NoError(t, err)
	assert.Equal(t, RefFile, kind)
	assert.Equal(t, int64(300), id)
}
