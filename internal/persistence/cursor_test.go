package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/gamification/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC), ID: "evt-1"}
	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = DecodeCursor("!!not-base64")
	require.Error(t, err)
}

func TestBefore(t *testing.T) {
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := &domain.Cursor{CreatedAt: ts, ID: "m"}
	require.True(t, Before(nil, ts, "z"))
	require.True(t, Before(c, ts.Add(-time.Second), "z"))
	require.True(t, Before(c, ts, "a"))
	require.False(t, Before(c, ts, "z"))
	require.False(t, Before(c, ts.Add(time.Second), "a"))
}
