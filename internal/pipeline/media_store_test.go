package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputs(n int) []MediaInput {
	out := make([]MediaInput, n)
	for i := range out {
		out[i] = MediaInput{URI: "file:///tmp/p" + string(rune('a'+i)) + ".jpg", Kind: MediaImage}
	}
	return out
}

func coverCount(items []MediaItem) int {
	n := 0
	for _, it := range items {
		if it.IsCover {
			n++
		}
	}
	return n
}

func TestMediaStore_Add(t *testing.T) {
	tests := []struct {
		name        string
		existing    int
		add         int
		wantLen     int
		wantDropped int
		wantErr     error
	}{
		{"空集合添加三张", 0, 3, 3, 0, nil},
		{"批次中途超限", 8, 5, 10, 3, nil},
		{"已满时全部丢弃", 10, 2, 10, 2, ErrMediaLimitReached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMediaStore(DefaultMaxMedia)
			if tt.existing > 0 {
				_, err := s.Add(inputs(tt.existing))
				require.NoError(t, err)
			}

			res, err := s.Add(inputs(tt.add))
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantLen, s.Len())
			assert.Equal(t, tt.wantDropped, res.Dropped)
			assert.Equal(t, 1, coverCount(s.Items()))
		})
	}
}

func TestMediaStore_RemoveCover(t *testing.T) {
	s := NewMediaStore(0)
	res, _ := s.Add(inputs(3))
	a, b, c := res.Accepted[0], res.Accepted[1], res.Accepted[2]

	require.NoError(t, s.SetCover(b.ID))
	require.NoError(t, s.Remove(b.ID))

	cover, ok := s.Cover()
	assert.True(t, ok)
	assert.Equal(t, a.ID, cover.ID, "删除封面后第一项成为封面")

	require.NoError(t, s.Remove(a.ID))
	cover, _ = s.Cover()
	assert.Equal(t, c.ID, cover.ID)

	require.NoError(t, s.Remove(c.ID))
	_, ok = s.Cover()
	assert.False(t, ok, "集合为空时无封面")

	assert.ErrorIs(t, s.Remove("missing"), ErrMediaNotFound)
}

func TestMediaStore_ReorderKeepsCoverIdentity(t *testing.T) {
	s := NewMediaStore(0)
	res, _ := s.Add(inputs(3))
	a, b, c := res.Accepted[0], res.Accepted[1], res.Accepted[2]
	require.NoError(t, s.SetCover(b.ID))

	require.NoError(t, s.Reorder([]string{c.ID, b.ID, a.ID}))

	items := s.Items()
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, 1, items[1].Position)
	assert.True(t, items[1].IsCover)

	batch := s.CoverFirst()
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, []string{batch[0].ID, batch[1].ID, batch[2].ID})

	assert.ErrorIs(t, s.Reorder([]string{a.ID, b.ID}), ErrInvalidOrder)
	assert.ErrorIs(t, s.Reorder([]string{a.ID, a.ID, b.ID}), ErrInvalidOrder)
}
