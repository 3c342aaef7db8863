package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageTrimsAndEncodesCursor(t *testing.T) {
	rows := []int{9, 8, 7}

	page, info := Page(rows, 2, func(v int) string { return strconv.Itoa(v) })

	assert.Equal(t, []int{9, 8}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "8", cursor.ID)
}

func TestPageWithoutMore(t *testing.T) {
	page, info := Page([]int{1}, 5, func(v int) string { return strconv.Itoa(v) })
	assert.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	cursor, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestLimitBounds(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Limit())
}
