package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimly/catalog-optimizer/internal/api/storage"
)

func TestJobCursorRoundTrip(t *testing.T) {
	original := &storage.JobCursor{
		CreatedAt: time.Date(2026, time.March, 15, 12, 30, 45, 123456789, time.UTC),
		JobID:     "7f1aa2f3-0b46-4e2f-9d55-0f2f6f1f2a01",
	}

	decoded, err := DecodeJobCursor(EncodeJobCursor(original))
	require.NoError(t, err)

	assert.True(t, decoded.CreatedAt.Equal(original.CreatedAt))
	assert.Equal(t, original.JobID, decoded.JobID)
}

func TestDecodeJobCursorEmpty(t *testing.T) {
	cursor, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeJobCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{"not base64", "!!not-base64!!"},
		{"missing separator", "bm9zZXBhcmF0b3I="},           // "noseparator"
		{"non-numeric timestamp", "YWJjfGpvYi0x"},           // "abc|job-1"
		{"too many parts", "MTIzfGpvYi0xfGV4dHJh"},          // "123|job-1|extra"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
