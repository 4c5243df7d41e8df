package badger

import (
	"context"
	"testing"

	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutlierRepository_PutGetList(t *testing.T) {
	repos := newTestRepos(t)
	ctx := context.Background()

	_, err := repos.Outliers.GetOutlier(ctx, "scans/b.pdf")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	b := &storage.OutlierRecord{
		Path:        "scans/b.pdf",
		Fingerprint: core.IDFromContent("b"),
		Formats:     []string{"pdf"},
		Error:       "no extractable text",
	}
	require.NoError(t, repos.Outliers.PutOutlier(ctx, b))
	assert.False(t, b.RecordedAt.IsZero())
	require.NoError(t, repos.Outliers.PutOutlier(ctx, &storage.OutlierRecord{Path: "a.bin", Formats: []string{}}))

	got, err := repos.Outliers.GetOutlier(ctx, "scans/b.pdf")
	require.NoError(t, err)
	assert.Equal(t, b.Fingerprint, got.Fingerprint)
	assert.Equal(t, []string{"pdf"}, got.Formats)
	assert.Equal(t, "no extractable text", got.Error)
	assert.True(t, b.RecordedAt.Equal(got.RecordedAt))

	all, err := repos.Outliers.ListOutliers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a.bin", all[0].Path)
	assert.Equal(t, "scans/b.pdf", all[1].Path)

	require.NoError(t, repos.Outliers.DeleteOutlier(ctx, "scans/b.pdf"))
	require.NoError(t, repos.Outliers.DeleteOutlier(ctx, "missing"))
	all, err = repos.Outliers.ListOutliers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, repos.Outliers.PutOutlier(ctx, &storage.OutlierRecord{}), storage.ErrEmptyPath)
}
