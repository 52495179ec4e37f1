package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/campus-hq/ops-api/pkg/errors"
)

type recordingCacheMetrics struct {
	hits   int
	misses int
}

func (r *recordingCacheMetrics) RecordCacheOperation(hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func TestCacheGetWithoutClientRecordsMiss(t *testing.T) {
	metrics := &recordingCacheMetrics{}
	repo := NewCacheRepository(nil, metrics, nil)

	var dest []string
	err := repo.Get(context.Background(), "catalog:published", &dest)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 0, metrics.hits)
}

func TestCacheDegradesToNoopWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil, nil)

	require.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	require.NoError(t, repo.DeleteByPattern(context.Background(), "catalog:*"))
	require.NoError(t, repo.Close())
}
