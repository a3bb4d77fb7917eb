package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/edu-makeup-api/pkg/errors"
)

type stubCacheRepo struct {
	store  map[string][]byte
	getErr error
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.getErr != nil {
		return s.getErr
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, _ string) error {
	s.store = nil
	return nil
}

func TestCacheServiceRememberLoadsOnce(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, zap.NewNop(), true)

	loads := 0
	load := func(dest *[]string) func(context.Context) error {
		return func(context.Context) error {
			loads++
			*dest = []string{"a", "b"}
			return nil
		}
	}

	var first []string
	require.NoError(t, svc.Remember(context.Background(), "k", 0, &first, load(&first)))
	var second []string
	require.NoError(t, svc.Remember(context.Background(), "k", 0, &second, load(&second)))

	assert.Equal(t, []string{"a", "b"}, first)
	assert.Equal(t, []string{"a", "b"}, second)
	assert.Equal(t, 1, loads)

	require.NoError(t, svc.Invalidate(context.Background(), "*"))
	var third []string
	require.NoError(t, svc.Remember(context.Background(), "k", 0, &third, load(&third)))
	assert.Equal(t, 2, loads)
}

func TestCacheServiceRememberSurvivesCacheFailure(t *testing.T) {
	repo := &stubCacheRepo{getErr: errors.New("redis down")}
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out []string
	err := svc.Remember(context.Background(), "k", 0, &out, func(context.Context) error {
		out = []string{"fresh"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, out)

	loadErr := errors.New("boom")
	err = svc.Remember(context.Background(), "other", 0, &out, func(context.Context) error { return loadErr })
	assert.ErrorIs(t, err, loadErr)
}

func TestCacheServiceNilIsPassThrough(t *testing.T) {
	var svc *CacheService
	assert.False(t, svc.Enabled())

	var out int
	require.NoError(t, svc.Remember(context.Background(), "k", 0, &out, func(context.Context) error {
		out = 7
		return nil
	}))
	assert.Equal(t, 7, out)
}
