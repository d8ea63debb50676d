package registry

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/BearBump/TrackLog/internal/models"
)

// StopDirectory is the stop lookup the ingester needs.
type StopDirectory interface {
	StopsByIDs(ctx context.Context, ids []string) (map[string]*models.Stop, error)
}

// StopCache keeps stop records in a fixed-size in-process LRU. Stops change
// rarely, so entries never expire on their own.
type StopCache struct {
	dir   StopDirectory
	cache *lru.Cache[string, *models.Stop]
}

func NewStopCache(dir StopDirectory, size int) (*StopCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, *models.Stop](size)
	if err != nil {
		return nil, errors.Wrap(err, "new lru")
	}
	return &StopCache{dir: dir, cache: c}, nil
}

// Stop returns nil, nil when the directory does not know the id.
func (s *StopCache) Stop(ctx context.Context, id string) (*models.Stop, error) {
	if st, ok := s.cache.Get(id); ok {
		return st, nil
	}
	found, err := s.dir.StopsByIDs(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	st, ok := found[id]
	if !ok {
		return nil, nil
	}
	s.cache.Add(id, st)
	return st, nil
}

func (s *StopCache) Len() int { return s.cache.Len() }
