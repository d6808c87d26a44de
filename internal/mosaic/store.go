package mosaic

import (
	"context"
	"fmt"
	"sync"

	"github.com/forest-guardian/geoprep/internal/raster"
)

// Store parks partial mosaics between batches.
type Store interface {
	Put(ctx context.Context, key string, img *raster.Image) error
	Get(ctx context.Context, key string) (*raster.Image, error)
	Delete(ctx context.Context, key string) error
}

type MemoryStore struct {
	mu     sync.Mutex
	images map[string]*raster.Image
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{images: make(map[string]*raster.Image)}
}

func (s *MemoryStore) Put(_ context.Context, key string, img *raster.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[key] = img
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*raster.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[key]
	if !ok {
		return nil, fmt.Errorf("partial mosaic %s not found", key)
	}
	return img, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, key)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}
