package directory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ScepterCode/project-nest-registrar/internal/domain"
)

// Store is the persistence behind the directory. The admission side only
// ever reads; writes come through the admin surface.
type Store interface {
	GetProfile(ctx context.Context, requesterID string) (domain.RequesterProfile, error)
	UpsertProfile(ctx context.Context, profile domain.RequesterProfile) error
}

// Directory supplies requester profiles to the eligibility engine's
// callers with a read-through LRU in front of the store. Not-found is not
// cached, so a profile created after a miss is visible immediately.
type Directory struct {
	store Store
	cache *lru.Cache[string, domain.RequesterProfile]
}

const defaultCacheSize = 4096

func New(store Store, cacheSize int) (*Directory, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, domain.RequesterProfile](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	return &Directory{
		store: store,
		cache: cache,
	}, nil
}

func (d *Directory) Profile(ctx context.Context, requesterID string) (domain.RequesterProfile, error) {
	if requesterID == "" {
		return domain.RequesterProfile{}, domain.ErrRequesterRequired
	}
	if profile, ok := d.cache.Get(requesterID); ok {
		return profile, nil
	}

	profile, err := d.store.GetProfile(ctx, requesterID)
	if err != nil {
		return domain.RequesterProfile{}, err
	}
	d.cache.Add(requesterID, profile)
	return profile, nil
}

// Upsert writes through the store and drops the cached copy so the next
// read sees the update.
func (d *Directory) Upsert(ctx context.Context, profile domain.RequesterProfile) error {
	if err := d.store.UpsertProfile(ctx, profile); err != nil {
		return err
	}
	d.cache.Remove(profile.ID)
	return nil
}

func (d *Directory) Invalidate(requesterID string) {
	d.cache.Remove(requesterID)
}
