package store

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/idsync/internal/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached keeps recently used records in an LRU in front of another Store.
// Products and the global state pass through.
type Cached struct {
	Store
	records *lru.Cache[models.MPID, *models.Record]
}

// NewCached wraps inner with an LRU holding up to size records.
func NewCached(inner Store, size int) (*Cached, error) {
	c, err := lru.New[models.MPID, *models.Record](size)
	if err != nil {
		return nil, fmt.Errorf("create record cache: %w", err)
	}
	return &Cached{Store: inner, records: c}, nil
}

func (c *Cached) GetRecord(ctx context.Context, mpid models.MPID) (*models.Record, error) {
	if rec, ok := c.records.Get(mpid); ok {
		return rec.Clone(), nil
	}
	rec, err := c.Store.GetRecord(ctx, mpid)
	if err != nil || rec == nil {
		return rec, err
	}
	c.records.Add(mpid, rec.Clone())
	return rec, nil
}

func (c *Cached) PutRecord(ctx context.Context, rec *models.Record) error {
	if err := c.Store.PutRecord(ctx, rec); err != nil {
		c.records.Remove(rec.MPID)
		return err
	}
	c.records.Add(rec.MPID, rec.Clone())
	return nil
}

// Len reports the number of cached records.
func (c *Cached) Len() int { return c.records.Len() }
