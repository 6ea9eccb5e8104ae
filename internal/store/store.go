package store

import (
	"context"

	"github.com/dmitrijs2005/idsync/internal/models"
)

// Store persists identity records, cart products and the global state.
type Store interface {
	// GetRecord returns the record stored for mpid, or (nil, nil).
	GetRecord(ctx context.Context, mpid models.MPID) (*models.Record, error)

	// PutRecord inserts or replaces the record keyed by rec.MPID.
	PutRecord(ctx context.Context, rec *models.Record) error

	// ListRecords returns every stored record.
	ListRecords(ctx context.Context) ([]*models.Record, error)

	// GetProducts returns the cart of mpid in insertion order.
	GetProducts(ctx context.Context, mpid models.MPID) ([]models.Product, error)

	// SetProducts replaces the cart of mpid.
	SetProducts(ctx context.Context, mpid models.MPID, products []models.Product) error

	// GetState returns the global state, or (nil, nil) on a fresh store.
	GetState(ctx context.Context) (*models.GlobalState, error)

	// PutState replaces the global state.
	PutState(ctx context.Context, st *models.GlobalState) error

	Close() error
}
