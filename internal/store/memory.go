package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/idsync/internal/models"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	records  map[models.MPID]*models.Record
	products map[models.MPID][]models.Product
	state    *models.GlobalState
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[models.MPID]*models.Record),
		products: make(map[models.MPID][]models.Product),
	}
}

func (m *Memory) GetRecord(ctx context.Context, mpid models.MPID) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[mpid].Clone(), nil
}

func (m *Memory) PutRecord(ctx context.Context, rec *models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.MPID] = rec.Clone()
	return nil
}

func (m *Memory) ListRecords(ctx context.Context) ([]*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MPID < out[j].MPID })
	return out, nil
}

func (m *Memory) GetProducts(ctx context.Context, mpid models.MPID) ([]models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[mpid]
	if !ok {
		return nil, nil
	}
	return models.CopyProducts(p), nil
}

func (m *Memory) SetProducts(ctx context.Context, mpid models.MPID, products []models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[mpid] = models.CopyProducts(products)
	return nil
}

func (m *Memory) GetState(ctx context.Context) (*models.GlobalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone(), nil
}

func (m *Memory) PutState(ctx context.Context, st *models.GlobalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = st.Clone()
	return nil
}

func (m *Memory) Close() error { return nil }
