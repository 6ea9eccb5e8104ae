package persistence

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/dmitrijs2005/idsync/internal/session"
	"github.com/dmitrijs2005/idsync/internal/store"
)

// Manager is the persistence adapter used by the resolver and user views.
type Manager struct {
	store store.Store
	log   logging.Logger
}

func NewManager(s store.Store, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{store: s, log: log}
}

// Load restores the global state and the current MPID's working set into st.
// It reports whether any durable state existed.
func (m *Manager) Load(ctx context.Context, st *session.State) (bool, error) {
	gs, err := m.store.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("load global state: %w", err)
	}
	if gs == nil {
		return false, nil
	}
	st.ApplyGlobalState(gs)
	st.IsFirstRun = false
	if st.MPID.IsZero() {
		st.ResetWorkingSet()
		return true, nil
	}
	return true, m.StoreDataInMemory(ctx, st, st.MPID)
}

// StoreDataInMemory replaces st's working set with the stored record and cart
// of mpid, or empties it when mpid has no record.
func (m *Manager) StoreDataInMemory(ctx context.Context, st *session.State, mpid models.MPID) error {
	rec, err := m.store.GetRecord(ctx, mpid)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	st.ApplyRecord(rec)

	products, err := m.store.GetProducts(ctx, mpid)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	m.StoreProductsInMemory(st, products)
	return nil
}

// Update writes the working set under st.MPID, when one is set, and the
// global state.
func (m *Manager) Update(ctx context.Context, st *session.State) error {
	if !st.MPID.IsZero() {
		if err := m.store.PutRecord(ctx, st.Record()); err != nil {
			return fmt.Errorf("save record: %w", err)
		}
	}
	if err := m.store.PutState(ctx, st.GlobalState()); err != nil {
		return fmt.Errorf("save global state: %w", err)
	}
	return nil
}

// UpdateUserAttributes replaces the stored attributes of mpid, creating the
// record when needed. Other record fields are preserved.
func (m *Manager) UpdateUserAttributes(ctx context.Context, mpid models.MPID, attrs models.Attributes) error {
	rec, err := m.store.GetRecord(ctx, mpid)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		rec = &models.Record{
			MPID:            mpid,
			UserIdentities:  models.UserIdentities{},
			CookieSyncDates: models.CookieSyncDates{},
		}
	}
	rec.UserAttributes = attrs.Clone()
	if err := m.store.PutRecord(ctx, rec); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// UserIdentities returns the stored identities of mpid, empty when unknown.
func (m *Manager) UserIdentities(ctx context.Context, mpid models.MPID) (models.UserIdentities, error) {
	rec, err := m.store.GetRecord(ctx, mpid)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return models.UserIdentities{}, nil
	}
	return rec.UserIdentities.Clone(), nil
}

// UserAttributes returns the stored attributes of mpid, empty when unknown.
func (m *Manager) UserAttributes(ctx context.Context, mpid models.MPID) (models.Attributes, error) {
	rec, err := m.store.GetRecord(ctx, mpid)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return models.Attributes{}, nil
	}
	return rec.UserAttributes.Clone(), nil
}

// CartProducts returns the stored cart of mpid; never nil.
func (m *Manager) CartProducts(ctx context.Context, mpid models.MPID) ([]models.Product, error) {
	p, err := m.store.GetProducts(ctx, mpid)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return models.CopyProducts(p), nil
}

// SetCartProducts replaces the stored cart of mpid.
func (m *Manager) SetCartProducts(ctx context.Context, mpid models.MPID, products []models.Product) error {
	if err := m.store.SetProducts(ctx, mpid, products); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// StoreProductsInMemory mirrors products into st's working cart.
func (m *Manager) StoreProductsInMemory(st *session.State, products []models.Product) {
	st.CartProducts = models.CopyProducts(products)
}

// HasRecord reports whether mpid has a stored record.
func (m *Manager) HasRecord(ctx context.Context, mpid models.MPID) (bool, error) {
	rec, err := m.store.GetRecord(ctx, mpid)
	if err != nil {
		return false, fmt.Errorf("load record: %w", err)
	}
	return rec != nil, nil
}

// FindPrevRecordsByIdentities looks for a stored record sharing at least one
// identity value with ids. Records are scanned in MPID order and the first
// match wins.
func (m *Manager) FindPrevRecordsByIdentities(ctx context.Context, ids models.UserIdentities) (models.MPID, bool, error) {
	if len(ids) == 0 {
		return models.NoMPID, false, nil
	}
	recs, err := m.store.ListRecords(ctx)
	if err != nil {
		return models.NoMPID, false, fmt.Errorf("list records: %w", err)
	}
	for _, rec := range recs {
		for t, v := range ids {
			if v == "" {
				continue
			}
			if stored, ok := rec.UserIdentities[t]; ok && stored == v {
				m.log.Debug(ctx, "previous record matched by identity", "mpid", rec.MPID, "type", t)
				return rec.MPID, true, nil
			}
		}
	}
	return models.NoMPID, false, nil
}
