// Package session holds the in-memory identity state of one SDK instance:
// the current MPID, the working copy of that MPID's record and cart, the
// pending event queue and the one-time migration snapshot.
//
// A State is not safe for concurrent use; its owner serializes access.
package session

import "github.com/dmitrijs2005/idsync/internal/models"

// State is the mutable identity state. The working set (identities,
// attributes, cookie-sync dates, cart) always belongs to MPID.
type State struct {
	MPID                models.MPID
	IsFirstRun          bool
	SessionID           string
	CurrentSessionMPIDs []models.MPID
	Context             string
	DeviceID            string

	UserIdentities  models.UserIdentities
	UserAttributes  models.Attributes
	CookieSyncDates models.CookieSyncDates
	CartProducts    []models.Product

	EventQueue    []*models.Event
	MigrationData *models.MigrationData
}

// New returns an empty State marked as first run.
func New() *State {
	st := &State{IsFirstRun: true}
	st.ResetWorkingSet()
	return st
}

// ResetWorkingSet empties identities, attributes, cookie-sync dates and cart.
func (s *State) ResetWorkingSet() {
	s.UserIdentities = models.UserIdentities{}
	s.UserAttributes = models.Attributes{}
	s.CookieSyncDates = models.CookieSyncDates{}
	s.CartProducts = []models.Product{}
}

// ApplyRecord replaces the working set with a deep copy of rec. A nil rec
// resets it. The cart is left alone.
func (s *State) ApplyRecord(rec *models.Record) {
	if rec == nil {
		s.UserIdentities = models.UserIdentities{}
		s.UserAttributes = models.Attributes{}
		s.CookieSyncDates = models.CookieSyncDates{}
		return
	}
	s.UserIdentities = rec.UserIdentities.Clone()
	s.UserAttributes = rec.UserAttributes.Clone()
	s.CookieSyncDates = rec.CookieSyncDates.Clone()
}

// Record snapshots the working set as a durable record for the current MPID.
func (s *State) Record() *models.Record {
	return &models.Record{
		MPID:            s.MPID,
		UserIdentities:  s.UserIdentities.Clone(),
		UserAttributes:  s.UserAttributes.Clone(),
		CookieSyncDates: s.CookieSyncDates.Clone(),
	}
}

// GlobalState snapshots the process-wide fields.
func (s *State) GlobalState() *models.GlobalState {
	return &models.GlobalState{
		CurrentMPID:         s.MPID,
		SessionID:           s.SessionID,
		CurrentSessionMPIDs: append([]models.MPID(nil), s.CurrentSessionMPIDs...),
		Context:             s.Context,
		DeviceID:            s.DeviceID,
	}
}

// ApplyGlobalState copies gs into the process-wide fields.
func (s *State) ApplyGlobalState(gs *models.GlobalState) {
	if gs == nil {
		return
	}
	s.MPID = gs.CurrentMPID
	s.SessionID = gs.SessionID
	s.CurrentSessionMPIDs = append([]models.MPID(nil), gs.CurrentSessionMPIDs...)
	s.Context = gs.Context
	s.DeviceID = gs.DeviceID
}

// AddSessionMPID records mpid as seen in this session. It reports whether
// the list changed.
func (s *State) AddSessionMPID(mpid models.MPID) bool {
	if mpid.IsZero() {
		return false
	}
	for _, m := range s.CurrentSessionMPIDs {
		if m == mpid {
			return false
		}
	}
	s.CurrentSessionMPIDs = append(s.CurrentSessionMPIDs, mpid)
	return true
}

// Enqueue appends ev to the pending queue.
func (s *State) Enqueue(ev *models.Event) {
	s.EventQueue = append(s.EventQueue, ev)
}

// DrainQueue tags every queued event with mpid, empties the queue and returns
// the events in enqueue order.
func (s *State) DrainQueue(mpid models.MPID) []*models.Event {
	out := s.EventQueue
	s.EventQueue = nil
	for _, ev := range out {
		ev.MPID = mpid
	}
	return out
}

// TakeMigration returns the pending migration snapshot and clears it.
func (s *State) TakeMigration() *models.MigrationData {
	m := s.MigrationData
	s.MigrationData = nil
	if m.IsEmpty() {
		return nil
	}
	return m
}
