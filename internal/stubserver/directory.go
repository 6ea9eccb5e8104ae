package stubserver

import (
	"errors"
	"sort"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/idsync/internal/common"
	"github.com/dmitrijs2005/idsync/internal/request"
	"github.com/dmitrijs2005/idsync/internal/validate"
)

// ErrUnknownMPID is returned when a modify names an MPID never handed out.
var ErrUnknownMPID = errors.New("unknown mpid")

type profile struct {
	identities map[string]string
	loggedIn   bool
}

// Directory assigns MPIDs to identity sets.
//
// A known identity always resolves to the MPID it was first bound to. A call
// carrying only unknown identities takes over the previous MPID when that
// user is still anonymous, otherwise a new MPID is minted. Device stamps map
// to the last anonymous MPID seen on that device.
type Directory struct {
	mu       sync.Mutex
	next     int64
	contexts int
	owners   map[string]string // "type=value" -> mpid
	devices  map[string]string // device stamp -> anonymous mpid
	profiles map[string]*profile
}

func NewDirectory(firstMPID int64) *Directory {
	return &Directory{
		next:     firstMPID,
		owners:   make(map[string]string),
		devices:  make(map[string]string),
		profiles: make(map[string]*profile),
	}
}

func identityKey(name, value string) string {
	return name + "=" + value
}

// Resolve returns the MPID for an identify, login or logout call and whether
// that user is logged in afterwards.
func (d *Directory) Resolve(op validate.Operation, known map[string]string, previous string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stamp := known[common.DeviceStampKey]
	ids := make(map[string]string, len(known))
	for k, v := range known {
		if k != common.DeviceStampKey && v != "" {
			ids[k] = v
		}
	}

	if op == validate.OpLogout {
		return d.anonymousLocked(stamp), false
	}

	mpid := d.ownerLocked(ids)
	if mpid == "" && len(ids) > 0 {
		if p, ok := d.profiles[previous]; ok && len(p.identities) == 0 {
			mpid = previous
		}
	}
	if mpid == "" {
		if len(ids) == 0 {
			return d.anonymousLocked(stamp), false
		}
		mpid = d.mintLocked()
	}

	p := d.profiles[mpid]
	for k, v := range ids {
		d.bindLocked(mpid, p, k, v)
	}
	if op == validate.OpLogin {
		p.loggedIn = true
	}
	if d.devices[stamp] == mpid {
		delete(d.devices, stamp)
	}
	return mpid, p.loggedIn
}

// Modify applies identity changes to mpid.
func (d *Directory) Modify(mpid string, changes []request.IdentityChange) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[mpid]
	if !ok {
		return ErrUnknownMPID
	}
	for _, ch := range changes {
		if old, ok := p.identities[ch.IdentityType]; ok {
			delete(d.owners, identityKey(ch.IdentityType, old))
		}
		if ch.NewValue == "" {
			delete(p.identities, ch.IdentityType)
			continue
		}
		d.bindLocked(mpid, p, ch.IdentityType, ch.NewValue)
	}
	return nil
}

// Identities returns a copy of the identities bound to mpid.
func (d *Directory) Identities(mpid string) (map[string]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[mpid]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(p.identities))
	for k, v := range p.identities {
		out[k] = v
	}
	return out, true
}

// NextContext returns a fresh opaque context token.
func (d *Directory) NextContext() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contexts++
	return "ctx-" + strconv.Itoa(d.contexts)
}

// ownerLocked finds the MPID owning any of ids, checking names in order.
func (d *Directory) ownerLocked(ids map[string]string) string {
	names := make([]string, 0, len(ids))
	for k := range ids {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if mpid, ok := d.owners[identityKey(k, ids[k])]; ok {
			return mpid
		}
	}
	return ""
}

func (d *Directory) anonymousLocked(stamp string) string {
	if mpid, ok := d.devices[stamp]; ok && stamp != "" {
		return mpid
	}
	mpid := d.mintLocked()
	if stamp != "" {
		d.devices[stamp] = mpid
	}
	return mpid
}

func (d *Directory) mintLocked() string {
	mpid := strconv.FormatInt(d.next, 10)
	d.next++
	d.profiles[mpid] = &profile{identities: make(map[string]string)}
	return mpid
}

func (d *Directory) bindLocked(mpid string, p *profile, name, value string) {
	if old, ok := p.identities[name]; ok && old != value {
		delete(d.owners, identityKey(name, old))
	}
	p.identities[name] = value
	d.owners[identityKey(name, value)] = mpid
}
