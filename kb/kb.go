package kb

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/signalsfoundry/membership-globe/model"
)

// DefaultMaxActive is how many organizations may be shown at once.
const DefaultMaxActive = 3

var (
	// ErrCountryExists indicates a country code is already registered.
	ErrCountryExists = errors.New("country already exists")
	// ErrCountryNotFound indicates a requested country was not found.
	ErrCountryNotFound = errors.New("country not found")
	// ErrUnknownOrganization indicates an organization has no metadata.
	ErrUnknownOrganization = errors.New("unknown organization")
	// ErrTooManyActive indicates a selection exceeds the active limit.
	ErrTooManyActive = errors.New("too many active organizations")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventCountriesChanged EventType = iota
	EventSelectionChanged
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type   EventType
	Active []model.OrganizationID
}

// KnowledgeBase is an in-memory, thread-safe store for the reference data and
// the current organization selection.
type KnowledgeBase struct {
	mu sync.RWMutex

	// countries keeps master-list order; byCode indexes into it.
	countries []model.CountryRecord
	byCode    map[string]int

	organizations map[model.OrganizationID]model.Organization
	active        []model.OrganizationID
	maxActive     int

	subs []func(Event)
}

// Option customises KnowledgeBase construction.
type Option func(*KnowledgeBase)

// WithMaxActive overrides DefaultMaxActive. Values below 1 are ignored.
func WithMaxActive(n int) Option {
	return func(kb *KnowledgeBase) {
		if n > 0 {
			kb.maxActive = n
		}
	}
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		byCode:        make(map[string]int),
		organizations: make(map[model.OrganizationID]model.Organization),
		maxActive:     DefaultMaxActive,
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// AddCountry appends a country to the master list. It returns an error if the
// code already exists.
func (kb *KnowledgeBase) AddCountry(c model.CountryRecord) error {
	kb.mu.Lock()
	if _, exists := kb.byCode[c.Code]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrCountryExists, c.Code)
	}
	kb.byCode[c.Code] = len(kb.countries)
	kb.countries = append(kb.countries, cloneCountry(c))
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	notify(subs, Event{Type: EventCountriesChanged})
	return nil
}

// AddCountries appends records in order, stopping at the first duplicate.
// Subscribers are notified once.
func (kb *KnowledgeBase) AddCountries(cs []model.CountryRecord) error {
	kb.mu.Lock()
	added := 0
	var err error
	for _, c := range cs {
		if _, exists := kb.byCode[c.Code]; exists {
			err = fmt.Errorf("%w: %q", ErrCountryExists, c.Code)
			break
		}
		kb.byCode[c.Code] = len(kb.countries)
		kb.countries = append(kb.countries, cloneCountry(c))
		added++
	}
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	if added > 0 {
		notify(subs, Event{Type: EventCountriesChanged})
	}
	return err
}

// Country returns the country with the given code.
func (kb *KnowledgeBase) Country(code string) (model.CountryRecord, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	i, ok := kb.byCode[code]
	if !ok {
		return model.CountryRecord{}, fmt.Errorf("%w: %q", ErrCountryNotFound, code)
	}
	return cloneCountry(kb.countries[i]), nil
}

// ListCountries returns a snapshot of the master list in load order.
func (kb *KnowledgeBase) ListCountries() []model.CountryRecord {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.CountryRecord, 0, len(kb.countries))
	for _, c := range kb.countries {
		res = append(res, cloneCountry(c))
	}
	return res
}

// PutOrganization adds or replaces organization metadata.
func (kb *KnowledgeBase) PutOrganization(o model.Organization) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.organizations[o.ID] = o
}

// Organization returns the metadata for id.
func (kb *KnowledgeBase) Organization(id model.OrganizationID) (model.Organization, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	o, ok := kb.organizations[id]
	if !ok {
		return model.Organization{}, fmt.Errorf("%w: %q", ErrUnknownOrganization, id)
	}
	return o, nil
}

// ListOrganizations returns all organizations, built-in ones in canonical
// order followed by the rest sorted by ID.
func (kb *KnowledgeBase) ListOrganizations() []model.Organization {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.Organization, 0, len(kb.organizations))
	for _, o := range kb.organizations {
		res = append(res, o)
	}
	slices.SortFunc(res, func(a, b model.Organization) int {
		return model.CompareOrganizationIDs(a.ID, b.ID)
	})
	return res
}

// MaxActive returns the selection limit.
func (kb *KnowledgeBase) MaxActive() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.maxActive
}

// ActiveOrganizations returns the current selection in activation order.
func (kb *KnowledgeBase) ActiveOrganizations() []model.OrganizationID {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]model.OrganizationID(nil), kb.active...)
}

// IsActive reports whether id is selected.
func (kb *KnowledgeBase) IsActive(id model.OrganizationID) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return indexOf(kb.active, id) >= 0
}

// Activate appends id to the selection. Activating an already active
// organization is a no-op.
func (kb *KnowledgeBase) Activate(id model.OrganizationID) error {
	kb.mu.Lock()
	if _, ok := kb.organizations[id]; !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownOrganization, id)
	}
	if indexOf(kb.active, id) >= 0 {
		kb.mu.Unlock()
		return nil
	}
	if len(kb.active) >= kb.maxActive {
		kb.mu.Unlock()
		return fmt.Errorf("%w: limit is %d", ErrTooManyActive, kb.maxActive)
	}
	kb.active = append(kb.active, id)
	event, subs := kb.selectionEventLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// Deactivate removes id from the selection. Removing an inactive organization
// is a no-op.
func (kb *KnowledgeBase) Deactivate(id model.OrganizationID) {
	kb.mu.Lock()
	i := indexOf(kb.active, id)
	if i < 0 {
		kb.mu.Unlock()
		return
	}
	kb.active = append(kb.active[:i:i], kb.active[i+1:]...)
	event, subs := kb.selectionEventLocked()
	kb.mu.Unlock()

	notify(subs, event)
}

// SetActive replaces the whole selection. Duplicates collapse to their first
// occurrence. The selection is left unchanged on error.
func (kb *KnowledgeBase) SetActive(ids []model.OrganizationID) error {
	kb.mu.Lock()
	next := make([]model.OrganizationID, 0, len(ids))
	for _, id := range ids {
		if _, ok := kb.organizations[id]; !ok {
			kb.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrUnknownOrganization, id)
		}
		if indexOf(next, id) < 0 {
			next = append(next, id)
		}
	}
	if len(next) > kb.maxActive {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %d requested, limit is %d", ErrTooManyActive, len(next), kb.maxActive)
	}
	kb.active = next
	event, subs := kb.selectionEventLocked()
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.subs = append(kb.subs, fn)
	idx := len(kb.subs) - 1

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		if idx < 0 || idx >= len(kb.subs) {
			return
		}
		kb.subs[idx] = nil
		idx = -1
	}
}

func (kb *KnowledgeBase) selectionEventLocked() (Event, []func(Event)) {
	return Event{
		Type:   EventSelectionChanged,
		Active: append([]model.OrganizationID(nil), kb.active...),
	}, kb.snapshotSubsLocked()
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	subs := make([]func(Event), 0, len(kb.subs))
	for _, s := range kb.subs {
		if s != nil {
			subs = append(subs, s)
		}
	}
	return subs
}

// notify runs outside the lock so subscribers may call back into the KB.
func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}

func indexOf(ids []model.OrganizationID, id model.OrganizationID) int {
	for i, cur := range ids {
		if cur == id {
			return i
		}
	}
	return -1
}

func cloneCountry(c model.CountryRecord) model.CountryRecord {
	if c.Memberships != nil {
		m := make(map[model.OrganizationID]bool, len(c.Memberships))
		for k, v := range c.Memberships {
			m[k] = v
		}
		c.Memberships = m
	}
	return c
}
