// Package memory keeps every collection in process memory. It backs
// development mode and the service and HTTP tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Chitrarthrai/NeoCompliance/internal/apperr"
	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
	"github.com/Chitrarthrai/NeoCompliance/internal/quiz"
	"github.com/Chitrarthrai/NeoCompliance/internal/scoring"
)

type scoreKey struct {
	userID    string
	sectionID string
}

type refreshEntry struct {
	expiresAt time.Time
}

type Store struct {
	mu sync.RWMutex

	users      *identities
	inspectors *identities

	refresh  map[string]map[string]refreshEntry
	stores   map[string]*org.Store
	sections map[string]quiz.Section
	scores   map[scoreKey]scoring.Record
	now      func() time.Time
}

func New() *Store {
	s := &Store{
		refresh:  make(map[string]map[string]refreshEntry),
		stores:   make(map[string]*org.Store),
		sections: make(map[string]quiz.Section),
		scores:   make(map[scoreKey]scoring.Record),
		now:      time.Now,
	}
	s.users = &identities{parent: s, byID: make(map[string]auth.Identity)}
	s.inspectors = &identities{parent: s, byID: make(map[string]auth.Identity)}
	return s
}

// Users returns the standard user collection.
func (s *Store) Users() auth.IdentityStore { return s.users }

// Inspectors returns the inspector collection.
func (s *Store) Inspectors() auth.IdentityStore { return s.inspectors }

// Ping satisfies readiness probes.
func (s *Store) Ping(context.Context) error { return nil }

type identities struct {
	parent *Store
	byID   map[string]auth.Identity
}

func cloneIdentity(i auth.Identity) auth.Identity {
	i.AssignedStores = append([]string(nil), i.AssignedStores...)
	return i
}

func (c *identities) FindByEmail(_ context.Context, email string) (auth.Identity, error) {
	c.parent.mu.RLock()
	defer c.parent.mu.RUnlock()
	for _, identity := range c.byID {
		if identity.Email == email {
			return cloneIdentity(identity), nil
		}
	}
	return auth.Identity{}, apperr.NotFound("identity not found")
}

func (c *identities) FindByID(_ context.Context, id string) (auth.Identity, error) {
	c.parent.mu.RLock()
	defer c.parent.mu.RUnlock()
	identity, ok := c.byID[id]
	if !ok {
		return auth.Identity{}, apperr.NotFound("identity not found")
	}
	return cloneIdentity(identity), nil
}

func (c *identities) Create(_ context.Context, identity *auth.Identity) error {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	for _, existing := range c.byID {
		if existing.Email == identity.Email {
			return apperr.Conflict("Email already exists.")
		}
	}
	if _, ok := c.byID[identity.ID]; ok {
		return apperr.Conflict("identity already exists")
	}
	c.byID[identity.ID] = cloneIdentity(*identity)
	return nil
}

func (c *identities) SetAssignedStores(_ context.Context, id string, storeIDs []string, at time.Time) (auth.Identity, error) {
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	identity, ok := c.byID[id]
	if !ok {
		return auth.Identity{}, apperr.NotFound("identity not found")
	}
	identity.AssignedStores = append([]string{}, storeIDs...)
	identity.UpdatedAt = at
	c.byID[id] = identity
	return cloneIdentity(identity), nil
}

// SetStatus changes an identity's status in either collection.
func (s *Store) SetStatus(id, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []*identities{s.users, s.inspectors} {
		if identity, ok := c.byID[id]; ok {
			identity.Status = status
			c.byID[id] = identity
			return true
		}
	}
	return false
}

// Refresh tokens.

func (s *Store) liveSet(subjectID string) map[string]refreshEntry {
	set := s.refresh[subjectID]
	now := s.now()
	for digest, entry := range set {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(set, digest)
		}
	}
	return set
}

func (s *Store) AddRefreshToken(_ context.Context, subjectID, digest string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.liveSet(subjectID)
	if set == nil {
		set = make(map[string]refreshEntry)
		s.refresh[subjectID] = set
	}
	set[digest] = refreshEntry{expiresAt: expiresAt}
	return nil
}

func (s *Store) ReplaceRefreshToken(_ context.Context, subjectID, oldDigest, newDigest string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.liveSet(subjectID)
	if _, ok := set[oldDigest]; !ok {
		return false, nil
	}
	delete(set, oldDigest)
	set[newDigest] = refreshEntry{expiresAt: expiresAt}
	return true, nil
}

func (s *Store) RemoveRefreshToken(_ context.Context, subjectID, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.liveSet(subjectID)
	if _, ok := set[digest]; !ok {
		return false, nil
	}
	delete(set, digest)
	return true, nil
}

func (s *Store) HasRefreshToken(_ context.Context, subjectID, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.liveSet(subjectID)[digest]
	return ok, nil
}

// Stores.

func cloneStore(st *org.Store) org.Store {
	out := *st
	out.Managers = append([]string{}, st.Managers...)
	out.Associates = append([]string{}, st.Associates...)
	return out
}

func (s *Store) CreateStore(_ context.Context, store *org.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.stores[store.ID]; ok {
		return apperr.Conflict("store already exists")
	}
	cp := cloneStore(store)
	s.stores[store.ID] = &cp
	return nil
}

func (s *Store) GetStore(_ context.Context, id string) (org.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[id]
	if !ok {
		return org.Store{}, org.ErrStoreNotFound
	}
	return cloneStore(st), nil
}

func (s *Store) ListStores(context.Context) ([]org.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]org.Store, 0, len(s.stores))
	for _, st := range s.stores {
		out = append(out, cloneStore(st))
	}
	sortStores(out)
	return out, nil
}

func (s *Store) AddStoreMember(_ context.Context, storeID, userID string, role auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[storeID]
	if !ok {
		return org.ErrStoreNotFound
	}
	list := memberList(st, role)
	if list == nil {
		return apperr.BadRequest("role has no store membership")
	}
	for _, id := range *list {
		if id == userID {
			return nil
		}
	}
	*list = append(*list, userID)
	st.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) RemoveStoreMember(_ context.Context, storeID, userID string, role auth.Role) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stores[storeID]
	if !ok {
		return false, org.ErrStoreNotFound
	}
	list := memberList(st, role)
	if list == nil {
		return false, nil
	}
	for i, id := range *list {
		if id == userID {
			*list = append((*list)[:i], (*list)[i+1:]...)
			st.UpdatedAt = s.now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) StoresWithMember(_ context.Context, userID string, role auth.Role) ([]org.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []org.Store
	for _, st := range s.stores {
		if st.HasMember(userID, role) {
			out = append(out, cloneStore(st))
		}
	}
	sortStores(out)
	return out, nil
}

func memberList(st *org.Store, role auth.Role) *[]string {
	switch role {
	case auth.RoleManager:
		return &st.Managers
	case auth.RoleAssociate:
		return &st.Associates
	}
	return nil
}

func sortStores(stores []org.Store) {
	sort.Slice(stores, func(i, j int) bool {
		if !stores[i].CreatedAt.Equal(stores[j].CreatedAt) {
			return stores[i].CreatedAt.Before(stores[j].CreatedAt)
		}
		return stores[i].ID < stores[j].ID
	})
}

// Sections.

func (s *Store) InsertSections(_ context.Context, sections []quiz.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sec := range sections {
		if _, ok := s.sections[sec.ID]; ok {
			return apperr.Conflict("section already exists")
		}
	}
	for _, sec := range sections {
		s.sections[sec.ID] = sec
	}
	return nil
}

func (s *Store) SectionsByRoleAndNumber(_ context.Context, role auth.Role, number int) ([]quiz.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []quiz.Section{}
	for _, sec := range s.sections {
		if sec.Role == role && sec.Number == number {
			out = append(out, sec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SectionSummaries(_ context.Context, role auth.Role) ([]quiz.SectionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []quiz.SectionSummary{}
	for _, sec := range s.sections {
		if sec.Role == role {
			out = append(out, quiz.SectionSummary{ID: sec.ID, Name: sec.Name, Number: sec.Number})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Scores.

func (s *Store) UpsertScore(_ context.Context, rec scoring.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[rec.SectionID]; !ok {
		return apperr.NotFound("Section not found")
	}
	rec.WrongQuestions = append([]int{}, rec.WrongQuestions...)
	s.scores[scoreKey{userID: rec.UserID, sectionID: rec.SectionID}] = rec
	return nil
}

func (s *Store) SectionScores(_ context.Context, userIDs []string) ([]scoring.SectionScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	out := []scoring.SectionScore{}
	for key, rec := range s.scores {
		if _, ok := wanted[key.userID]; !ok {
			continue
		}
		sec, ok := s.sections[key.sectionID]
		if !ok {
			continue
		}
		out = append(out, scoring.SectionScore{
			UserID:         rec.UserID,
			SectionID:      rec.SectionID,
			Section:        sec.Name,
			SectionNo:      sec.Number,
			Role:           sec.Role,
			TotalCorrect:   rec.TotalCorrect,
			TotalWrong:     rec.TotalWrong,
			WrongQuestions: append([]int{}, rec.WrongQuestions...),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SectionNo != out[j].SectionNo {
			return out[i].SectionNo < out[j].SectionNo
		}
		if out[i].SectionID != out[j].SectionID {
			return out[i].SectionID < out[j].SectionID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// ScoreCount returns the number of stored score records.
func (s *Store) ScoreCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores)
}
