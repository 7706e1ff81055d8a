package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/repository"
)

// relationStoreMock keeps suppliers, tags and buyer assignments in memory and
// enforces the same unique pairs the relational schema does.

type pair struct {
	left  string
	right int64
}

type tagPair struct {
	supplierID int64
	tagID      int64
}

type relationStoreMock struct {
	mu sync.Mutex

	suppliers    map[int64]domain.Supplier
	tags         map[int64]domain.Tag
	supplierTags map[tagPair]struct{}
	nextTagID    int64

	assignments      map[int64]domain.BuyerSupplierAssignment
	assignmentByPair map[pair]int64
	nextAssignmentID int64

	users map[string]domain.User

	listErr   error
	assignErr error
}

func newRelationStoreMock() *relationStoreMock {
	return &relationStoreMock{
		suppliers:        make(map[int64]domain.Supplier),
		tags:             make(map[int64]domain.Tag),
		supplierTags:     make(map[tagPair]struct{}),
		assignments:      make(map[int64]domain.BuyerSupplierAssignment),
		assignmentByPair: make(map[pair]int64),
		users:            make(map[string]domain.User),
	}
}

func (m *relationStoreMock) addSuppliers(ids ...int64) {
	for _, id := range ids {
		m.suppliers[id] = domain.Supplier{ID: id, CompanyName: "supplier", Status: "active"}
	}
}

func (m *relationStoreMock) addTag(id int64, name string) {
	m.tags[id] = domain.Tag{ID: id, Name: name}
	if id > m.nextTagID {
		m.nextTagID = id
	}
}

// tag repository

func (m *relationStoreMock) List(_ context.Context) ([]domain.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tags := make([]domain.Tag, 0, len(m.tags))
	for _, tag := range m.tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (m *relationStoreMock) GetByID(_ context.Context, id int64) (*domain.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tag, ok := m.tags[id]; ok {
		return &tag, nil
	}
	return nil, repository.ErrNotFound
}

func (m *relationStoreMock) GetByName(_ context.Context, name string) (*domain.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tag := range m.tags {
		if tag.Name == name {
			t := tag
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *relationStoreMock) Create(_ context.Context, tag domain.Tag) (domain.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tags {
		if existing.Name == tag.Name {
			return domain.Tag{}, repository.ErrConflict
		}
	}
	m.nextTagID++
	tag.ID = m.nextTagID
	m.tags[tag.ID] = tag
	return tag, nil
}

func (m *relationStoreMock) Update(_ context.Context, id int64, upd domain.TagUpdate) (domain.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tag, ok := m.tags[id]
	if !ok {
		return domain.Tag{}, repository.ErrNotFound
	}
	if upd.Name != nil {
		for otherID, other := range m.tags {
			if otherID != id && other.Name == *upd.Name {
				return domain.Tag{}, repository.ErrConflict
			}
		}
		tag.Name = *upd.Name
	}
	if upd.Description != nil {
		tag.Description = upd.Description
	}
	if upd.Color != nil {
		tag.Color = upd.Color
	}
	m.tags[id] = tag
	return tag, nil
}

func (m *relationStoreMock) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.tags, id)
	for key := range m.supplierTags {
		if key.tagID == id {
			delete(m.supplierTags, key)
		}
	}
	return nil
}

func (m *relationStoreMock) AssignSuppliers(_ context.Context, tagID int64, supplierIDs []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignErr != nil {
		return nil, m.assignErr
	}
	if _, ok := m.tags[tagID]; !ok {
		return nil, repository.ErrNotFound
	}
	added := make([]int64, 0, len(supplierIDs))
	for _, id := range supplierIDs {
		if _, ok := m.suppliers[id]; !ok {
			continue
		}
		key := tagPair{supplierID: id, tagID: tagID}
		if _, exists := m.supplierTags[key]; exists {
			continue
		}
		m.supplierTags[key] = struct{}{}
		added = append(added, id)
	}
	return added, nil
}

func (m *relationStoreMock) RemoveSuppliers(_ context.Context, tagID int64, supplierIDs []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make([]int64, 0)
	for _, id := range supplierIDs {
		key := tagPair{supplierID: id, tagID: tagID}
		if _, exists := m.supplierTags[key]; exists {
			delete(m.supplierTags, key)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (m *relationStoreMock) ListSuppliers(_ context.Context, tagID int64) ([]domain.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	suppliers := make([]domain.Supplier, 0)
	for key := range m.supplierTags {
		if key.tagID == tagID {
			suppliers = append(suppliers, m.suppliers[key.supplierID])
		}
	}
	sort.Slice(suppliers, func(i, j int) bool { return suppliers[i].ID < suppliers[j].ID })
	return suppliers, nil
}

func (m *relationStoreMock) ReplaceSupplierTags(_ context.Context, supplierID int64, tagIDs []int64) ([]domain.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.suppliers[supplierID]; !ok {
		return nil, repository.ErrNotFound
	}
	keep := make(map[int64]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		if _, ok := m.tags[id]; ok {
			keep[id] = struct{}{}
		}
	}
	for key := range m.supplierTags {
		if _, ok := keep[key.tagID]; key.supplierID == supplierID && !ok {
			delete(m.supplierTags, key)
		}
	}
	tags := make([]domain.Tag, 0, len(keep))
	for id := range keep {
		m.supplierTags[tagPair{supplierID: supplierID, tagID: id}] = struct{}{}
		tags = append(tags, m.tags[id])
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (m *relationStoreMock) ListSupplierIDsByTags(_ context.Context, tagIDs []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	wanted := make(map[int64]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		wanted[id] = struct{}{}
	}
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for key := range m.supplierTags {
		if _, ok := wanted[key.tagID]; !ok {
			continue
		}
		if _, dup := seen[key.supplierID]; dup {
			continue
		}
		seen[key.supplierID] = struct{}{}
		ids = append(ids, key.supplierID)
	}
	return ids, nil
}

// buyer assignment repository, exposed through a thin adapter because the
// method names overlap with the tag repository.

type buyerAssignmentsMock struct {
	store *relationStoreMock
}

func (b buyerAssignmentsMock) AssignSuppliers(_ context.Context, buyerID string, supplierIDs []int64, createdBy string) ([]int64, error) {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignErr != nil {
		return nil, m.assignErr
	}
	created := make([]int64, 0, len(supplierIDs))
	for _, id := range supplierIDs {
		if _, ok := m.suppliers[id]; !ok {
			continue
		}
		key := pair{left: buyerID, right: id}
		if _, exists := m.assignmentByPair[key]; exists {
			continue
		}
		m.nextAssignmentID++
		m.assignments[m.nextAssignmentID] = domain.BuyerSupplierAssignment{
			ID:         m.nextAssignmentID,
			BuyerID:    buyerID,
			SupplierID: id,
			CreatedAt:  time.Now().UTC(),
			CreatedBy:  createdBy,
		}
		m.assignmentByPair[key] = m.nextAssignmentID
		created = append(created, id)
	}
	return created, nil
}

func (b buyerAssignmentsMock) RemoveSuppliers(_ context.Context, buyerID string, supplierIDs []int64) ([]int64, error) {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assignErr != nil {
		return nil, m.assignErr
	}
	removed := make([]int64, 0)
	for _, id := range supplierIDs {
		key := pair{left: buyerID, right: id}
		if assignmentID, ok := m.assignmentByPair[key]; ok {
			delete(m.assignments, assignmentID)
			delete(m.assignmentByPair, key)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (b buyerAssignmentsMock) ListBySupplier(_ context.Context, supplierID int64) ([]domain.SupplierBuyer, error) {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.SupplierBuyer
	for _, assignment := range m.assignments {
		if assignment.SupplierID != supplierID {
			continue
		}
		user := m.users[assignment.BuyerID]
		result = append(result, domain.SupplierBuyer{
			AssignmentID: assignment.ID,
			BuyerID:      assignment.BuyerID,
			BuyerName:    user.Name,
			BuyerEmail:   user.Email,
			SupplierID:   supplierID,
			CreatedAt:    assignment.CreatedAt,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BuyerName < result[j].BuyerName })
	return result, nil
}

func (b buyerAssignmentsMock) ListByBuyer(_ context.Context, buyerID string) ([]domain.AssignedSupplier, error) {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.AssignedSupplier
	for _, assignment := range m.assignments {
		if assignment.BuyerID == buyerID {
			result = append(result, domain.AssignedSupplier{Assignment: assignment, Supplier: m.suppliers[assignment.SupplierID]})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Assignment.ID < result[j].Assignment.ID })
	return result, nil
}

func (b buyerAssignmentsMock) GetByID(_ context.Context, id int64) (*domain.BuyerSupplierAssignment, error) {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if assignment, ok := m.assignments[id]; ok {
		return &assignment, nil
	}
	return nil, repository.ErrNotFound
}

func (b buyerAssignmentsMock) Delete(_ context.Context, id int64) error {
	m := b.store
	m.mu.Lock()
	defer m.mu.Unlock()
	assignment, ok := m.assignments[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(m.assignments, id)
	delete(m.assignmentByPair, pair{left: assignment.BuyerID, right: assignment.SupplierID})
	return nil
}

// user repository

type usersMock struct {
	store *relationStoreMock
	err   error
	calls int
	mu    sync.Mutex
	delay time.Duration
}

func (u *usersMock) GetByID(_ context.Context, id string) (*domain.User, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	if u.delay > 0 {
		time.Sleep(u.delay)
	}
	if u.err != nil {
		return nil, u.err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if user, ok := u.store.users[id]; ok {
		return &user, nil
	}
	return nil, repository.ErrNotFound
}

func (u *usersMock) ListByRoles(_ context.Context, roles []string) ([]domain.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	var users []domain.User
	for _, user := range u.store.users {
		for _, role := range roles {
			if user.Role == role {
				users = append(users, user)
				break
			}
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (u *usersMock) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

// event publisher

type eventsMock struct {
	mu                sync.Mutex
	tagsAssigned      []domain.SupplierTagsAssignedEvent
	tagsRemoved       []domain.SupplierTagsRemovedEvent
	buyerAssigned     []domain.BuyerSuppliersAssignedEvent
	buyerUnassigned   []domain.BuyerAssignmentRemovedEvent
	buyerBatchRemoved []domain.BuyerSuppliersUnassignedEvent
	err               error
}

func (e *eventsMock) PublishSupplierTagsAssigned(_ context.Context, event domain.SupplierTagsAssignedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tagsAssigned = append(e.tagsAssigned, event)
	return e.err
}

func (e *eventsMock) PublishSupplierTagsRemoved(_ context.Context, event domain.SupplierTagsRemovedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tagsRemoved = append(e.tagsRemoved, event)
	return e.err
}

func (e *eventsMock) PublishBuyerSuppliersAssigned(_ context.Context, event domain.BuyerSuppliersAssignedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buyerAssigned = append(e.buyerAssigned, event)
	return e.err
}

func (e *eventsMock) PublishBuyerAssignmentRemoved(_ context.Context, event domain.BuyerAssignmentRemovedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buyerUnassigned = append(e.buyerUnassigned, event)
	return e.err
}

func (e *eventsMock) PublishBuyerSuppliersUnassigned(_ context.Context, event domain.BuyerSuppliersUnassignedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buyerBatchRemoved = append(e.buyerBatchRemoved, event)
	return e.err
}

// batch recorder

type recorderMock struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *recorderMock) ObserveBatch(operation, outcome string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[operation+"/"+outcome] += count
}

func (r *recorderMock) get(operation, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[operation+"/"+outcome]
}
