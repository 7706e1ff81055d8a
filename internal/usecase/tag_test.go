package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/repository"
)

func newTagServiceForTest(t *testing.T) (*TagService, *relationStoreMock, *eventsMock, *recorderMock) {
	t.Helper()
	store := newRelationStoreMock()
	events := &eventsMock{}
	recorder := &recorderMock{}
	svc := NewTagService(store, zaptest.NewLogger(t)).
		WithEventPublisher(events).
		WithRecorder(recorder)
	return svc, store, events, recorder
}

func TestTagService_BatchAssignIdempotent(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addSuppliers(1, 2, 3)
	store.addTag(10, "strategic")

	first, err := svc.BatchAssign(context.Background(), "admin", 10, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("first BatchAssign returned error: %v", err)
	}
	if first.Added != 3 || first.Skipped != 0 {
		t.Fatalf("first BatchAssign = %+v, want added=3 skipped=0", first)
	}

	second, err := svc.BatchAssign(context.Background(), "admin", 10, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("second BatchAssign returned error: %v", err)
	}
	if second.Added != 0 || second.Skipped != 3 {
		t.Fatalf("second BatchAssign = %+v, want added=0 skipped=3", second)
	}
}

func TestTagService_BatchAssignDeduplicatesInput(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addSuppliers(1, 2)
	store.addTag(10, "strategic")
	store.addTag(11, "local")

	withDupes, err := svc.BatchAssign(context.Background(), "admin", 10, []int64{1, 1, 2})
	if err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}
	plain, err := svc.BatchAssign(context.Background(), "admin", 11, []int64{1, 2})
	if err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}
	if withDupes != plain {
		t.Fatalf("duplicated input result %+v differs from plain %+v", withDupes, plain)
	}
	if withDupes.Added != 2 || withDupes.Skipped != 0 {
		t.Fatalf("unexpected result %+v", withDupes)
	}
}

func TestTagService_BatchAssignSkipsUnknownSuppliers(t *testing.T) {
	svc, store, _, recorder := newTagServiceForTest(t)
	store.addSuppliers(1)
	store.addTag(10, "strategic")

	result, err := svc.BatchAssign(context.Background(), "admin", 10, []int64{1, 404, -1})
	if err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}
	if result.Added != 1 || result.Skipped != 2 {
		t.Fatalf("BatchAssign = %+v, want added=1 skipped=2", result)
	}
	if got := recorder.get(BatchOperationTagAssign, BatchOutcomeSkipped); got != 2 {
		t.Fatalf("recorded skipped = %d, want 2", got)
	}
}

func TestTagService_BatchAssignValidation(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addTag(10, "strategic")

	if _, err := svc.BatchAssign(context.Background(), "admin", 10, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty batch, got %v", err)
	}
	if _, err := svc.BatchAssign(context.Background(), "admin", 0, []int64{1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero tag id, got %v", err)
	}
	if _, err := svc.BatchAssign(context.Background(), "admin", 99, []int64{1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tag, got %v", err)
	}
}

func TestTagService_BatchAssignConcurrentRequestsNeverDoubleCount(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addSuppliers(1, 2, 3, 4)
	store.addTag(10, "strategic")

	const workers = 8
	var wg sync.WaitGroup
	results := make([]domain.BatchAssignResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.BatchAssign(context.Background(), "admin", 10, []int64{1, 2, 3, 4})
			if err != nil {
				t.Errorf("BatchAssign returned error: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	totalAdded := 0
	for _, res := range results {
		totalAdded += res.Added
		if res.Added+res.Skipped != 4 {
			t.Fatalf("result %+v does not account for every supplier", res)
		}
	}
	if totalAdded != 4 {
		t.Fatalf("total added across workers = %d, want 4", totalAdded)
	}
}

func TestTagService_BatchAssignPublishesEvent(t *testing.T) {
	svc, store, events, _ := newTagServiceForTest(t)
	store.addSuppliers(1, 2)
	store.addTag(10, "strategic")

	if _, err := svc.BatchAssign(context.Background(), "admin-1", 10, []int64{1, 2}); err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}
	if _, err := svc.BatchAssign(context.Background(), "admin-1", 10, []int64{1, 2}); err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}

	if len(events.tagsAssigned) != 1 {
		t.Fatalf("expected one event for the effective batch, got %d", len(events.tagsAssigned))
	}
	event := events.tagsAssigned[0]
	if event.TagID != 10 || event.Added != 2 || event.ActorID != "admin-1" || event.EventID == "" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestTagService_PublishFailureDoesNotFailBatch(t *testing.T) {
	svc, store, events, _ := newTagServiceForTest(t)
	events.err = errors.New("broker down")
	store.addSuppliers(1)
	store.addTag(10, "strategic")

	result, err := svc.BatchAssign(context.Background(), "admin", 10, []int64{1})
	if err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}
	if result.Added != 1 {
		t.Fatalf("expected added=1, got %+v", result)
	}
}

func TestTagService_BatchRemoveCountsOnlyExistingLinks(t *testing.T) {
	svc, store, events, recorder := newTagServiceForTest(t)
	store.addSuppliers(1, 2)
	store.addTag(10, "strategic")

	if _, err := svc.BatchAssign(context.Background(), "admin", 10, []int64{1}); err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}

	result, err := svc.BatchRemove(context.Background(), "admin", 10, []int64{1, 2, 404, 1})
	if err != nil {
		t.Fatalf("BatchRemove returned error: %v", err)
	}
	if result.Removed != 1 {
		t.Fatalf("BatchRemove = %+v, want removed=1", result)
	}
	if got := recorder.get(BatchOperationTagRemove, BatchOutcomeUnchanged); got != 2 {
		t.Fatalf("recorded unchanged = %d, want 2", got)
	}
	if len(events.tagsRemoved) != 1 {
		t.Fatalf("expected one removal event, got %d", len(events.tagsRemoved))
	}
	if got := events.tagsRemoved[0].SupplierIDs; !reflect.DeepEqual(got, []int64{1}) {
		t.Fatalf("removal event supplier ids = %v, want only the unlinked supplier [1]", got)
	}

	again, err := svc.BatchRemove(context.Background(), "admin", 10, []int64{1})
	if err != nil {
		t.Fatalf("repeated BatchRemove returned error: %v", err)
	}
	if again.Removed != 0 {
		t.Fatalf("repeated BatchRemove = %+v, want removed=0", again)
	}
}

func TestTagService_BatchRemoveUnknownTag(t *testing.T) {
	svc, _, _, _ := newTagServiceForTest(t)
	if _, err := svc.BatchRemove(context.Background(), "admin", 5, []int64{1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTagService_ScenarioAssignReassignRemove(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addSuppliers(1, 2, 3)
	tag, err := svc.CreateTag(context.Background(), CreateTagInput{Name: "Critical"})
	if err != nil {
		t.Fatalf("CreateTag returned error: %v", err)
	}

	assigned, err := svc.BatchAssign(context.Background(), "admin", tag.ID, []int64{1, 2, 3})
	if err != nil || assigned.Added != 3 || assigned.Skipped != 0 {
		t.Fatalf("assign = %+v, err %v", assigned, err)
	}

	reassigned, err := svc.BatchAssign(context.Background(), "admin", tag.ID, []int64{1})
	if err != nil || reassigned.Added != 0 || reassigned.Skipped != 1 {
		t.Fatalf("reassign = %+v, err %v", reassigned, err)
	}

	removed, err := svc.BatchRemove(context.Background(), "admin", tag.ID, []int64{1})
	if err != nil || removed.Removed != 1 {
		t.Fatalf("remove = %+v, err %v", removed, err)
	}

	suppliers, err := svc.ListSuppliersForTag(context.Background(), tag.ID)
	if err != nil {
		t.Fatalf("ListSuppliersForTag returned error: %v", err)
	}
	if len(suppliers) != 2 || suppliers[0].ID != 2 || suppliers[1].ID != 3 {
		t.Fatalf("suppliers = %+v, want [2 3]", suppliers)
	}
}

func TestTagService_ListSuppliersForUnknownTag(t *testing.T) {
	svc, _, _, _ := newTagServiceForTest(t)
	if _, err := svc.ListSuppliersForTag(context.Background(), 77); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTagService_CreateTagNormalisesAndRejectsDuplicates(t *testing.T) {
	svc, _, _, _ := newTagServiceForTest(t)
	blank := "  "

	tag, err := svc.CreateTag(context.Background(), CreateTagInput{Name: "  Preferred Vendor ", Color: &blank})
	if err != nil {
		t.Fatalf("CreateTag returned error: %v", err)
	}
	if tag.Name != "preferred vendor" {
		t.Fatalf("tag name = %q, want normalised", tag.Name)
	}
	if tag.Color != nil {
		t.Fatalf("blank color should be dropped, got %q", *tag.Color)
	}

	if _, err := svc.CreateTag(context.Background(), CreateTagInput{Name: "PREFERRED VENDOR"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate name, got %v", err)
	}
	if _, err := svc.CreateTag(context.Background(), CreateTagInput{Name: " "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}
}

func TestTagService_UpdateAndDeleteTag(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addSuppliers(1)
	store.addTag(1, "alpha")
	store.addTag(2, "beta")

	name := " Gamma "
	updated, err := svc.UpdateTag(context.Background(), 1, UpdateTagInput{Name: &name})
	if err != nil {
		t.Fatalf("UpdateTag returned error: %v", err)
	}
	if updated.Name != "gamma" {
		t.Fatalf("updated name = %q, want gamma", updated.Name)
	}

	clash := "beta"
	if _, err := svc.UpdateTag(context.Background(), 1, UpdateTagInput{Name: &clash}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.UpdateTag(context.Background(), 9, UpdateTagInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.BatchAssign(context.Background(), "admin", 1, []int64{1}); err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}
	if err := svc.DeleteTag(context.Background(), 1); err != nil {
		t.Fatalf("DeleteTag returned error: %v", err)
	}
	if len(store.supplierTags) != 0 {
		t.Fatalf("expected supplier links to be removed with the tag")
	}
	if err := svc.DeleteTag(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTagService_ListTags(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addTag(2, "beta")
	store.addTag(1, "alpha")

	tags, err := svc.ListTags(context.Background())
	if err != nil {
		t.Fatalf("ListTags returned error: %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "alpha" {
		t.Fatalf("unexpected tags %+v", tags)
	}

	boom := errors.New("db down")
	store.listErr = boom
	if _, err := svc.ListTags(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestTagService_ReplaceSupplierTags(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addSuppliers(1, 2)
	store.addTag(1, "strategic")
	store.addTag(2, "legacy")
	if _, err := svc.BatchAssign(context.Background(), "admin", 2, []int64{1, 2}); err != nil {
		t.Fatalf("BatchAssign returned error: %v", err)
	}

	tags, err := svc.ReplaceSupplierTags(context.Background(), "admin", 1, []string{" Strategic ", "critical", "", "STRATEGIC"})
	if err != nil {
		t.Fatalf("ReplaceSupplierTags returned error: %v", err)
	}
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	if !reflect.DeepEqual(names, []string{"critical", "strategic"}) {
		t.Fatalf("supplier tags = %v, want [critical strategic]", names)
	}

	created, err := store.GetByName(context.Background(), "critical")
	if err != nil {
		t.Fatalf("expected critical to be created: %v", err)
	}
	if created.Description == nil || *created.Description != userDefinedTagDescription {
		t.Fatalf("unexpected description on created tag %+v", created)
	}
	if _, linked := store.supplierTags[tagPair{supplierID: 1, tagID: 2}]; linked {
		t.Fatalf("legacy tag should be unlinked from supplier 1")
	}
	if _, linked := store.supplierTags[tagPair{supplierID: 2, tagID: 2}]; !linked {
		t.Fatalf("other suppliers must keep their tags")
	}

	cleared, err := svc.ReplaceSupplierTags(context.Background(), "admin", 1, []string{})
	if err != nil {
		t.Fatalf("ReplaceSupplierTags returned error: %v", err)
	}
	if cleared == nil || len(cleared) != 0 {
		t.Fatalf("expected an empty tag set, got %#v", cleared)
	}
}

func TestTagService_ReplaceSupplierTagsValidation(t *testing.T) {
	svc, store, _, _ := newTagServiceForTest(t)
	store.addSuppliers(1)

	if _, err := svc.ReplaceSupplierTags(context.Background(), "admin", 1, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing tags, got %v", err)
	}
	if _, err := svc.ReplaceSupplierTags(context.Background(), "admin", 0, []string{"x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad supplier id, got %v", err)
	}
	if _, err := svc.ReplaceSupplierTags(context.Background(), "admin", 404, []string{"x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown supplier, got %v", err)
	}
}

// concurrentCreateStore makes every Create lose against a writer that inserted the same name first.
type concurrentCreateStore struct {
	*relationStoreMock
}

func (s concurrentCreateStore) Create(ctx context.Context, tag domain.Tag) (domain.Tag, error) {
	if _, err := s.relationStoreMock.Create(ctx, tag); err != nil {
		return domain.Tag{}, err
	}
	return domain.Tag{}, repository.ErrConflict
}

func TestTagService_ReplaceSupplierTagsReusesConcurrentlyCreatedTag(t *testing.T) {
	store := newRelationStoreMock()
	store.addSuppliers(1)
	svc := NewTagService(concurrentCreateStore{store}, zaptest.NewLogger(t))

	tags, err := svc.ReplaceSupplierTags(context.Background(), "admin", 1, []string{"urgent"})
	if err != nil {
		t.Fatalf("ReplaceSupplierTags returned error: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "urgent" || tags[0].ID == 0 {
		t.Fatalf("unexpected tags %+v", tags)
	}
}
