package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/core/port"
	"github.com/arklim/srm-service/internal/repository"
)

// CreateTagInput captures the payload for creating a tag.
type CreateTagInput struct {
	Name        string
	Description *string
	Color       *string
}

// UpdateTagInput captures a partial tag update.
type UpdateTagInput struct {
	Name        *string
	Description *string
	Color       *string
}

// TagService maintains tags and the supplier↔tag relation.
type TagService struct {
	tags     port.TagRepository
	events   port.EventPublisher
	recorder BatchRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewTagService constructs a TagService.
func NewTagService(tags port.TagRepository, logger *zap.Logger) *TagService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TagService{
		tags:     tags,
		recorder: noopBatchRecorder{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithEventPublisher enables audit events for batch mutations.
func (s *TagService) WithEventPublisher(events port.EventPublisher) *TagService {
	s.events = events
	return s
}

// WithRecorder enables batch outcome metrics.
func (s *TagService) WithRecorder(recorder BatchRecorder) *TagService {
	if recorder != nil {
		s.recorder = recorder
	}
	return s
}

// ListTags returns all tags ordered by name.
func (s *TagService) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags, err := s.tags.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// CreateTag provisions a tag. Names are stored trimmed and lower-cased and must be unique.
func (s *TagService) CreateTag(ctx context.Context, input CreateTagInput) (domain.Tag, error) {
	name := normalizeTagName(input.Name)
	if name == "" {
		return domain.Tag{}, fmt.Errorf("%w: tag name is required", ErrValidation)
	}

	if existing, err := s.tags.GetByName(ctx, name); err == nil && existing != nil {
		return domain.Tag{}, fmt.Errorf("tag %q: %w", name, ErrConflict)
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.Tag{}, fmt.Errorf("lookup tag by name: %w", err)
	}

	tag, err := s.tags.Create(ctx, domain.Tag{
		Name:        name,
		Description: trimmedOrNil(input.Description),
		Color:       trimmedOrNil(input.Color),
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.Tag{}, fmt.Errorf("tag %q: %w", name, ErrConflict)
		}
		return domain.Tag{}, fmt.Errorf("create tag: %w", err)
	}

	s.logger.Info("tag created", zap.Int64("tag_id", tag.ID), zap.String("name", tag.Name))
	return tag, nil
}

// UpdateTag applies a partial update to a tag.
func (s *TagService) UpdateTag(ctx context.Context, id int64, input UpdateTagInput) (domain.Tag, error) {
	if id <= 0 {
		return domain.Tag{}, fmt.Errorf("%w: tag id must be positive", ErrValidation)
	}

	upd := domain.TagUpdate{Description: input.Description, Color: input.Color}
	if input.Name != nil {
		name := normalizeTagName(*input.Name)
		if name == "" {
			return domain.Tag{}, fmt.Errorf("%w: tag name cannot be empty", ErrValidation)
		}
		upd.Name = &name
	}

	tag, err := s.tags.Update(ctx, id, upd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return domain.Tag{}, fmt.Errorf("tag %d: %w", id, ErrNotFound)
		case errors.Is(err, repository.ErrConflict):
			return domain.Tag{}, fmt.Errorf("tag name: %w", ErrConflict)
		}
		return domain.Tag{}, fmt.Errorf("update tag: %w", err)
	}
	return tag, nil
}

// DeleteTag removes a tag together with its supplier links.
func (s *TagService) DeleteTag(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: tag id must be positive", ErrValidation)
	}
	if err := s.tags.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("tag %d: %w", id, ErrNotFound)
		}
		return fmt.Errorf("delete tag: %w", err)
	}
	s.logger.Info("tag deleted", zap.Int64("tag_id", id))
	return nil
}

// BatchAssign links each supplier to the tag. Duplicate ids in the request count once.
// Suppliers already carrying the tag, and ids that match no supplier, are reported as skipped.
func (s *TagService) BatchAssign(ctx context.Context, actorID string, tagID int64, supplierIDs []int64) (domain.BatchAssignResult, error) {
	ctx, span := tracer().Start(ctx, "TagService.BatchAssign")
	defer span.End()

	ids, err := s.prepareBatch(ctx, tagID, supplierIDs)
	if err != nil {
		return domain.BatchAssignResult{}, err
	}
	span.SetAttributes(attribute.Int64("tag.id", tagID), attribute.Int("batch.size", len(ids)))

	added, err := s.tags.AssignSuppliers(ctx, tagID, ids)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.BatchAssignResult{}, fmt.Errorf("tag %d: %w", tagID, ErrNotFound)
		}
		span.RecordError(err)
		return domain.BatchAssignResult{}, fmt.Errorf("assign tag to suppliers: %w", err)
	}

	result := domain.BatchAssignResult{Added: len(added), Skipped: len(ids) - len(added)}
	s.recorder.ObserveBatch(BatchOperationTagAssign, BatchOutcomeAdded, result.Added)
	s.recorder.ObserveBatch(BatchOperationTagAssign, BatchOutcomeSkipped, result.Skipped)

	if result.Added > 0 && s.events != nil {
		event := domain.SupplierTagsAssignedEvent{
			EventID:     uuid.NewString(),
			TagID:       tagID,
			SupplierIDs: added,
			Added:       result.Added,
			Skipped:     result.Skipped,
			ActorID:     actorID,
			AssignedAt:  s.now(),
		}
		if err := s.events.PublishSupplierTagsAssigned(ctx, event); err != nil {
			s.logger.Warn("failed to publish supplier tags assigned event", zap.Int64("tag_id", tagID), zap.Error(err))
		}
	}

	return result, nil
}

// BatchRemove unlinks each supplier from the tag, counting only links that existed.
func (s *TagService) BatchRemove(ctx context.Context, actorID string, tagID int64, supplierIDs []int64) (domain.BatchRemoveResult, error) {
	ctx, span := tracer().Start(ctx, "TagService.BatchRemove")
	defer span.End()

	ids, err := s.prepareBatch(ctx, tagID, supplierIDs)
	if err != nil {
		return domain.BatchRemoveResult{}, err
	}
	span.SetAttributes(attribute.Int64("tag.id", tagID), attribute.Int("batch.size", len(ids)))

	removedIDs, err := s.tags.RemoveSuppliers(ctx, tagID, ids)
	if err != nil {
		span.RecordError(err)
		return domain.BatchRemoveResult{}, fmt.Errorf("remove tag from suppliers: %w", err)
	}
	removed := len(removedIDs)

	s.recorder.ObserveBatch(BatchOperationTagRemove, BatchOutcomeRemoved, removed)
	s.recorder.ObserveBatch(BatchOperationTagRemove, BatchOutcomeUnchanged, len(ids)-removed)

	if removed > 0 && s.events != nil {
		event := domain.SupplierTagsRemovedEvent{
			EventID:     uuid.NewString(),
			TagID:       tagID,
			SupplierIDs: removedIDs,
			Removed:     removed,
			ActorID:     actorID,
			RemovedAt:   s.now(),
		}
		if err := s.events.PublishSupplierTagsRemoved(ctx, event); err != nil {
			s.logger.Warn("failed to publish supplier tags removed event", zap.Int64("tag_id", tagID), zap.Error(err))
		}
	}

	return domain.BatchRemoveResult{Removed: removed}, nil
}

// ListSuppliersForTag returns the suppliers currently carrying the tag.
func (s *TagService) ListSuppliersForTag(ctx context.Context, tagID int64) ([]domain.Supplier, error) {
	if err := s.requireTag(ctx, tagID); err != nil {
		return nil, err
	}

	suppliers, err := s.tags.ListSuppliers(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("list suppliers for tag: %w", err)
	}
	if suppliers == nil {
		suppliers = []domain.Supplier{}
	}
	return suppliers, nil
}

// userDefinedTagDescription is attached to tags created implicitly by ReplaceSupplierTags.
const userDefinedTagDescription = "User defined tag"

// ReplaceSupplierTags makes the named tags the supplier's complete tag set. Names are normalised
// like CreateTag does, blanks are dropped and unknown names are created on the fly. An empty list
// clears the supplier's tags.
func (s *TagService) ReplaceSupplierTags(ctx context.Context, actorID string, supplierID int64, names []string) ([]domain.Tag, error) {
	ctx, span := tracer().Start(ctx, "TagService.ReplaceSupplierTags")
	defer span.End()

	if supplierID <= 0 {
		return nil, fmt.Errorf("%w: supplier id must be positive", ErrValidation)
	}
	if names == nil {
		return nil, fmt.Errorf("%w: tags are required", ErrValidation)
	}

	normalized := lo.Uniq(lo.FilterMap(names, func(name string, _ int) (string, bool) {
		name = normalizeTagName(name)
		return name, name != ""
	}))
	span.SetAttributes(attribute.Int64("supplier.id", supplierID), attribute.Int("tags.count", len(normalized)))

	tagIDs := make([]int64, 0, len(normalized))
	for _, name := range normalized {
		tag, err := s.ensureTag(ctx, name)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		tagIDs = append(tagIDs, tag.ID)
	}

	tags, err := s.tags.ReplaceSupplierTags(ctx, supplierID, tagIDs)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("supplier %d: %w", supplierID, ErrNotFound)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("replace supplier tags: %w", err)
	}
	if tags == nil {
		tags = []domain.Tag{}
	}

	s.logger.Info("supplier tags replaced",
		zap.Int64("supplier_id", supplierID),
		zap.String("actor_id", actorID),
		zap.Strings("tags", normalized),
	)
	return tags, nil
}

// ensureTag returns the tag with the normalised name, creating it when missing. A concurrent
// creation of the same name is resolved by reading the winner back.
func (s *TagService) ensureTag(ctx context.Context, name string) (domain.Tag, error) {
	existing, err := s.tags.GetByName(ctx, name)
	if err == nil {
		return *existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Tag{}, fmt.Errorf("lookup tag by name: %w", err)
	}

	description := userDefinedTagDescription
	created, err := s.tags.Create(ctx, domain.Tag{Name: name, Description: &description})
	if err == nil {
		s.logger.Info("tag created", zap.Int64("tag_id", created.ID), zap.String("name", created.Name))
		return created, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return domain.Tag{}, fmt.Errorf("create tag: %w", err)
	}

	winner, err := s.tags.GetByName(ctx, name)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("lookup tag by name: %w", err)
	}
	return *winner, nil
}

func (s *TagService) prepareBatch(ctx context.Context, tagID int64, supplierIDs []int64) ([]int64, error) {
	if len(supplierIDs) == 0 {
		return nil, fmt.Errorf("%w: supplier ids are required", ErrValidation)
	}
	if err := s.requireTag(ctx, tagID); err != nil {
		return nil, err
	}
	return lo.Uniq(supplierIDs), nil
}

func (s *TagService) requireTag(ctx context.Context, tagID int64) error {
	if tagID <= 0 {
		return fmt.Errorf("%w: tag id must be positive", ErrValidation)
	}
	if _, err := s.tags.GetByID(ctx, tagID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("tag %d: %w", tagID, ErrNotFound)
		}
		return fmt.Errorf("lookup tag: %w", err)
	}
	return nil
}

func normalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
