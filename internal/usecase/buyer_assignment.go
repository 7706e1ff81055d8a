package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
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

// BuyerAssignmentService resolves tag-scoped supplier assignments for buyers.
type BuyerAssignmentService struct {
	users       port.UserRepository
	tags        port.TagRepository
	assignments port.BuyerAssignmentRepository
	events      port.EventPublisher
	recorder    BatchRecorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewBuyerAssignmentService constructs a BuyerAssignmentService.
func NewBuyerAssignmentService(users port.UserRepository, tags port.TagRepository, assignments port.BuyerAssignmentRepository, logger *zap.Logger) *BuyerAssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BuyerAssignmentService{
		users:       users,
		tags:        tags,
		assignments: assignments,
		recorder:    noopBatchRecorder{},
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithEventPublisher enables audit events for assignment changes.
func (s *BuyerAssignmentService) WithEventPublisher(events port.EventPublisher) *BuyerAssignmentService {
	s.events = events
	return s
}

// WithRecorder enables batch outcome metrics.
func (s *BuyerAssignmentService) WithRecorder(recorder BatchRecorder) *BuyerAssignmentService {
	if recorder != nil {
		s.recorder = recorder
	}
	return s
}

// AssignByTag assigns every supplier carrying any of the tags to the buyer.
// The buyer must exist before anything is written. Unknown tags contribute no suppliers.
func (s *BuyerAssignmentService) AssignByTag(ctx context.Context, actorID, buyerID string, tagIDs []int64) (domain.AssignByTagResult, error) {
	ctx, span := tracer().Start(ctx, "BuyerAssignmentService.AssignByTag")
	defer span.End()

	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return domain.AssignByTagResult{}, fmt.Errorf("%w: buyer id is required", ErrValidation)
	}
	if len(tagIDs) == 0 {
		return domain.AssignByTagResult{}, fmt.Errorf("%w: tag ids are required", ErrValidation)
	}
	tagIDs = lo.Uniq(tagIDs)
	span.SetAttributes(attribute.String("buyer.id", buyerID), attribute.Int("tags.count", len(tagIDs)))

	buyer, err := s.lookupBuyer(ctx, buyerID)
	if err != nil {
		return domain.AssignByTagResult{}, err
	}

	supplierIDs, err := s.tags.ListSupplierIDsByTags(ctx, tagIDs)
	if err != nil {
		span.RecordError(err)
		return domain.AssignByTagResult{}, fmt.Errorf("resolve suppliers for tags: %w", err)
	}
	supplierIDs = lo.Uniq(supplierIDs)
	sort.Slice(supplierIDs, func(i, j int) bool { return supplierIDs[i] < supplierIDs[j] })

	result := domain.AssignByTagResult{
		BuyerName:      buyer.Name,
		TotalSuppliers: len(supplierIDs),
		SupplierIDs:    supplierIDs,
	}
	if len(supplierIDs) == 0 {
		result.SupplierIDs = []int64{}
		return result, nil
	}

	assigned, err := s.assignments.AssignSuppliers(ctx, buyerID, supplierIDs, actorID)
	if err != nil {
		span.RecordError(err)
		return domain.AssignByTagResult{}, fmt.Errorf("assign suppliers to buyer: %w", err)
	}
	result.AssignedCount = len(assigned)

	s.recorder.ObserveBatch(BatchOperationBuyerAssign, BatchOutcomeAdded, result.AssignedCount)
	s.recorder.ObserveBatch(BatchOperationBuyerAssign, BatchOutcomeSkipped, result.TotalSuppliers-result.AssignedCount)

	s.logger.Info("suppliers assigned to buyer by tag",
		zap.String("buyer_id", buyerID),
		zap.String("actor_id", actorID),
		zap.Int64s("tag_ids", tagIDs),
		zap.Int("assigned", result.AssignedCount),
		zap.Int("total", result.TotalSuppliers),
	)

	if s.events != nil {
		event := domain.BuyerSuppliersAssignedEvent{
			EventID:       uuid.NewString(),
			BuyerID:       buyerID,
			BuyerName:     buyer.Name,
			TagIDs:        tagIDs,
			SupplierIDs:   supplierIDs,
			AssignedCount: result.AssignedCount,
			ActorID:       actorID,
			AssignedAt:    s.now(),
		}
		if err := s.events.PublishBuyerSuppliersAssigned(ctx, event); err != nil {
			s.logger.Warn("failed to publish buyer suppliers assigned event", zap.String("buyer_id", buyerID), zap.Error(err))
		}
	}

	return result, nil
}

// BatchAssignSuppliers assigns the listed suppliers to the buyer. The buyer must hold a buyer
// role. Existing pairs and unknown suppliers are counted as skipped.
func (s *BuyerAssignmentService) BatchAssignSuppliers(ctx context.Context, actorID, buyerID string, supplierIDs []int64) (domain.BatchAssignResult, error) {
	ctx, span := tracer().Start(ctx, "BuyerAssignmentService.BatchAssignSuppliers")
	defer span.End()

	buyerID, ids, err := prepareBuyerBatch(buyerID, supplierIDs)
	if err != nil {
		return domain.BatchAssignResult{}, err
	}
	span.SetAttributes(attribute.String("buyer.id", buyerID), attribute.Int("batch.size", len(ids)))

	buyer, err := s.lookupBuyer(ctx, buyerID)
	if err != nil {
		return domain.BatchAssignResult{}, err
	}
	if !buyer.IsBuyer() {
		return domain.BatchAssignResult{}, fmt.Errorf("%w: user %s is not a purchaser", ErrValidation, buyerID)
	}

	added, err := s.assignments.AssignSuppliers(ctx, buyerID, ids, actorID)
	if err != nil {
		span.RecordError(err)
		return domain.BatchAssignResult{}, fmt.Errorf("assign suppliers to buyer: %w", err)
	}
	result := domain.BatchAssignResult{Added: len(added), Skipped: len(ids) - len(added)}

	s.recorder.ObserveBatch(BatchOperationBuyerAssign, BatchOutcomeAdded, result.Added)
	s.recorder.ObserveBatch(BatchOperationBuyerAssign, BatchOutcomeSkipped, result.Skipped)

	s.logger.Info("suppliers assigned to buyer",
		zap.String("buyer_id", buyerID),
		zap.String("actor_id", actorID),
		zap.Int("assigned", result.Added),
		zap.Int("skipped", result.Skipped),
	)

	if result.Added > 0 && s.events != nil {
		event := domain.BuyerSuppliersAssignedEvent{
			EventID:       uuid.NewString(),
			BuyerID:       buyerID,
			BuyerName:     buyer.Name,
			TagIDs:        []int64{},
			SupplierIDs:   added,
			AssignedCount: result.Added,
			ActorID:       actorID,
			AssignedAt:    s.now(),
		}
		if err := s.events.PublishBuyerSuppliersAssigned(ctx, event); err != nil {
			s.logger.Warn("failed to publish buyer suppliers assigned event", zap.String("buyer_id", buyerID), zap.Error(err))
		}
	}

	return result, nil
}

// BatchUnassignSuppliers removes the buyer's assignments to the listed suppliers, counting only
// pairs that existed.
func (s *BuyerAssignmentService) BatchUnassignSuppliers(ctx context.Context, actorID, buyerID string, supplierIDs []int64) (domain.BatchRemoveResult, error) {
	ctx, span := tracer().Start(ctx, "BuyerAssignmentService.BatchUnassignSuppliers")
	defer span.End()

	buyerID, ids, err := prepareBuyerBatch(buyerID, supplierIDs)
	if err != nil {
		return domain.BatchRemoveResult{}, err
	}
	span.SetAttributes(attribute.String("buyer.id", buyerID), attribute.Int("batch.size", len(ids)))

	if _, err := s.lookupBuyer(ctx, buyerID); err != nil {
		return domain.BatchRemoveResult{}, err
	}

	removedIDs, err := s.assignments.RemoveSuppliers(ctx, buyerID, ids)
	if err != nil {
		span.RecordError(err)
		return domain.BatchRemoveResult{}, fmt.Errorf("unassign suppliers from buyer: %w", err)
	}
	removed := len(removedIDs)

	s.recorder.ObserveBatch(BatchOperationBuyerRemove, BatchOutcomeRemoved, removed)
	s.recorder.ObserveBatch(BatchOperationBuyerRemove, BatchOutcomeUnchanged, len(ids)-removed)

	if removed > 0 && s.events != nil {
		event := domain.BuyerSuppliersUnassignedEvent{
			EventID:     uuid.NewString(),
			BuyerID:     buyerID,
			SupplierIDs: removedIDs,
			Removed:     removed,
			ActorID:     actorID,
			RemovedAt:   s.now(),
		}
		if err := s.events.PublishBuyerSuppliersUnassigned(ctx, event); err != nil {
			s.logger.Warn("failed to publish buyer suppliers unassigned event", zap.String("buyer_id", buyerID), zap.Error(err))
		}
	}

	return domain.BatchRemoveResult{Removed: removed}, nil
}

// ListSupplierBuyers returns the buyers currently assigned to the supplier.
func (s *BuyerAssignmentService) ListSupplierBuyers(ctx context.Context, supplierID int64) ([]domain.SupplierBuyer, error) {
	if supplierID <= 0 {
		return nil, fmt.Errorf("%w: supplier id must be positive", ErrValidation)
	}

	buyers, err := s.assignments.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list supplier buyers: %w", err)
	}
	if buyers == nil {
		buyers = []domain.SupplierBuyer{}
	}
	return buyers, nil
}

func (s *BuyerAssignmentService) lookupBuyer(ctx context.Context, buyerID string) (*domain.User, error) {
	buyer, err := s.users.GetByID(ctx, buyerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("buyer %s: %w", buyerID, ErrNotFound)
		}
		return nil, fmt.Errorf("lookup buyer: %w", err)
	}
	return buyer, nil
}

func prepareBuyerBatch(buyerID string, supplierIDs []int64) (string, []int64, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return "", nil, fmt.Errorf("%w: buyer id is required", ErrValidation)
	}
	if len(supplierIDs) == 0 {
		return "", nil, fmt.Errorf("%w: supplier ids are required", ErrValidation)
	}
	return buyerID, lo.Uniq(supplierIDs), nil
}

// ListAssignedSuppliers returns the buyer's current assignments with supplier details.
func (s *BuyerAssignmentService) ListAssignedSuppliers(ctx context.Context, buyerID string) ([]domain.AssignedSupplier, error) {
	buyerID = strings.TrimSpace(buyerID)
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer id is required", ErrValidation)
	}

	assigned, err := s.assignments.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buyer assignments: %w", err)
	}
	if assigned == nil {
		assigned = []domain.AssignedSupplier{}
	}
	return assigned, nil
}

// RemoveAssignment deletes a single buyer↔supplier assignment.
func (s *BuyerAssignmentService) RemoveAssignment(ctx context.Context, actorID string, assignmentID int64) error {
	if assignmentID <= 0 {
		return fmt.Errorf("%w: assignment id must be positive", ErrValidation)
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
		}
		return fmt.Errorf("lookup assignment: %w", err)
	}

	if err := s.assignments.Delete(ctx, assignmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("assignment %d: %w", assignmentID, ErrNotFound)
		}
		return fmt.Errorf("delete assignment: %w", err)
	}

	s.recorder.ObserveBatch(BatchOperationBuyerRemove, BatchOutcomeRemoved, 1)

	if s.events != nil {
		event := domain.BuyerAssignmentRemovedEvent{
			EventID:      uuid.NewString(),
			AssignmentID: assignmentID,
			BuyerID:      assignment.BuyerID,
			SupplierID:   assignment.SupplierID,
			ActorID:      actorID,
			RemovedAt:    s.now(),
		}
		if err := s.events.PublishBuyerAssignmentRemoved(ctx, event); err != nil {
			s.logger.Warn("failed to publish buyer assignment removed event", zap.Int64("assignment_id", assignmentID), zap.Error(err))
		}
	}
	return nil
}

// ListBuyers returns users eligible for supplier assignment.
func (s *BuyerAssignmentService) ListBuyers(ctx context.Context) ([]domain.User, error) {
	buyers, err := s.users.ListByRoles(ctx, []string{domain.UserRolePurchaser, domain.UserRoleProcurementManager})
	if err != nil {
		return nil, fmt.Errorf("list buyers: %w", err)
	}
	if buyers == nil {
		buyers = []domain.User{}
	}
	return buyers, nil
}
