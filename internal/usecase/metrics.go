package usecase

// Batch operation and outcome labels reported to a BatchRecorder.
const (
	BatchOperationTagAssign   = "tag_assign"
	BatchOperationTagRemove   = "tag_remove"
	BatchOperationBuyerAssign = "buyer_assign"
	BatchOperationBuyerRemove = "buyer_remove"

	BatchOutcomeAdded     = "added"
	BatchOutcomeSkipped   = "skipped"
	BatchOutcomeRemoved   = "removed"
	BatchOutcomeUnchanged = "unchanged"
)

// BatchRecorder receives per-item outcome counts of batch operations.
type BatchRecorder interface {
	ObserveBatch(operation, outcome string, count int)
}

type noopBatchRecorder struct{}

func (noopBatchRecorder) ObserveBatch(string, string, int) {}
