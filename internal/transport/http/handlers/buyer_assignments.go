package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/transport/http/middleware"
)

// BuyerAssignmentManager is the buyer assignment surface used by BuyerAssignmentHandler.
type BuyerAssignmentManager interface {
	AssignByTag(ctx context.Context, actorID, buyerID string, tagIDs []int64) (domain.AssignByTagResult, error)
	ListAssignedSuppliers(ctx context.Context, buyerID string) ([]domain.AssignedSupplier, error)
	RemoveAssignment(ctx context.Context, actorID string, assignmentID int64) error
	ListBuyers(ctx context.Context) ([]domain.User, error)
	BatchAssignSuppliers(ctx context.Context, actorID, buyerID string, supplierIDs []int64) (domain.BatchAssignResult, error)
	BatchUnassignSuppliers(ctx context.Context, actorID, buyerID string, supplierIDs []int64) (domain.BatchRemoveResult, error)
	ListSupplierBuyers(ctx context.Context, supplierID int64) ([]domain.SupplierBuyer, error)
}

// BuyerAssignmentHandler serves /buyer-assignments.
type BuyerAssignmentHandler struct {
	assignments BuyerAssignmentManager
	authz       middleware.AuthorizationProvider
}

// NewBuyerAssignmentHandler constructs a buyer assignment handler.
func NewBuyerAssignmentHandler(assignments BuyerAssignmentManager, authz middleware.AuthorizationProvider) *BuyerAssignmentHandler {
	return &BuyerAssignmentHandler{assignments: assignments, authz: authz}
}

// AssignByTag godoc
// @Summary Assign tagged suppliers to a buyer
// @Description Assigns every supplier carrying any of the tags to the buyer. Existing assignments are kept.
// @Tags BuyerAssignments
// @Accept json
// @Produce json
// @Param request body AssignByTagRequest true "Buyer and tag ids"
// @Success 200 {object} MessageDataResponse[AssignByTagPayload]
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/buyer-assignments/by-tag [post]
func (h *BuyerAssignmentHandler) AssignByTag(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req AssignByTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assignment payload"))
		return
	}
	if req.BuyerID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "buyer id is required"))
		return
	}
	if len(req.TagIDs) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "tag ids must be a non-empty array"))
		return
	}

	result, err := h.assignments.AssignByTag(c.Request.Context(), actorID, req.BuyerID, req.TagIDs)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("buyer not found"), http.StatusInternalServerError, "failed to assign suppliers by tag")
		return
	}

	message := fmt.Sprintf("Successfully assigned %d supplier(s) to buyer %s.", result.AssignedCount, result.BuyerName)
	if result.TotalSuppliers == 0 {
		message = "No suppliers found with the specified tags."
	}

	c.JSON(http.StatusOK, MessageDataResponse[AssignByTagPayload]{
		Message: message,
		Data: AssignByTagPayload{
			AssignedCount:  result.AssignedCount,
			TotalSuppliers: result.TotalSuppliers,
			SupplierIDs:    result.SupplierIDs,
		},
	})
}

// ListAssignedSuppliers returns a buyer's assignments. Without buyerId the caller's own
// assignments are returned; reading another buyer requires the assignment admin permission.
func (h *BuyerAssignmentHandler) ListAssignedSuppliers(c *gin.Context) {
	callerID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	buyerID := strings.TrimSpace(c.Query("buyerId"))
	if buyerID == "" {
		buyerID = strings.TrimSpace(c.Query("buyer_id"))
	}
	if buyerID == "" {
		buyerID = callerID
	}

	if buyerID != callerID {
		payload, ok := middleware.LoadAuthorization(c, h.authz)
		if !ok {
			return
		}
		if !payload.HasPermission(domain.PermissionAdminBuyerAssignmentsManage) {
			c.JSON(http.StatusForbidden, NewErrorResponse(c, "insufficient permissions"))
			return
		}
	}

	items, err := h.assignments.ListAssignedSuppliers(c.Request.Context(), buyerID)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("buyer not found"), http.StatusInternalServerError, "failed to list assignments")
		return
	}

	data := make([]AssignmentPayload, 0, len(items))
	for _, item := range items {
		data = append(data, newAssignmentPayload(item))
	}
	c.JSON(http.StatusOK, DataResponse[[]AssignmentPayload]{Data: data})
}

func (h *BuyerAssignmentHandler) RemoveAssignment(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.assignments.RemoveAssignment(c.Request.Context(), actorID, id); err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("assignment not found"), http.StatusInternalServerError, "failed to remove assignment")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListBuyers returns users that can receive supplier assignments.
func (h *BuyerAssignmentHandler) ListBuyers(c *gin.Context) {
	buyers, err := h.assignments.ListBuyers(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("buyer not found"), http.StatusInternalServerError, "failed to list buyers")
		return
	}

	data := make([]BuyerPayload, 0, len(buyers))
	for _, buyer := range buyers {
		data = append(data, BuyerPayload{ID: buyer.ID, Name: buyer.Name, Role: buyer.Role})
	}
	c.JSON(http.StatusOK, DataResponse[[]BuyerPayload]{Data: data})
}

// BatchAssign godoc
// @Summary Assign many suppliers to a buyer
// @Description Assigns every listed supplier to the buyer. Existing pairs and unknown suppliers are skipped.
// @Tags BuyerAssignments
// @Accept json
// @Produce json
// @Param buyerId path string true "Buyer ID"
// @Param request body BatchSuppliersRequest true "Supplier ids"
// @Success 200 {object} MessageDataResponse[BatchAssignPayload]
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /api/v1/buyer-assignments/buyers/{buyerId}/batch-assign [post]
func (h *BuyerAssignmentHandler) BatchAssign(c *gin.Context) {
	actorID, buyerID, supplierIDs, ok := bindBuyerBatch(c)
	if !ok {
		return
	}

	result, err := h.assignments.BatchAssignSuppliers(c.Request.Context(), actorID, buyerID, supplierIDs)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("buyer not found"), http.StatusInternalServerError, "failed to assign suppliers")
		return
	}

	c.JSON(http.StatusOK, MessageDataResponse[BatchAssignPayload]{
		Message: fmt.Sprintf("Assigned %d supplier(s), skipped %d (already assigned).", result.Added, result.Skipped),
		Data:    BatchAssignPayload{Added: result.Added, Skipped: result.Skipped},
	})
}

// BatchUnassign removes the buyer's assignments to every listed supplier.
func (h *BuyerAssignmentHandler) BatchUnassign(c *gin.Context) {
	actorID, buyerID, supplierIDs, ok := bindBuyerBatch(c)
	if !ok {
		return
	}

	result, err := h.assignments.BatchUnassignSuppliers(c.Request.Context(), actorID, buyerID, supplierIDs)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("buyer not found"), http.StatusInternalServerError, "failed to unassign suppliers")
		return
	}

	c.JSON(http.StatusOK, MessageDataResponse[BatchRemovePayload]{
		Message: fmt.Sprintf("Removed %d assignment(s).", result.Removed),
		Data:    BatchRemovePayload{Removed: result.Removed},
	})
}

// ListSupplierBuyers returns the buyers assigned to a supplier.
func (h *BuyerAssignmentHandler) ListSupplierBuyers(c *gin.Context) {
	supplierID, ok := parseIDParam(c, "supplierId")
	if !ok {
		return
	}

	buyers, err := h.assignments.ListSupplierBuyers(c.Request.Context(), supplierID)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("supplier not found"), http.StatusInternalServerError, "failed to list supplier buyers")
		return
	}

	data := make([]SupplierBuyerPayload, 0, len(buyers))
	for _, buyer := range buyers {
		data = append(data, newSupplierBuyerPayload(buyer))
	}
	c.JSON(http.StatusOK, DataResponse[[]SupplierBuyerPayload]{Data: data})
}

func bindBuyerBatch(c *gin.Context) (string, string, []int64, bool) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", "", nil, false
	}

	buyerID := strings.TrimSpace(c.Param("buyerId"))
	if buyerID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "buyer id is required"))
		return "", "", nil, false
	}

	var req BatchSuppliersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid batch payload"))
		return "", "", nil, false
	}
	if len(req.SupplierIDs) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "supplier ids must be a non-empty array"))
		return "", "", nil, false
	}

	return actorID, buyerID, req.SupplierIDs, true
}
