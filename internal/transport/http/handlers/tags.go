package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/srm-service/internal/core/domain"
	"github.com/arklim/srm-service/internal/transport/http/middleware"
	"github.com/arklim/srm-service/internal/usecase"
)

// TagManager is the tag administration and batch tagging surface used by TagHandler.
type TagManager interface {
	ListTags(ctx context.Context) ([]domain.Tag, error)
	CreateTag(ctx context.Context, input usecase.CreateTagInput) (domain.Tag, error)
	UpdateTag(ctx context.Context, id int64, input usecase.UpdateTagInput) (domain.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
	ListSuppliersForTag(ctx context.Context, tagID int64) ([]domain.Supplier, error)
	BatchAssign(ctx context.Context, actorID string, tagID int64, supplierIDs []int64) (domain.BatchAssignResult, error)
	BatchRemove(ctx context.Context, actorID string, tagID int64, supplierIDs []int64) (domain.BatchRemoveResult, error)
	ReplaceSupplierTags(ctx context.Context, actorID string, supplierID int64, names []string) ([]domain.Tag, error)
}

// TagHandler serves /suppliers/tags.
type TagHandler struct {
	tags TagManager
}

// NewTagHandler constructs a tag handler.
func NewTagHandler(tags TagManager) *TagHandler {
	return &TagHandler{tags: tags}
}

// ListTags godoc
// @Summary List supplier tags
// @Tags Tags
// @Produce json
// @Success 200 {object} DataResponse[[]TagPayload]
// @Router /api/v1/suppliers/tags [get]
func (h *TagHandler) ListTags(c *gin.Context) {
	tags, err := h.tags.ListTags(c.Request.Context())
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("tag not found"), http.StatusInternalServerError, "failed to list tags")
		return
	}

	data := make([]TagPayload, 0, len(tags))
	for _, tag := range tags {
		data = append(data, newTagPayload(tag))
	}
	c.JSON(http.StatusOK, DataResponse[[]TagPayload]{Data: data})
}

// CreateTag godoc
// @Summary Create a supplier tag
// @Tags Tags
// @Accept json
// @Produce json
// @Param request body TagCreateRequest true "Tag"
// @Success 201 {object} DataResponse[TagPayload]
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/suppliers/tags [post]
func (h *TagHandler) CreateTag(c *gin.Context) {
	var req TagCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid tag payload"))
		return
	}

	tag, err := h.tags.CreateTag(c.Request.Context(), usecase.CreateTagInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
	})
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("tag not found"), http.StatusInternalServerError, "failed to create tag")
		return
	}

	c.JSON(http.StatusCreated, DataResponse[TagPayload]{Data: newTagPayload(tag)})
}

func (h *TagHandler) UpdateTag(c *gin.Context) {
	tagID, ok := parseIDParam(c, "tagId")
	if !ok {
		return
	}

	var req TagUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid tag payload"))
		return
	}

	tag, err := h.tags.UpdateTag(c.Request.Context(), tagID, usecase.UpdateTagInput{
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
	})
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("tag not found"), http.StatusInternalServerError, "failed to update tag")
		return
	}

	c.JSON(http.StatusOK, DataResponse[TagPayload]{Data: newTagPayload(tag)})
}

func (h *TagHandler) DeleteTag(c *gin.Context) {
	tagID, ok := parseIDParam(c, "tagId")
	if !ok {
		return
	}

	if err := h.tags.DeleteTag(c.Request.Context(), tagID); err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("tag not found"), http.StatusInternalServerError, "failed to delete tag")
		return
	}

	c.Status(http.StatusNoContent)
}

// ListSuppliers returns the suppliers carrying a tag.
func (h *TagHandler) ListSuppliers(c *gin.Context) {
	tagID, ok := parseIDParam(c, "tagId")
	if !ok {
		return
	}

	suppliers, err := h.tags.ListSuppliersForTag(c.Request.Context(), tagID)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("tag not found"), http.StatusInternalServerError, "failed to list tagged suppliers")
		return
	}

	data := make([]SupplierPayload, 0, len(suppliers))
	for _, supplier := range suppliers {
		data = append(data, newSupplierPayload(supplier))
	}
	c.JSON(http.StatusOK, DataResponse[[]SupplierPayload]{Data: data})
}

// BatchAssign godoc
// @Summary Tag many suppliers
// @Description Adds the tag to every listed supplier. Already tagged and unknown suppliers are skipped.
// @Tags Tags
// @Accept json
// @Produce json
// @Param tagId path int true "Tag ID"
// @Param request body BatchSuppliersRequest true "Supplier ids"
// @Success 200 {object} MessageDataResponse[BatchAssignPayload]
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} middleware.ProblemDetails
// @Router /api/v1/suppliers/tags/{tagId}/batch-assign [post]
func (h *TagHandler) BatchAssign(c *gin.Context) {
	actorID, tagID, supplierIDs, ok := h.bindBatch(c)
	if !ok {
		return
	}

	result, err := h.tags.BatchAssign(c.Request.Context(), actorID, tagID, supplierIDs)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("tag not found"), http.StatusInternalServerError, "failed to assign tag")
		return
	}

	c.JSON(http.StatusOK, MessageDataResponse[BatchAssignPayload]{
		Message: fmt.Sprintf("Successfully assigned tag to %d supplier(s).", result.Added),
		Data:    BatchAssignPayload{Added: result.Added, Skipped: result.Skipped},
	})
}

// BatchRemove removes the tag from every listed supplier.
func (h *TagHandler) BatchRemove(c *gin.Context) {
	actorID, tagID, supplierIDs, ok := h.bindBatch(c)
	if !ok {
		return
	}

	result, err := h.tags.BatchRemove(c.Request.Context(), actorID, tagID, supplierIDs)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("tag not found"), http.StatusInternalServerError, "failed to remove tag")
		return
	}

	c.JSON(http.StatusOK, MessageDataResponse[BatchRemovePayload]{
		Message: fmt.Sprintf("Successfully removed tag from %d supplier(s).", result.Removed),
		Data:    BatchRemovePayload{Removed: result.Removed},
	})
}

// ReplaceSupplierTags godoc
// @Summary Replace a supplier's tags
// @Description Sets the supplier's tag set to the given names. Unknown names are created and an empty list clears all tags.
// @Tags Tags
// @Accept json
// @Produce json
// @Param supplierId path int true "Supplier ID"
// @Param request body SupplierTagsRequest true "Tag names"
// @Success 200 {object} DataResponse[[]TagPayload]
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/suppliers/{supplierId}/tags [put]
func (h *TagHandler) ReplaceSupplierTags(c *gin.Context) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	supplierID, ok := parseIDParam(c, "supplierId")
	if !ok {
		return
	}

	var req SupplierTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid tags payload"))
		return
	}
	if req.Tags == nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "tags must be an array"))
		return
	}

	tags, err := h.tags.ReplaceSupplierTags(c.Request.Context(), actorID, supplierID, *req.Tags)
	if err != nil {
		RespondWithMappedError(c, err, usecaseErrorCases("supplier not found"), http.StatusInternalServerError, "failed to update supplier tags")
		return
	}

	data := make([]TagPayload, 0, len(tags))
	for _, tag := range tags {
		data = append(data, newTagPayload(tag))
	}
	c.JSON(http.StatusOK, DataResponse[[]TagPayload]{Data: data})
}

func (h *TagHandler) bindBatch(c *gin.Context) (string, int64, []int64, bool) {
	actorID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return "", 0, nil, false
	}

	tagID, ok := parseIDParam(c, "tagId")
	if !ok {
		return "", 0, nil, false
	}

	var req BatchSuppliersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid batch payload"))
		return "", 0, nil, false
	}
	if len(req.SupplierIDs) == 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "supplier ids must be a non-empty array"))
		return "", 0, nil, false
	}

	return actorID, tagID, req.SupplierIDs, true
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, fmt.Sprintf("invalid %s", name)))
		return 0, false
	}
	return id, true
}
