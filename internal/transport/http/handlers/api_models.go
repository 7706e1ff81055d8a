package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/srm-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: c.GetString("trace_id"),
	}
}

// DataResponse wraps list and item payloads in a data envelope.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// MessageDataResponse carries a human readable message next to the data.
type MessageDataResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse reports the state of each backing dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// TagPayload is the API view of a tag.
type TagPayload struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

func newTagPayload(tag domain.Tag) TagPayload {
	return TagPayload{ID: tag.ID, Name: tag.Name, Description: tag.Description, Color: tag.Color}
}

// TagCreateRequest is the body of POST /suppliers/tags.
type TagCreateRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

// TagUpdateRequest is the body of PUT /suppliers/tags/:tagId. Absent fields are left unchanged.
type TagUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

// SupplierTagsRequest is the body of PUT /suppliers/:supplierId/tags.
type SupplierTagsRequest struct {
	Tags *[]string `json:"tags"`
}

// SupplierPayload is the API view of a supplier.
type SupplierPayload struct {
	ID           int64   `json:"id"`
	CompanyName  string  `json:"companyName"`
	Category     *string `json:"category"`
	Region       *string `json:"region"`
	Status       string  `json:"status"`
	ContactEmail *string `json:"contactEmail"`
}

func newSupplierPayload(supplier domain.Supplier) SupplierPayload {
	return SupplierPayload{
		ID:           supplier.ID,
		CompanyName:  supplier.CompanyName,
		Category:     supplier.Category,
		Region:       supplier.Region,
		Status:       supplier.Status,
		ContactEmail: supplier.ContactEmail,
	}
}

// BatchSuppliersRequest is the body of the batch-assign and batch-remove endpoints.
type BatchSuppliersRequest struct {
	SupplierIDs IDList
}

// UnmarshalJSON accepts supplierIds and supplier_ids.
func (r *BatchSuppliersRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		SupplierIDs      IDList `json:"supplierIds"`
		SupplierIDsSnake IDList `json:"supplier_ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.SupplierIDs = firstNonEmpty(raw.SupplierIDs, raw.SupplierIDsSnake)
	return nil
}

// BatchAssignPayload reports batch assignment counts.
type BatchAssignPayload struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// BatchRemovePayload reports batch removal counts.
type BatchRemovePayload struct {
	Removed int `json:"removed"`
}

// AssignByTagRequest is the body of POST /buyer-assignments/by-tag.
type AssignByTagRequest struct {
	BuyerID string
	TagIDs  IDList
}

// UnmarshalJSON accepts camelCase and snake_case keys and a numeric buyer id.
func (r *AssignByTagRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		BuyerID      json.RawMessage `json:"buyerId"`
		BuyerIDSnake json.RawMessage `json:"buyer_id"`
		TagIDs       IDList          `json:"tagIds"`
		TagIDsSnake  IDList          `json:"tag_ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	buyerID := raw.BuyerID
	if isNullOrEmpty(buyerID) {
		buyerID = raw.BuyerIDSnake
	}
	id, err := rawString(buyerID)
	if err != nil {
		return fmt.Errorf("buyer id: %w", err)
	}

	r.BuyerID = id
	r.TagIDs = firstNonEmpty(raw.TagIDs, raw.TagIDsSnake)
	return nil
}

// AssignByTagPayload reports the outcome of assigning tagged suppliers to a buyer.
type AssignByTagPayload struct {
	AssignedCount  int     `json:"assignedCount"`
	TotalSuppliers int     `json:"totalSuppliers"`
	SupplierIDs    []int64 `json:"supplierIds"`
}

// AssignmentPayload is the API view of a buyer's supplier assignment.
type AssignmentPayload struct {
	ID             int64     `json:"id"`
	BuyerID        string    `json:"buyerId"`
	SupplierID     int64     `json:"supplierId"`
	Status         *string   `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	CreatedBy      string    `json:"createdBy,omitempty"`
	CompanyName    string    `json:"companyName"`
	Category       *string   `json:"category"`
	Region         *string   `json:"region"`
	SupplierStatus string    `json:"supplierStatus"`
}

func newAssignmentPayload(item domain.AssignedSupplier) AssignmentPayload {
	return AssignmentPayload{
		ID:             item.Assignment.ID,
		BuyerID:        item.Assignment.BuyerID,
		SupplierID:     item.Assignment.SupplierID,
		Status:         item.Assignment.Status,
		CreatedAt:      item.Assignment.CreatedAt,
		CreatedBy:      item.Assignment.CreatedBy,
		CompanyName:    item.Supplier.CompanyName,
		Category:       item.Supplier.Category,
		Region:         item.Supplier.Region,
		SupplierStatus: item.Supplier.Status,
	}
}

// SupplierBuyerPayload is the API view of a buyer assigned to a supplier.
type SupplierBuyerPayload struct {
	ID         int64     `json:"id"`
	BuyerID    string    `json:"buyerId"`
	SupplierID int64     `json:"supplierId"`
	CreatedAt  time.Time `json:"createdAt"`
	BuyerName  string    `json:"buyerName"`
	BuyerEmail *string   `json:"buyerEmail"`
}

func newSupplierBuyerPayload(item domain.SupplierBuyer) SupplierBuyerPayload {
	return SupplierBuyerPayload{
		ID:         item.AssignmentID,
		BuyerID:    item.BuyerID,
		SupplierID: item.SupplierID,
		CreatedAt:  item.CreatedAt,
		BuyerName:  item.BuyerName,
		BuyerEmail: item.BuyerEmail,
	}
}

// BuyerPayload is the API view of a buyer.
type BuyerPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// IDList decodes a JSON array of numeric ids. Entries may be numbers or numeric strings;
// anything else is dropped.
type IDList []int64

// UnmarshalJSON implements json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	if isNullOrEmpty(data) {
		*l = nil
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("ids must be an array: %w", err)
	}

	ids := make(IDList, 0, len(entries))
	for _, entry := range entries {
		text, err := rawString(entry)
		if err != nil {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	*l = ids
	return nil
}

func firstNonEmpty(lists ...IDList) IDList {
	for _, list := range lists {
		if len(list) > 0 {
			return list
		}
	}
	return nil
}

func isNullOrEmpty(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// rawString renders a JSON string or number as a trimmed string.
func rawString(raw json.RawMessage) (string, error) {
	if isNullOrEmpty(raw) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text), nil
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return "", fmt.Errorf("expected string or number")
	}
	return number.String(), nil
}
