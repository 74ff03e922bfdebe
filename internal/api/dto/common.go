package dto

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps a page of items
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func NewListResponse[T any](items []T) *ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &ListResponse[T]{Items: items, Total: len(items)}
}
