package models

// ExportRequest describes one bulk export: the store it runs against, the
// credential, the query, and any variable substitutions. Two logically
// identical requests always produce the same cache key.
type ExportRequest struct {
	// StoreName is the store subdomain, e.g. "shop1" for shop1.myshopify.com.
	StoreName string `json:"store" validate:"required"`

	// AccessToken is the static admin API credential sent on every request.
	AccessToken string `json:"-" validate:"required"`

	// APIVersion selects the admin API version. Empty means the pinned default.
	APIVersion string `json:"api_version"`

	// Query is the raw GraphQL query text to run as a bulk operation.
	Query string `json:"query" validate:"required"`

	// Variables are substituted into the query as string literals before
	// submission. Optional.
	Variables map[string]string `json:"variables,omitempty"`
}
