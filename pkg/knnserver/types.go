package knnserver

// SearchUserEvent is the wire shape of one user-event history entry.
type SearchUserEvent struct {
	PartnerID int32 `json:"partner_id"`
	ProductID int64 `json:"product_id"`
	Timestamp int64 `json:"timestamp"`
	EventType int32 `json:"event_type"`
}

// SearchRequest is the request body for POST /v1/search.
type SearchRequest struct {
	Country     string            `json:"country"`
	IndexID     int32             `json:"index_id"`
	ResultCount int               `json:"result_count"`
	Model       string            `json:"model,omitempty"`
	UserEvents  []SearchUserEvent `json:"user_events"`
}

// Product is one scored recommendation in a SearchResponse.
type Product struct {
	ProductID int64   `json:"product_id"`
	Score     float32 `json:"score"`
}

// SearchResponse is the response body for POST /v1/search.
type SearchResponse struct {
	Products []Product `json:"products"`
}

// CountryInfo describes one loaded country in an AvailableCountriesResponse.
type CountryInfo struct {
	Name string `json:"name"`
}

// AvailableCountriesResponse is the response body for GET /v1/countries.
type AvailableCountriesResponse struct {
	Countries []CountryInfo `json:"countries"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]string        `json:"services,omitempty"`
}
