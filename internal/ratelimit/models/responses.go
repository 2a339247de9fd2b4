package models

// RateLimitExceededResponse is the API response when rate limit is exceeded.
type RateLimitExceededResponse struct {
	Error      string `json:"error"` // "rate_limit_exceeded"
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"` // seconds
}

// ResetResponse confirms a counter reset.
type ResetResponse struct {
	Policy     string `json:"policy"`
	Identifier string `json:"identifier"`
	Reset      bool   `json:"reset"`
}
