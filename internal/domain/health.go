package domain

// ============================================================
// BFA operational responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth is the health of one dependency as seen from the BFA.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// SuccessResponse wraps an operation that returns no entity.
type SuccessResponse struct {
	Message string `json:"message"`
}
