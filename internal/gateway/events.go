package gateway

type startedEvent struct {
	InvocationID string `json:"invocation_id"`
	Kind         string `json:"kind"`
	Company      string `json:"company,omitempty"`
	Sector       string `json:"sector,omitempty"`
	Slug         string `json:"slug,omitempty"`
	Documents    int    `json:"documents"`
	Links        int    `json:"links"`
}

type completedEvent struct {
	InvocationID string  `json:"invocation_id"`
	Kind         string  `json:"kind"`
	Status       string  `json:"status"`
	ExitCode     *int    `json:"exit_code,omitempty"`
	DurationMS   int64   `json:"duration_ms"`
	URL          *string `json:"url,omitempty"`
	Error        string  `json:"error,omitempty"`
}
