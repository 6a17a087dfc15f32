package search

// Result is a single ticket search hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	AgentID  string `json:"agentID"`
}

// Query describes a ticket search request.
type Query struct {
	Text           string
	FilterCategory string
	FilterStatus   string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}
