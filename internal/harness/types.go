package harness

// Record is one stored record as the harness reports it. Event ids and
// causation ids are random and therefore left out.
type Record struct {
	Position      uint64 `json:"position"`
	Stream        string `json:"stream"`
	Revision      uint64 `json:"revision"`
	Type          string `json:"type"`
	Data          string `json:"data"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Parked is a message a subscription could not handle.
type Parked struct {
	Subscription string `json:"subscription"`
	Stream       string `json:"stream"`
	Type         string `json:"type"`
	Reason       string `json:"reason"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Records is the whole log in append order.
	Records []Record `json:"records"`

	// Parked lists every parked message of every subscription.
	Parked []Parked `json:"parked"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Records: []Record{},
		Parked:  []Parked{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// StreamTypes returns the wire types of one stream in revision order.
func (r *Result) StreamTypes(stream string) []string {
	types := []string{}
	for _, rec := range r.Records {
		if rec.Stream == stream {
			types = append(types, rec.Type)
		}
	}
	return types
}
