package service

// Result is the outcome of one upsert attempt: either Success or Failure
type Result interface {
	isResult()
}

// Success carries the identifier Action Network assigned to the person
type Success struct {
	ExternalID string
}

// Failure carries the error text of a failed attempt, not yet truncated
type Failure struct {
	Message string
}

func (Success) isResult() {}
func (Failure) isResult() {}
