package app

// Operation status values recorded in the ledger.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks a CLI operation that may be recorded in the ledger.
// Operations are created in memory with ID=0. Only commands that sign,
// verify, publish or fetch persist them (giving them an auto-increment ID).
type Operation struct {
	ID         int64
	Name       string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the ledger.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed. A verification that completes with a
// fail verdict is not a failed operation.
func (op *Operation) Fail() {
	op.Status = StatusError
}
