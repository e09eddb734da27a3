package pipeline

// Result is what a stage forwards to the next one. It is either Continue or
// ShortCircuit.
type Result interface {
	isResult()
}

// Continue lets the chain run the next stage.
type Continue struct{}

// ShortCircuit ends useful work early without failing the job.
type ShortCircuit struct {
	Reason      string
	CanonicalID string
}

func (Continue) isResult()     {}
func (ShortCircuit) isResult() {}

func isShortCircuit(r Result) bool {
	_, ok := r.(ShortCircuit)
	return ok
}
