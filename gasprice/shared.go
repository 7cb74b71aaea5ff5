package gasprice

import "sync/atomic"

// SharedV1Algorithm is a read-mostly snapshot with atomic pointer swap:
// many readers (block-assembly query paths), one writer
// (GasPriceController). Lock-free on the read path, per spec.md's
// design notes ("a read-mostly snapshot type with atomic pointer swap
// is the design's intent").
type SharedV1Algorithm struct {
	v atomic.Pointer[AlgorithmV1]
}

// NewSharedV1Algorithm seeds the shared snapshot with an initial value.
func NewSharedV1Algorithm(initial AlgorithmV1) *SharedV1Algorithm {
	s := &SharedV1Algorithm{}
	s.v.Store(&initial)
	return s
}

// Update publishes a new snapshot, visible to subsequent Load calls.
func (s *SharedV1Algorithm) Update(next AlgorithmV1) {
	s.v.Store(&next)
}

// Load returns the current snapshot.
func (s *SharedV1Algorithm) Load() AlgorithmV1 {
	return *s.v.Load()
}

// NextGasPrice is a convenience wrapper over Load().NextGasPrice().
func (s *SharedV1Algorithm) NextGasPrice() uint64 {
	return s.Load().NextGasPrice()
}
