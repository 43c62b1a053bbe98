package wake

// Score is the detection result for a single audio frame.
type Score struct {
	// Value is the wake-word confidence in [0.0, 1.0].
	Value float64

	// Seq is the sequence number of the scored frame, carried through so
	// the confirmer can reason about frame timing.
	Seq uint64
}
