package cycle

import "fmt"

// InputPhase is the state of the input verification.
type InputPhase int

// Input phases.
const (
	InputUnknown InputPhase = iota
	InputAscending
	InputDescending
	InputSplitA
	InputSplitB
)

// String implements fmt.Stringer.
func (p InputPhase) String() string {
	return phaseName(int(p))
}

// OutputPhase is the state of the output generation.
// It shares the vocabulary of InputPhase but has its own transitions.
type OutputPhase int

// Output phases.
const (
	OutputUnknown OutputPhase = iota
	OutputAscending
	OutputDescending
	OutputSplitA
	OutputSplitB
)

// String implements fmt.Stringer.
func (p OutputPhase) String() string {
	return phaseName(int(p))
}

var phaseNames = []string{"unknown", "ascending", "descending", "split-a", "split-b"}

func phaseName(n int) string {
	if n >= 0 && n < len(phaseNames) {
		return phaseNames[n]
	}
	return fmt.Sprintf("phase(%d)", n)
}
