package cycle

// Verdict is the outcome of verifying one input sample.
type Verdict int

// Verdicts.
const (
	// VerdictSkipped means the node is not operational.
	VerdictSkipped Verdict = iota
	// VerdictMatch means the sample followed the sequence.
	VerdictMatch
	// VerdictHold means the sample repeated the last matched pattern.
	VerdictHold
	// VerdictMismatch means the sample was unexpected but tolerated.
	VerdictMismatch
	// VerdictFault means the mismatches exceeded the tolerance.
	VerdictFault
)

var verdictNames = []string{"skipped", "match", "hold", "mismatch", "fault"}

// String implements fmt.Stringer.
func (v Verdict) String() string {
	if int(v) < len(verdictNames) {
		return verdictNames[v]
	}
	return "verdict(?)"
}

// Verifier checks node inputs against the running light sequence.
type Verifier struct {
	Layout Layout
	// Period is the tolerance: mismatched cycles allowed before a fault.
	Period int
}

// Verify consumes the input observed in this cycle.
func (v *Verifier) Verify(n *Node, observed Pattern) Verdict {
	if !n.Operational() {
		return VerdictSkipped
	}
	l := &v.Layout
	switch n.InputPhase {
	case InputUnknown:
		n.Expected = l.First()
		if observed == n.Expected {
			n.Expected <<= 2
			n.InputPhase = InputAscending
			return v.match(n, observed)
		}
	case InputAscending:
		if observed == l.Turn() {
			n.Expected = l.Turn() << 1
			n.InputPhase = InputDescending
			return v.match(n, observed)
		}
		if observed == n.Expected {
			n.Expected <<= 2
			return v.match(n, observed)
		}
	case InputDescending:
		if n.Expected == l.Last() && observed == n.Expected {
			n.Expected = l.SplitA
			n.InputPhase = InputSplitA
			return v.match(n, observed)
		}
		if observed == n.Expected {
			n.Expected >>= 2
			return v.match(n, observed)
		}
	case InputSplitA:
		if observed == n.Expected {
			n.Expected = l.SplitB
			n.InputPhase = InputSplitB
			return v.match(n, observed)
		}
	case InputSplitB:
		if observed == n.Expected {
			n.InputPhase = InputUnknown
			return v.match(n, observed)
		}
	}
	return v.mismatch(n, observed)
}

func (v *Verifier) match(n *Node, observed Pattern) Verdict {
	n.Tolerance, n.held, n.lastMatch = 0, 0, observed
	return VerdictMatch
}

func (v *Verifier) mismatch(n *Node, observed Pattern) Verdict {
	// The node keeps echoing the previous pattern until the next
	// output advance has propagated, i.e. for up to one output period.
	if observed == n.lastMatch && observed != 0 && n.held < v.holdLimit(n) {
		n.held++
		return VerdictHold
	}
	n.Tolerance++
	if n.Tolerance >= v.Period {
		n.Tolerance = 0
		n.addDataError()
		return VerdictFault
	}
	return VerdictMismatch
}

func (v *Verifier) holdLimit(n *Node) int {
	if period := n.OutputPeriod(); period > 0 {
		return period
	}
	return v.Period
}
