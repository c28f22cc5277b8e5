package cycle

// Sequencer generates the running light on the node outputs.
type Sequencer struct {
	Layout Layout
}

// Advance moves the output of the node to the next pattern.
func (s *Sequencer) Advance(n *Node) {
	l := &s.Layout
	n.PrevOutput = n.Output
	switch n.OutputPhase {
	case OutputUnknown:
		n.Output = l.First()
		n.OutputPhase = OutputAscending
	case OutputAscending:
		if n.Output == l.Turn() {
			n.Output <<= 1
			n.OutputPhase = OutputDescending
		} else {
			n.Output <<= 2
		}
	case OutputDescending:
		n.Output >>= 2
		if n.Output == l.Last() {
			n.OutputPhase = OutputSplitA
		}
	case OutputSplitA:
		n.Output = l.SplitA
		n.OutputPhase = OutputSplitB
	case OutputSplitB:
		n.Output = l.SplitB
		n.OutputPhase = OutputUnknown
	}
}
