package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequencerRunningLight(t *testing.T) {
	s := &Sequencer{Layout: DefaultLayout}
	n := NewNode(1, 1)
	phases := []OutputPhase{
		OutputAscending, OutputAscending, OutputAscending, OutputAscending, OutputAscending, OutputAscending,
		OutputDescending, OutputDescending, OutputDescending, OutputDescending, OutputDescending, OutputSplitA,
		OutputSplitB, OutputUnknown,
	}
	for round := 0; round < 3; round++ {
		for i, expected := range referenceSequence {
			prev := n.Output
			s.Advance(n)
			require.Equalf(t, expected, n.Output, "round %d step %d", round, i)
			require.Equalf(t, phases[i], n.OutputPhase, "round %d step %d", round, i)
			require.Equal(t, prev, n.PrevOutput)
			require.Zero(t, n.Output&^DefaultLayout.Mask())
		}
	}
}

func TestSequencerPhaseOrder(t *testing.T) {
	s := &Sequencer{Layout: DefaultLayout}
	n := NewNode(1, 1)
	next := map[OutputPhase]OutputPhase{
		OutputUnknown:    OutputAscending,
		OutputAscending:  OutputDescending,
		OutputDescending: OutputSplitA,
		OutputSplitA:     OutputSplitB,
		OutputSplitB:     OutputUnknown,
	}
	var visited []OutputPhase
	for i := 0; i < 3*len(referenceSequence); i++ {
		before := n.OutputPhase
		s.Advance(n)
		if n.OutputPhase != before {
			require.Equal(t, next[before], n.OutputPhase)
			visited = append(visited, n.OutputPhase)
		}
	}
	require.Len(t, visited, 15)
}

func TestSequencerNarrowLayout(t *testing.T) {
	l := Layout{Channels: 4, SplitA: 0x5, SplitB: 0xA}
	require.NoError(t, l.Validate())
	s := &Sequencer{Layout: l}
	n := NewNode(1, 1)
	var seq []Pattern
	for i := 0; i < 6; i++ {
		s.Advance(n)
		seq = append(seq, n.Output)
	}
	require.Equal(t, []Pattern{0x1, 0x4, 0x8, 0x2, 0x5, 0xA}, seq)
}
