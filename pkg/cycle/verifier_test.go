package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/fieldbus.go/pkg/stack"
)

func operationalNode(period int) *Node {
	n := NewNode(1, period)
	n.SetOperationalState(stack.NMTOperational)
	return n
}

// referenceSequence is one full running light on 12 channels.
var referenceSequence = []Pattern{
	0x001, 0x004, 0x010, 0x040, 0x100, 0x400,
	0x800, 0x200, 0x080, 0x020, 0x008, 0x002,
	0xA95, 0x56A,
}

func TestVerifierBootstrap(t *testing.T) {
	for _, period := range []int{1, 2, 5} {
		v := &Verifier{Layout: DefaultLayout, Period: period}
		n := operationalNode(period)
		n.Tolerance = period - 1
		require.Equal(t, VerdictMatch, v.Verify(n, 0x1))
		require.Equal(t, InputAscending, n.InputPhase)
		require.Equal(t, Pattern(0x1<<2), n.Expected)
		require.Zero(t, n.Tolerance)
	}
}

func TestVerifierFollowsSequence(t *testing.T) {
	v := &Verifier{Layout: DefaultLayout, Period: 1}
	n := operationalNode(1)
	phases := []InputPhase{
		InputAscending, InputAscending, InputAscending, InputAscending, InputAscending, InputDescending,
		InputDescending, InputDescending, InputDescending, InputDescending, InputDescending, InputSplitA,
		InputSplitB, InputUnknown,
	}
	for round := 0; round < 3; round++ {
		for i, p := range referenceSequence {
			require.Equalf(t, VerdictMatch, v.Verify(n, p), "round %d step %d input %#x", round, i, uint32(p))
			require.Equalf(t, phases[i], n.InputPhase, "round %d step %d", round, i)
		}
	}
	require.Zero(t, n.DataErrors())
}

func TestVerifierTolerance(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*Node)
		match Pattern
	}{
		{"unknown", func(n *Node) {}, 0x001},
		{"ascending", func(n *Node) { n.InputPhase, n.Expected = InputAscending, 0x010 }, 0x010},
		{"descending", func(n *Node) { n.InputPhase, n.Expected = InputDescending, 0x080 }, 0x080},
		{"split-a", func(n *Node) { n.InputPhase, n.Expected = InputSplitA, 0xA95 }, 0xA95},
		{"split-b", func(n *Node) { n.InputPhase, n.Expected = InputSplitB, 0x56A }, 0x56A},
	}
	const bad Pattern = 0xF0F
	for _, tc := range testCases {
		for _, period := range []int{1, 2, 4} {
			t.Run(tc.name, func(t *testing.T) {
				v := &Verifier{Layout: DefaultLayout, Period: period}

				n := operationalNode(period)
				tc.setup(n)
				phase := n.InputPhase
				for i := 0; i < period-1; i++ {
					require.Equal(t, VerdictMismatch, v.Verify(n, bad))
				}
				require.Equal(t, VerdictFault, v.Verify(n, bad))
				require.Equal(t, uint64(1), n.DataErrors())
				require.Zero(t, n.Tolerance)
				require.Equal(t, phase, n.InputPhase)

				n = operationalNode(period)
				tc.setup(n)
				for i := 0; i < period-1; i++ {
					require.Equal(t, VerdictMismatch, v.Verify(n, bad))
				}
				require.Equal(t, VerdictMatch, v.Verify(n, tc.match))
				require.Zero(t, n.DataErrors())
				require.Zero(t, n.Tolerance)
			})
		}
	}
}

func TestVerifierScenario(t *testing.T) {
	v := &Verifier{Layout: DefaultLayout, Period: 2}
	n := operationalNode(2)
	inputs := []Pattern{0x1, 0x1, 0x1, 0xF, 0xF}
	faults := []uint64{0, 0, 0, 0, 1}
	for i, in := range inputs {
		v.Verify(n, in)
		if i == 0 {
			require.Equal(t, InputAscending, n.InputPhase)
		}
		require.Equalf(t, faults[i], n.DataErrors(), "after cycle %d", i+1)
	}
	require.Zero(t, n.Tolerance)
}

func TestVerifierHoldIsBounded(t *testing.T) {
	v := &Verifier{Layout: DefaultLayout, Period: 2}
	n := operationalNode(2)
	require.Equal(t, VerdictMatch, v.Verify(n, 0x1))
	require.Equal(t, VerdictHold, v.Verify(n, 0x1))
	require.Equal(t, VerdictHold, v.Verify(n, 0x1))
	require.Equal(t, VerdictMismatch, v.Verify(n, 0x1))
	require.Equal(t, VerdictFault, v.Verify(n, 0x1))
	require.Equal(t, uint64(1), n.DataErrors())
}

func TestVerifierHoldFollowsOutputPeriod(t *testing.T) {
	v := &Verifier{Layout: DefaultLayout, Period: 1}
	n := operationalNode(1)
	n.SetOutputPeriod(3)
	require.Equal(t, VerdictMatch, v.Verify(n, 0x1))
	for i := 0; i < 3; i++ {
		require.Equal(t, VerdictHold, v.Verify(n, 0x1))
	}
	require.Equal(t, VerdictFault, v.Verify(n, 0x1))
	require.Equal(t, VerdictMatch, v.Verify(n, 0x4))
	require.Equal(t, VerdictHold, v.Verify(n, 0x4))
	require.Equal(t, uint64(1), n.DataErrors())
}

func TestVerifierSkipsNonOperational(t *testing.T) {
	v := &Verifier{Layout: DefaultLayout, Period: 1}
	for _, state := range []stack.NMTState{stack.NMTBasicEthernet, stack.NMTPreOperational2, stack.NMTReadyToOperate, stack.NMTStopped} {
		n := NewNode(1, 1)
		n.SetOperationalState(state)
		for i := 0; i < 5; i++ {
			require.Equal(t, VerdictSkipped, v.Verify(n, 0xFFF))
		}
		require.Zero(t, n.DataErrors())
		require.Equal(t, InputUnknown, n.InputPhase)
		require.Zero(t, n.Tolerance)
	}
}

func TestVerifierTurnAndDescendEnd(t *testing.T) {
	v := &Verifier{Layout: DefaultLayout, Period: 3}

	n := operationalNode(3)
	n.InputPhase, n.Expected = InputAscending, 0x100
	n.Tolerance = 2
	require.Equal(t, VerdictMatch, v.Verify(n, DefaultLayout.Turn()))
	require.Equal(t, InputDescending, n.InputPhase)
	require.Equal(t, Pattern(0x800), n.Expected)
	require.Zero(t, n.Tolerance)

	n = operationalNode(3)
	n.InputPhase, n.Expected = InputDescending, 0x002
	require.Equal(t, VerdictMatch, v.Verify(n, 0x002))
	require.Equal(t, InputSplitA, n.InputPhase)
	require.Equal(t, DefaultLayout.SplitA, n.Expected)
}
