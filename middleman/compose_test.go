package middleman

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// tagger appends its tag in both directions.
func tagger(tag byte) *Configured {
	return &Configured{InTransformer: appendTag(tag), OutTransformer: appendTag(tag)}
}

func TestCompose_EmptyIsIdentity(t *testing.T) {
	m := Compose()
	for _, p := range samplePDUs {
		got, err := m.HandleInPDU(p)
		require.NoError(t, err)
		require.Equal(t, p, got)

		got, err = m.HandleOutPDU(p)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestCompose_IdentityMembers(t *testing.T) {
	m := Compose(&Configured{}, NoOp, Funcs{})
	for _, p := range samplePDUs {
		got, err := m.HandleInPDU(p)
		require.NoError(t, err)
		require.Equal(t, p, got)

		got, err = m.HandleOutPDU(p)
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestCompose_Order(t *testing.T) {
	// fA and fB don't commute, so the order is observable.
	fA := func(pdu PDU) (PDU, error) { return append(PDU{0xAA}, pdu...), nil }
	fB := func(pdu PDU) (PDU, error) {
		out := make(PDU, len(pdu))
		for i, b := range pdu {
			out[i] = b + 1
		}
		return out, nil
	}
	a := &Configured{InTransformer: fA, OutTransformer: fA}
	b := &Configured{InTransformer: fB, OutTransformer: fB}
	m := Compose(a, b)

	for _, p := range samplePDUs {
		ab, _ := fA(p)
		want, _ := fB(ab)
		got, err := m.HandleInPDU(p)
		require.NoError(t, err)
		require.Equal(t, want, got, "in direction must apply A then B")

		ba, _ := fB(p)
		want, _ = fA(ba)
		got, err = m.HandleOutPDU(p)
		require.NoError(t, err)
		require.Equal(t, want, got, "out direction must apply B then A")
	}
}

func TestCompose_Associativity(t *testing.T) {
	a, b, c := tagger('A'), tagger('B'), tagger('C')
	variants := map[string]Middleman{
		"flat":  Compose(a, b, c),
		"right": Compose(a, Compose(b, c)),
		"left":  Compose(Compose(a, b), c),
	}

	for name, m := range variants {
		t.Run(name, func(t *testing.T) {
			for _, p := range samplePDUs {
				got, err := m.HandleInPDU(p)
				require.NoError(t, err)
				require.Equal(t, append(append(PDU{}, p...), 'A', 'B', 'C'), got)

				got, err = m.HandleOutPDU(p)
				require.NoError(t, err)
				require.Equal(t, append(append(PDU{}, p...), 'C', 'B', 'A'), got)
			}
		})
	}
}

func TestCompose_CopiesChain(t *testing.T) {
	chain := []Middleman{tagger('A'), tagger('B')}
	m := Compose(chain...)
	chain[1] = tagger('Z')

	got, err := m.HandleInPDU(PDU{})
	require.NoError(t, err)
	require.Equal(t, PDU("AB"), got)
}

func TestCompose_IsConfigured(t *testing.T) {
	m, ok := Compose(tagger('A')).(*Configured)
	require.True(t, ok)
	require.NotNil(t, m.InTransformer)
	require.NotNil(t, m.OutTransformer)
	require.Nil(t, m.InObserver)
	require.Nil(t, m.OutObserver)
}

func TestCompose_Inverter(t *testing.T) {
	inverter := &Configured{InTransformer: invert, OutTransformer: invert}
	m := Compose(inverter)

	got, err := m.HandleInPDU(PDU{0x00})
	require.NoError(t, err)
	require.Equal(t, PDU{0xFF}, got)

	got, err = m.HandleOutPDU(PDU{0xFF})
	require.NoError(t, err)
	require.Equal(t, PDU{0x00}, got)
}

func TestCompose_Tags(t *testing.T) {
	m := Compose(tagger('a'), tagger('b'), tagger('c'))

	got, err := m.HandleInPDU(PDU{})
	require.NoError(t, err)
	require.Equal(t, PDU("abc"), got)

	got, err = m.HandleOutPDU(PDU{})
	require.NoError(t, err)
	require.Equal(t, PDU("cba"), got)
}

func TestCompose_FailureStopsChain(t *testing.T) {
	boom := errors.New("refusing SELECT")
	selectAPDU := PDU{0x00, 0xA4, 0x04, 0x00}

	var beforeSeen, afterSeen bool
	before := &Configured{InObserver: func(PDU) error { beforeSeen = true; return nil }}
	failing := &Configured{
		InTransformer: func(pdu PDU) (PDU, error) {
			if string(pdu) == string(selectAPDU) {
				return nil, boom
			}
			return pdu, nil
		},
	}
	after := &Configured{InObserver: func(PDU) error { afterSeen = true; return nil }}

	m := Compose(before, failing, after)

	_, err := m.HandleInPDU(selectAPDU)
	require.ErrorIs(t, err, boom)
	require.True(t, beforeSeen)
	require.False(t, afterSeen, "members after the failing one must not run")

	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 1, se.Index)
	require.Equal(t, In, se.Direction)
	require.Equal(t, "middleman 1 (In): refusing SELECT", err.Error())

	// Other inputs still flow through every member.
	got, err := m.HandleInPDU(PDU{0x00, 0xB0, 0x00, 0x00})
	require.NoError(t, err)
	require.Equal(t, PDU{0x00, 0xB0, 0x00, 0x00}, got)
	require.True(t, afterSeen)
}

func TestCompose_NestedFailureKeepsInnerStage(t *testing.T) {
	boom := errors.New("boom")
	failing := Funcs{In: func(PDU) (PDU, error) { return nil, boom }}

	_, err := Compose(NoOp, Compose(NoOp, failing)).HandleInPDU(PDU{0x00})
	require.ErrorIs(t, err, boom)
	require.Equal(t, "middleman 1 (In): boom", err.Error())

	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 1, se.Index)
	require.Same(t, boom, se.Err)
}

func TestCompose_NilMemberPanics(t *testing.T) {
	require.PanicsWithValue(t, "middleman: Compose: chain[1] is nil", func() {
		Compose(NoOp, nil)
	})
}

func TestCompose_OutFailureSkipsReaderSide(t *testing.T) {
	boom := errors.New("card side broke")
	var readerSideSeen bool
	readerSide := &Configured{OutObserver: func(PDU) error { readerSideSeen = true; return nil }}
	cardSide := &Configured{OutTransformer: func(PDU) (PDU, error) { return nil, boom }}

	_, err := Compose(readerSide, cardSide).HandleOutPDU(PDU{0x90, 0x00})
	require.ErrorIs(t, err, boom)
	require.False(t, readerSideSeen)
}

func TestCompose_NonProductiveCustomMember(t *testing.T) {
	broken := Funcs{Out: func(PDU) (PDU, error) { return nil, nil }}

	_, err := Compose(NoOp, broken).HandleOutPDU(PDU{0x90, 0x00})
	require.ErrorIs(t, err, ErrNonProductive)

	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 1, se.Index)
	require.Equal(t, Out, se.Direction)
}

// pairing is a stateful middleman that remembers the last command so
// it can annotate the matching response.
type pairing struct {
	last PDU
}

func (p *pairing) HandleInPDU(pdu PDU) (PDU, error) {
	p.last = append(PDU{}, pdu...)
	return pdu, nil
}

func (p *pairing) HandleOutPDU(pdu PDU) (PDU, error) {
	if len(p.last) < 2 {
		return pdu, nil
	}
	return append(append(PDU{}, pdu...), p.last[1]), nil
}

func TestCompose_CustomMiddleman(t *testing.T) {
	m := Compose(tagger('x'), &pairing{})

	cmd, err := m.HandleInPDU(PDU{0x00, 0xCA})
	require.NoError(t, err)
	require.Equal(t, PDU{0x00, 0xCA, 'x'}, cmd)

	resp, err := m.HandleOutPDU(PDU{0x90, 0x00})
	require.NoError(t, err)
	require.Equal(t, PDU{0x90, 0x00, 0xCA, 'x'}, resp)
}
