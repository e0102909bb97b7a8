package protocol

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAll(t *testing.T, msgs ...Message) []byte {
	t.Helper()
	var stream []byte
	for _, m := range msgs {
		frame, err := Encode(m)
		require.NoError(t, err)
		stream = append(stream, frame...)
	}
	return stream
}

func TestFramerWholeStream(t *testing.T) {
	stream := encodeAll(t,
		Message{"op": "eval", "code": "(+ 1 2)", "id": "1"},
		Message{"op": "describe", "id": "2"},
	)
	f := &Framer{}
	msgs := f.Feed(stream)
	require.Len(t, msgs, 2)
	assert.Equal(t, "eval", msgs[0].Op())
	assert.Equal(t, "describe", msgs[1].Op())
	assert.Equal(t, 0, f.Pending())
}

// Feeding a byte stream split at any boundary must yield the same message
// sequence as feeding it in one shot.
func TestFramerChunkBoundaryIndependence(t *testing.T) {
	stream := encodeAll(t,
		Message{"op": "eval", "code": "(def x 1)", "id": "a"},
		Message{"op": "complete", "prefix": "d", "id": "b", "session": "s-1"},
		Message{"op": "close", "id": "c"},
	)

	whole := (&Framer{}).Feed(stream)
	require.Len(t, whole, 3)

	for split := 1; split < len(stream); split++ {
		t.Run(fmt.Sprintf("split-%d", split), func(t *testing.T) {
			f := &Framer{}
			var got []Message
			got = append(got, f.Feed(stream[:split])...)
			got = append(got, f.Feed(stream[split:])...)
			require.Len(t, got, len(whole))
			for i := range whole {
				assert.Equal(t, whole[i], got[i])
			}
			assert.Equal(t, 0, f.Pending())
		})
	}
}

func TestFramerByteAtATime(t *testing.T) {
	stream := encodeAll(t, Message{"op": "eval", "code": "42", "id": "1"})
	f := &Framer{}
	var got []Message
	for _, b := range stream {
		got = append(got, f.Feed([]byte{b})...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].GetString("code"))
	assert.Equal(t, 0, f.Pending())
}

func TestFramerRetainsPartialFrame(t *testing.T) {
	stream := encodeAll(t, Message{"op": "eval", "code": "(+ 1 2)"})
	f := &Framer{}

	msgs := f.Feed(stream[:len(stream)-5])
	assert.Empty(t, msgs)
	assert.Greater(t, f.Pending(), 0)

	msgs = f.Feed(stream[len(stream)-5:])
	require.Len(t, msgs, 1)
	assert.Equal(t, "eval", msgs[0].Op())
	assert.Equal(t, 0, f.Pending())
}

// A peer that closes with a truncated message dangling mid-frame loses that
// message; Discard models the connection manager's silent drop.
func TestFramerDiscardDropsDanglingFrame(t *testing.T) {
	stream := encodeAll(t, Message{"op": "eval", "code": "(+ 1 2)"})
	f := &Framer{}
	f.Feed(stream[:len(stream)/2])
	assert.Greater(t, f.Pending(), 0)

	f.Discard()
	assert.Equal(t, 0, f.Pending())

	// The framer is reusable for a fresh stream afterwards.
	msgs := f.Feed(stream)
	require.Len(t, msgs, 1)
}

func TestDecodeAllReportsRemainderByteForByte(t *testing.T) {
	full := encodeAll(t, Message{"op": "eval"})
	tail := []byte("d2:op4:ev") // truncated second message
	buf := append(append([]byte(nil), full...), tail...)

	msgs, rest := DecodeAll(buf)
	require.Len(t, msgs, 1)
	assert.Equal(t, tail, rest)
}

func TestDecodeAllSkipsNonDictValues(t *testing.T) {
	buf := append([]byte("i42e"), encodeAll(t, Message{"op": "close"})...)
	msgs, rest := DecodeAll(buf)
	require.Len(t, msgs, 1)
	assert.Equal(t, "close", msgs[0].Op())
	assert.Empty(t, rest)
}
