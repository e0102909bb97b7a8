package protocol

// Framer reassembles nREPL messages from a TCP byte stream. The stream has
// no framing beyond what bencode itself provides, so a socket read can end
// mid-message; Framer keeps the undecoded tail between reads and carries it
// into the next chunk.
type Framer struct {
	pending []byte
}

// Feed appends chunk to any pending bytes and returns every message that is
// now fully decodable. Whatever the codec could not parse is retained for
// the next call. Feeding the same byte sequence split at arbitrary
// boundaries yields the same message sequence as feeding it whole.
func (f *Framer) Feed(chunk []byte) []Message {
	buf := chunk
	if len(f.pending) > 0 {
		buf = append(f.pending, chunk...)
	}
	msgs, rest := DecodeAll(buf)
	// Copy the remainder out of buf so the caller may reuse its read buffer.
	f.pending = append([]byte(nil), rest...)
	return msgs
}

// Pending returns the number of buffered bytes awaiting the rest of a frame.
func (f *Framer) Pending() int {
	return len(f.pending)
}

// Discard drops any partially received frame. The connection manager calls
// this on orderly peer shutdown; a message left dangling mid-frame at that
// point is silently lost, a known simplification of this server.
func (f *Framer) Discard() {
	f.pending = nil
}
