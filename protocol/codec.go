package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	bencode "github.com/jackpal/bencode-go"
)

// DecodeAll decodes as many consecutive bencode dictionaries as buf holds
// and returns them along with the undecoded remainder. Bencode is
// self-delimiting, so a remainder is either empty or the prefix of a
// message whose tail has not arrived yet; callers keep it and retry once
// more bytes show up. Values that decode to something other than a
// dictionary are dropped.
func DecodeAll(buf []byte) ([]Message, []byte) {
	var msgs []Message
	src := bytes.NewReader(buf)
	br := bufio.NewReader(src)
	for {
		// Bytes consumed from buf so far: pulled from src minus what
		// still sits unread in the bufio layer.
		consumed := len(buf) - src.Len() - br.Buffered()
		v, err := bencode.Decode(br)
		if err != nil {
			return msgs, buf[consumed:]
		}
		if dict, ok := v.(map[string]any); ok {
			msgs = append(msgs, Message(dict))
		}
	}
}

// EncodeTo bencodes msg into w. The message is staged in a scratch buffer
// first so an unencodable value never leaves a half-written frame on the
// wire.
func EncodeTo(w io.Writer, msg Message) error {
	var scratch bytes.Buffer
	if err := bencode.Marshal(&scratch, map[string]any(msg)); err != nil {
		return fmt.Errorf("bencode response: %w", err)
	}
	if _, err := scratch.WriteTo(w); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// Encode bencodes msg and returns the raw frame bytes.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, map[string]any(msg)); err != nil {
		return nil, fmt.Errorf("bencode response: %w", err)
	}
	return buf.Bytes(), nil
}
