package protocol

// Message is one decoded nREPL message: a bencode dictionary of string keys
// to strings, integers, lists, or nested dictionaries. Requests carry at
// least "op"; responses eventually carry a "status" list containing "done".
type Message map[string]any

// Op returns the operation name, coerced to a string.
func (m Message) Op() string {
	return m.GetString("op")
}

// ID returns the request id, or "" when the client sent none.
func (m Message) ID() string {
	return m.GetString("id")
}

// Session returns the session id, or "" when the client sent none.
func (m Message) Session() string {
	return m.GetString("session")
}

// GetString returns the value at key when it is a string, else "".
func (m Message) GetString(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// GetInt returns the value at key when it is an integer, else (0, false).
// The bencode codec decodes all integers as int64.
func (m Message) GetInt(key string) (int64, bool) {
	n, ok := m[key].(int64)
	return n, ok
}

// Status returns the response status list, if any. Locally built responses
// hold []string; decoded ones hold []any of strings.
func (m Message) Status() []string {
	switch v := m["status"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// HasStatus reports whether the response status list contains tag.
func (m Message) HasStatus(tag string) bool {
	for _, s := range m.Status() {
		if s == tag {
			return true
		}
	}
	return false
}
