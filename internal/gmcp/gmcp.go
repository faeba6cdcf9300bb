// Package gmcp decodes Generic MUD Communication Protocol payloads (C4):
// a dotted package path followed by a JSON value, both carried inside a
// Telnet subnegotiation.
package gmcp

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
)

// Message is a decoded GMCP payload.
type Message struct {
	Package string          // dotted identifier, e.g. "Char.Vitals"
	Data    json.RawMessage // the JSON value, always valid JSON
}

// Parse splits a UTF-8 GMCP payload at the first space: the prefix is
// the package path, the suffix is a JSON value. An empty suffix is
// equivalent to an empty object. Ill-formed JSON produces an empty
// object and is logged but never fails the connection, per §4.4/§7.
func Parse(payload string) Message {
	pkg, data, found := strings.Cut(payload, " ")
	if !found {
		pkg = payload
		data = ""
	}

	data = strings.TrimSpace(data)
	if data == "" {
		return Message{Package: pkg, Data: json.RawMessage("{}")}
	}

	if !json.Valid([]byte(data)) {
		log.Printf("gmcp: malformed JSON payload for package %q, substituting {}", pkg)
		return Message{Package: pkg, Data: json.RawMessage("{}")}
	}

	// Canonicalize via compact re-encode so downstream snapshot equality
	// checks aren't sensitive to incidental whitespace differences.
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(data)); err != nil {
		log.Printf("gmcp: could not compact JSON payload for package %q: %v", pkg, err)
		return Message{Package: pkg, Data: json.RawMessage("{}")}
	}

	return Message{Package: pkg, Data: json.RawMessage(append([]byte(nil), compact.Bytes()...))}
}

// Encode formats a GMCP message for the wire: "Package.Sub {...}" (the
// IAC/SB/SE framing is the connection manager's job).
func Encode(pkg string, data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte(pkg)
	}
	out := make([]byte, 0, len(pkg)+1+len(data))
	out = append(out, []byte(pkg)...)
	out = append(out, ' ')
	out = append(out, data...)
	return out
}
