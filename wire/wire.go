// Package wire implements the multipart, signed frame representation
// used on every kernel channel.
//
// A message travels as an ordered list of byte frames:
//
//	[...identities, "<IDS|MSG>", signature, header, parent_header, metadata, content, ...buffers]
//
// The four structured frames are JSON objects. The signature frame is the
// lowercase hex HMAC digest over exactly those four frames, in order, under
// the instance's shared key. An empty key means unsigned: the signature
// frame is empty and nothing is verified.
package wire

import (
	"encoding/json"
	"errors"
)

// delimiter separates routing identities from the signed message body.
var delimiter = []byte("<IDS|MSG>")

// Recoverable per-message decode failures. One bad frame set is dropped;
// the channel stays usable.
var (
	// ErrMalformed indicates a frame set that does not parse as a message
	// (missing delimiter, too few frames, or invalid JSON in a structured
	// frame).
	ErrMalformed = errors.New("wire: malformed message")

	// ErrSignature indicates a message whose HMAC signature does not match
	// its structured frames.
	ErrSignature = errors.New("wire: signature mismatch")

	// ErrScheme indicates an unsupported signing scheme name.
	ErrScheme = errors.New("wire: unsupported signature scheme")
)

// Header is the identifying envelope of a message. Every request carries
// a fresh, globally unique MsgID; every message answering it echoes that
// id in its own ParentHeader.MsgID. The id is the sole correlation key
// between channels.
type Header struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date,omitempty"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version,omitempty"`
}

// IsZero reports whether the header is empty (no parent).
func (h Header) IsZero() bool {
	return h == Header{}
}

// Message is one structured protocol message.
type Message struct {
	// Identities are the leading routing frames, opaque to this package.
	Identities [][]byte

	Header       Header
	ParentHeader Header

	// Metadata is the free-form key/value frame.
	Metadata map[string]any

	// Content is the message-type-specific payload, kept raw so each
	// consumer unmarshals only the shape it needs.
	Content json.RawMessage

	// Buffers are trailing raw byte blobs.
	Buffers [][]byte
}

// Type returns the message's type discriminator.
func (m *Message) Type() string { return m.Header.MsgType }

// AnswersTo reports whether m is a reply or event correlated to the
// request with the given id.
func (m *Message) AnswersTo(id string) bool {
	return id != "" && m.ParentHeader.MsgID == id
}
