package wire

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strings"
)

// Signing scheme names accepted by NewSigner.
const (
	SchemeSHA256 = "hmac-sha256"
	SchemeSHA1   = "hmac-sha1"
	SchemeSHA512 = "hmac-sha512"
)

// Signer holds the shared signing scheme and key for one kernel instance.
// All three channels of an instance share one Signer; it never changes
// for the instance's lifetime. The zero Signer signs nothing (empty key).
type Signer struct {
	scheme  string
	key     []byte
	newHash func() hash.Hash
}

// NewSigner returns a Signer for the given scheme and key. An empty key
// produces an unsigned Signer regardless of scheme. Unknown schemes with
// a non-empty key return ErrScheme.
func NewSigner(scheme string, key []byte) (Signer, error) {
	if len(key) == 0 {
		return Signer{}, nil
	}
	var h func() hash.Hash
	switch strings.ToLower(scheme) {
	case SchemeSHA256, "":
		h = sha256.New
	case SchemeSHA1:
		h = sha1.New
	case SchemeSHA512:
		h = sha512.New
	default:
		return Signer{}, fmt.Errorf("%w: %q", ErrScheme, scheme)
	}
	return Signer{scheme: scheme, key: append([]byte(nil), key...), newHash: h}, nil
}

// Enabled reports whether messages are signed and verified.
func (s Signer) Enabled() bool { return len(s.key) > 0 }

// Scheme returns the digest algorithm name ("" for an unsigned Signer).
func (s Signer) Scheme() string { return s.scheme }

// sign returns the lowercase hex HMAC digest over parts, in order.
func (s Signer) sign(parts ...[]byte) string {
	mac := hmac.New(s.newHash, s.key)
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// verify checks a supplied hex signature against parts. Hex comparison is
// case-insensitive; the underlying digest comparison is constant-time.
func (s Signer) verify(sig []byte, parts ...[]byte) bool {
	want := s.sign(parts...)
	got := strings.ToLower(string(sig))
	return hmac.Equal([]byte(got), []byte(want))
}

// Encode serializes msg into its frame representation, signing the four
// structured frames with s. Metadata nil is encoded as an empty object;
// Content nil as {}.
func Encode(msg *Message, s Signer) ([][]byte, error) {
	headerB, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal header: %w", err)
	}
	parentB, err := json.Marshal(msg.ParentHeader)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal parent header: %w", err)
	}
	meta := msg.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaB, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal metadata: %w", err)
	}
	contentB := []byte(msg.Content)
	if len(contentB) == 0 {
		contentB = []byte("{}")
	}

	var sig []byte
	if s.Enabled() {
		sig = []byte(s.sign(headerB, parentB, metaB, contentB))
	}

	frames := make([][]byte, 0, len(msg.Identities)+6+len(msg.Buffers))
	frames = append(frames, msg.Identities...)
	frames = append(frames, delimiter, sig, headerB, parentB, metaB, contentB)
	frames = append(frames, msg.Buffers...)
	return frames, nil
}

// Decode parses a frame set back into a Message, verifying the signature
// when s is enabled. Failures are per-message and recoverable: the caller
// drops the message and keeps reading the channel.
func Decode(frames [][]byte, s Signer) (*Message, error) {
	delim := -1
	for i, f := range frames {
		if bytes.Equal(f, delimiter) {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, fmt.Errorf("%w: no delimiter frame", ErrMalformed)
	}
	body := frames[delim+1:]
	// Signature plus the four structured frames.
	if len(body) < 5 {
		return nil, fmt.Errorf("%w: %d frames after delimiter, need at least 5", ErrMalformed, len(body))
	}

	sig, structured := body[0], body[1:5]
	if s.Enabled() && !s.verify(sig, structured...) {
		return nil, ErrSignature
	}

	msg := &Message{}
	if delim > 0 {
		msg.Identities = copyFrames(frames[:delim])
	}
	if err := json.Unmarshal(structured[0], &msg.Header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(structured[1], &msg.ParentHeader); err != nil {
		return nil, fmt.Errorf("%w: parent header: %v", ErrMalformed, err)
	}
	if err := json.Unmarshal(structured[2], &msg.Metadata); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrMalformed, err)
	}
	if !json.Valid(structured[3]) {
		return nil, fmt.Errorf("%w: content is not valid JSON", ErrMalformed)
	}
	msg.Content = append(json.RawMessage(nil), structured[3]...)
	if len(body) > 5 {
		msg.Buffers = copyFrames(body[5:])
	}
	return msg, nil
}

// copyFrames deep-copies a frame slice so decoded messages do not alias
// transport buffers that may be reused.
func copyFrames(frames [][]byte) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}
