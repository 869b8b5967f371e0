package imgpress

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultMaxInputSize is the largest decoded input accepted by default.
const DefaultMaxInputSize = 50 * 1024 * 1024

// stripDataURIPrefix drops everything up to and including the first comma,
// which removes a "data:image/png;base64," style header. Input without a
// comma is returned unchanged.
func stripDataURIPrefix(s string) string {
	if _, payload, ok := strings.Cut(s, ","); ok {
		return payload
	}
	return s
}

// DecodeTransport decodes a base64 payload, with or without a data URI
// header, into raw bytes. maxSize <= 0 disables the size check.
func DecodeTransport(s string, maxSize int) ([]byte, error) {
	payload := stripDataURIPrefix(s)

	if maxSize > 0 {
		if n := base64.StdEncoding.DecodedLen(len(payload)); n-2 > maxSize {
			return nil, newError(KindTooLarge, fmt.Sprintf("input of about %s exceeds limit of %s", HumanBytes(int64(n)), HumanBytes(int64(maxSize))), nil)
		}
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, newError(KindDecode, "failed to decode base64", err)
	}

	if maxSize > 0 && len(raw) > maxSize {
		return nil, newError(KindTooLarge, fmt.Sprintf("input of %s exceeds limit of %s", HumanBytes(int64(len(raw))), HumanBytes(int64(maxSize))), nil)
	}
	return raw, nil
}

// EncodeTransport wraps encoded image bytes as a data URI labelled with the
// format's MIME subtype.
func EncodeTransport(data []byte, f Format) string {
	var b strings.Builder
	prefix := "data:image/" + f.Label() + ";base64,"
	b.Grow(len(prefix) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(prefix)
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}
