package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	signatureTimestampKey = "ts"
	signatureDigestKey    = "v1"
)

// HeaderToken is an optional value taken from the signature header.
// Present is false when the key did not appear at all.
type HeaderToken struct {
	Value   string
	Present bool
}

// SignatureHeader is the parsed form of a "ts=<unix>,v1=<hex>" header value.
type SignatureHeader struct {
	Timestamp HeaderToken
	Signature HeaderToken
}

// Complete reports whether both the timestamp and the digest were supplied.
func (h SignatureHeader) Complete() bool {
	return h.Timestamp.Present && h.Signature.Present
}

// ParseSignatureHeader tokenizes a comma-separated key=value header.
// Unknown keys are ignored and the first occurrence of a key wins.
func ParseSignatureHeader(header string) SignatureHeader {
	var parsed SignatureHeader
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case signatureTimestampKey:
			if !parsed.Timestamp.Present {
				parsed.Timestamp = HeaderToken{Value: value, Present: true}
			}
		case signatureDigestKey:
			if !parsed.Signature.Present {
				parsed.Signature = HeaderToken{Value: value, Present: true}
			}
		}
	}
	return parsed
}

// ComputeSignature returns the lowercase hex HMAC-SHA256 of "<ts>.<body>".
func ComputeSignature(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header carries a valid signature of body
// under secret. Malformed or incomplete headers verify as false.
//
// body must be the exact bytes received on the wire. Any re-encoding done
// by JSON decoding before this call makes every verification fail.
func VerifySignature(header string, body []byte, secret string) bool {
	if header == "" {
		return false
	}
	parsed := ParseSignatureHeader(header)
	if !parsed.Complete() {
		return false
	}
	expected := ComputeSignature(secret, parsed.Timestamp.Value, body)
	return hmac.Equal([]byte(expected), []byte(parsed.Signature.Value))
}
