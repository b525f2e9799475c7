package fileserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Request signing headers expected by the file server.
const (
	HeaderAccessKey = "X-Access-Key"
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// Sign computes the hex-encoded HMAC-SHA256 over
// `UPPERCASE(method) + "\n" + path + "\n" + timestamp`.
func Sign(secret, method, path, timestamp string) string {
	stringToSign := strings.ToUpper(method) + "\n" + path + "\n" + timestamp
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stringToSign))
	return hex.EncodeToString(mac.Sum(nil))
}

// Signer produces the three auth headers for outbound file-server requests.
// The timestamp is the current Unix second at call time, so signatures are
// never reused across retries.
type Signer struct {
	accessKey string
	secretKey string
}

// NewSigner returns a signer for the given credential pair.
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{accessKey: accessKey, secretKey: secretKey}
}

// Headers returns the signed header set for one request.
func (s *Signer) Headers(method, path string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	return map[string]string{
		HeaderAccessKey: s.accessKey,
		HeaderSignature: Sign(s.secretKey, method, path, timestamp),
		HeaderTimestamp: timestamp,
	}
}
