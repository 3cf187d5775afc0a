// Package trigger parses object-created notifications into the bucket and key
// of the object to ingest.
package trigger

import (
	"encoding/json"
	"io"
	"strings"

	ierrors "github.com/Aman-CERP/eventindexer/internal/errors"
)

// Notification identifies one newly written object.
type Notification struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String returns bucket/key.
func (n Notification) String() string {
	return n.Bucket + "/" + n.Key
}

// Validate checks that both bucket and key are set.
func (n Notification) Validate() error {
	if strings.TrimSpace(n.Bucket) == "" {
		return invalid("notification has no bucket name", nil)
	}
	if strings.TrimSpace(n.Key) == "" {
		return invalid("notification has no object key", nil)
	}
	return nil
}

// s3Event is the S3 event notification shape.
type s3Event struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// gcsObject is the Cloud Storage object-finalize payload shape.
type gcsObject struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Parse decodes a notification. S3 event notifications use only their first
// record, and their keys are form-unescaped leniently (see unescapeKey). Cloud Storage object payloads
// carry the object name verbatim.
func Parse(data []byte) (Notification, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil {
		return Notification{}, invalid("notification is not a JSON object", err)
	}

	if _, ok := shape["Records"]; ok {
		var ev s3Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return Notification{}, invalid("malformed S3 event notification", err)
		}
		if len(ev.Records) == 0 {
			return Notification{}, invalid("S3 event notification has no records", nil)
		}
		rec := ev.Records[0]
		n := Notification{Bucket: rec.S3.Bucket.Name, Key: unescapeKey(rec.S3.Object.Key)}
		return n, n.Validate()
	}

	if _, ok := shape["name"]; ok {
		var obj gcsObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return Notification{}, invalid("malformed object notification", err)
		}
		n := Notification{Bucket: obj.Bucket, Key: obj.Name}
		return n, n.Validate()
	}

	return Notification{}, invalid("unrecognised notification shape", nil).
		WithSuggestion("Expected an S3 event with Records or an object payload with bucket and name")
}

// Read parses a notification from r.
func Read(r io.Reader) (Notification, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Notification{}, invalid("failed to read notification", err)
	}
	return Parse(data)
}

// unescapeKey decodes an S3 notification key: '+' becomes a space and every
// well-formed %XX sequence becomes its byte. A '%' not followed by two hex
// digits is kept literally, and bytes that do not form UTF-8 become U+FFFD.
func unescapeKey(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func invalid(msg string, cause error) *ierrors.IndexerError {
	return ierrors.New(ierrors.ErrCodeInvalidNotification, msg, cause)
}
