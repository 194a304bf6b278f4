package rawstore

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
)

// KeyPrefix is the prefix under which raw emails are stored.
const KeyPrefix = "emails/"

// ObjectRef locates an object in S3.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (r ObjectRef) String() string {
	return "s3://" + r.Bucket + "/" + r.Key
}

// BuildKey returns the key for a raw email received at t:
// emails/YYYY/MM/DD/<message-id>.eml. A blank message id gets a random one.
func BuildKey(t time.Time, messageID string) string {
	id := strings.TrimSpace(messageID)
	id = strings.TrimSuffix(strings.TrimPrefix(id, "<"), ">")
	id = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(id)
	if id == "" {
		id = uuid.New().String()
	}
	return fmt.Sprintf("%s%s/%s.eml", KeyPrefix, t.UTC().Format("2006/01/02"), id)
}

// DecodeKey reverses the form encoding S3 applies to keys in event
// notifications: "+" is a space and %XX an escaped byte.
func DecodeKey(key string) (string, error) {
	decoded, err := url.QueryUnescape(key)
	if err != nil {
		return "", fmt.Errorf("decode key %q: %w", key, err)
	}
	return decoded, nil
}

// RefsFromEvent returns the objects created in an S3 event notification.
func RefsFromEvent(event events.S3Event) ([]ObjectRef, error) {
	refs := make([]ObjectRef, 0, len(event.Records))
	for _, record := range event.Records {
		if !strings.HasPrefix(record.EventName, "ObjectCreated:") {
			continue
		}
		key, err := DecodeKey(record.S3.Object.Key)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ObjectRef{Bucket: record.S3.Bucket.Name, Key: key})
	}
	return refs, nil
}
