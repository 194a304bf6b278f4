package rawstore

import (
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

func TestBuildKey(t *testing.T) {
	at := time.Date(2024, 3, 7, 23, 30, 0, 0, time.FixedZone("NZDT", 13*3600))

	got := BuildKey(at, "<CAF=abc/def@mail.example.com>")
	want := "emails/2024/03/07/CAF=abc_def@mail.example.com.eml"
	if got != want {
		t.Errorf("BuildKey() = %q, want %q", got, want)
	}
}

func TestBuildKey_EmptyMessageID(t *testing.T) {
	got := BuildKey(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), " ")
	if !strings.HasPrefix(got, "emails/2024/01/02/") || !strings.HasSuffix(got, ".eml") {
		t.Errorf("BuildKey() = %q", got)
	}
	if len(got) <= len("emails/2024/01/02/.eml") {
		t.Errorf("BuildKey() = %q, want a generated id", got)
	}
}

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"emails/2024/01/02/plain.eml", "emails/2024/01/02/plain.eml"},
		{"emails/with+space.eml", "emails/with space.eml"},
		{"emails/a%40b.eml", "emails/a@b.eml"},
		{"emails/a%2Bb.eml", "emails/a+b.eml"},
	}
	for _, tt := range tests {
		got, err := DecodeKey(tt.in)
		if err != nil {
			t.Fatalf("DecodeKey(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("DecodeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := DecodeKey("bad%zz"); err == nil {
		t.Error("DecodeKey() expected error for malformed escape")
	}
}

func TestRefsFromEvent(t *testing.T) {
	event := events.S3Event{Records: []events.S3EventRecord{
		{
			EventName: "ObjectCreated:Put",
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: "raw-mail"},
				Object: events.S3Object{Key: "emails/2024/01/02/a+b.eml"},
			},
		},
		{
			EventName: "ObjectRemoved:Delete",
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: "raw-mail"},
				Object: events.S3Object{Key: "emails/gone.eml"},
			},
		},
	}}

	refs, err := RefsFromEvent(event)
	if err != nil {
		t.Fatalf("RefsFromEvent() error = %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("refs = %v, want 1", refs)
	}
	if refs[0].Bucket != "raw-mail" || refs[0].Key != "emails/2024/01/02/a b.eml" {
		t.Errorf("ref = %+v", refs[0])
	}
	if refs[0].String() != "s3://raw-mail/emails/2024/01/02/a b.eml" {
		t.Errorf("String() = %q", refs[0].String())
	}
}
