package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jarrod-lowe/burner-notify/internal/rawstore"
)

// ListRefs returns every .eml object under prefix in bucket.
func ListRefs(ctx context.Context, client s3.ListObjectsV2APIClient, bucket, prefix string) ([]rawstore.ObjectRef, error) {
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var refs []rawstore.ObjectRef
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".eml") {
				refs = append(refs, rawstore.ObjectRef{Bucket: bucket, Key: key})
			}
		}
	}
	return refs, nil
}
