package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver writes notification journal entries to S3 paths like:
//
//	s3://<bucket>/<prefix>/notifications/YYYY/MM/DD/<entryID>.json
type Archiver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

func NewArchiver(cfg aws.Config, bucket, prefix string) (*Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	client := s3.NewFromConfig(cfg)
	return &Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// ArchiveEntry uploads the JSON rendering of one journal entry.
func (a *Archiver) ArchiveEntry(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal archive entry: %w", err)
	}
	ts := entry.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	year, month, day := ts.Date()
	key := path.Join(a.prefix, "notifications",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("%s.json", entry.ID),
	)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
