package storageserver

import (
	"bytes"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
)

// S3Config names the bucket/region/profile an s3Mirror writes
// through to, mirroring the teacher's config.C S3* fields.
type S3Config struct {
	Region  string
	Profile string
	Bucket  string
}

type s3Mirror struct {
	client *s3.S3
	bucket string
}

var _ Mirror = (*s3Mirror)(nil)

// NewS3Mirror constructs a write-through secondary tier backed by an
// S3 bucket, grounded on the teacher's newS3Store session setup.
func NewS3Mirror(cfg S3Config) (Mirror, error) {
	const maxRetries = 16
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewSharedCredentials("", cfg.Profile),
		MaxRetries:  aws.Int(maxRetries),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &s3Mirror{
		client: s3.New(sess),
		bucket: cfg.Bucket,
	}, nil
}

func (m *s3Mirror) Put(relPath string, data []byte) error {
	_, err := m.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(relPath),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (m *s3Mirror) Delete(relPath string) error {
	if _, err := m.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(relPath),
	}); err != nil {
		if rfErr, ok := err.(awserr.RequestFailure); ok && rfErr.StatusCode() == http.StatusNotFound {
			return nil
		}
		return errors.WithStack(err)
	}
	return nil
}
