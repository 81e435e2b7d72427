package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Mirror replicates artifact files to an S3 bucket
type S3Mirror struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Mirror creates an S3 mirror. Without static keys the default AWS
// credential chain is used.
func NewS3Mirror(config *S3Config, prefix string) (*S3Mirror, error) {
	if config == nil {
		return nil, NewValidationError("S3 mirror configuration is required", nil)
	}
	if config.Bucket == "" {
		return nil, NewValidationError("S3 bucket name is required", nil)
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	return &S3Mirror{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   config.Bucket,
		prefix:   prefix,
	}, nil
}

// Name identifies the mirror in logs
func (m *S3Mirror) Name() string {
	return "s3"
}

// Upload streams the artifact file at localPath to the bucket
func (m *S3Mirror) Upload(ctx context.Context, localPath, name string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", NewStorageError("failed to open artifact for S3 upload", err)
	}
	defer file.Close()

	key := mirrorKey(m.prefix, name)
	_, err = m.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentTypeFor(name)),
	})
	if err != nil {
		return "", NewStorageError("failed to upload artifact to S3", err)
	}

	return fmt.Sprintf("s3://%s/%s", m.bucket, key), nil
}

// Delete removes the mirrored copy of name
func (m *S3Mirror) Delete(ctx context.Context, name string) error {
	_, err := m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(mirrorKey(m.prefix, name)),
	})
	if err != nil {
		return NewStorageError("failed to delete artifact from S3", err)
	}
	return nil
}
