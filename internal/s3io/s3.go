// Package s3io provides utilities for working with the audio bucket:
// presigned upload URLs and object fetches for the processing pipeline.
package s3io

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Presigner defines the interface for presigning S3 requests.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// PresignAudioPut generates a presigned URL for uploading a recording's audio
// object. The recording id and owner key ride along as object metadata so
// the ingest handler can resolve the recording without parsing the key.
func PresignAudioPut(ctx context.Context, p Presigner, bucket, key, contentType string, meta map[string]string, ttl time.Duration) (string, time.Duration, error) {
	input := &s3.PutObjectInput{
		Bucket:               aws.String(bucket),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	}

	req, err := p.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", 0, err
	}
	return req.URL, ttl, nil
}

// ObjectGetter is the subset of the S3 client the fetcher needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher streams audio objects out of the bucket for transcription.
type Fetcher struct {
	Client ObjectGetter
	Bucket string
}

// Open returns a reader over the object body. The caller closes it.
func (f *Fetcher) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := f.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}
