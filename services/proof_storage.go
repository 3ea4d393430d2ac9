package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/utils"
)

// ProofStorage stores fulfillment proof images
type ProofStorage interface {
	// Upload validates and stores an image, returning its storage key
	Upload(ctx context.Context, fileHeader *multipart.FileHeader) (string, error)

	// URL returns a time-limited URL for a stored image
	URL(ctx context.Context, key string) (string, error)

	// Delete removes a stored image
	Delete(ctx context.Context, key string) error
}

// S3ProofStorage implements ProofStorage on a private S3 bucket
type S3ProofStorage struct {
	client *s3.Client
	bucket string
}

var proofStorageInstance ProofStorage

// InitProofStorage initializes S3 proof storage from the application config
func InitProofStorage(cfg *config.Config) (ProofStorage, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	proofStorageInstance = &S3ProofStorage{
		client: s3.NewFromConfig(awsConfig),
		bucket: cfg.AWSS3Bucket,
	}
	return proofStorageInstance, nil
}

// GetProofStorage returns the initialized proof storage, or nil when uploads are disabled
func GetProofStorage() ProofStorage {
	return proofStorageInstance
}

// SetProofStorage sets the proof storage instance (primarily for testing)
func SetProofStorage(storage ProofStorage) {
	proofStorageInstance = storage
}

// proofKey builds the object key: proofs/{yyyy}/{mm}/{uuid}{ext}
func proofKey(filename string, now time.Time) string {
	return fmt.Sprintf("proofs/%s/%s%s", now.Format("2006/01"), uuid.NewString(), utils.ProofExtension(filename))
}

// Upload validates the image and puts it in the bucket
func (s *S3ProofStorage) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	contentType, err := utils.ValidateProofImage(fileHeader)
	if err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			log.Printf("warning: failed to close file: %v", closeErr)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	key := proofKey(fileHeader.Filename, time.Now())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return key, nil
}

// URL generates a presigned GET URL that expires after 1 hour
func (s *S3ProofStorage) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	presignClient := s3.NewPresignClient(s.client)
	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = time.Hour
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return request.URL, nil
}

// Delete removes an object from the bucket
func (s *S3ProofStorage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}
