package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"sync"
	"time"

	"github.com/kendall-kelly/pouch-store-api/utils"
)

// MockProofStorage is an in-memory ProofStorage for testing
type MockProofStorage struct {
	files map[string][]byte // map of storage key to file content
	mu    sync.RWMutex
}

// NewMockProofStorage creates a new mock proof storage
func NewMockProofStorage() *MockProofStorage {
	return &MockProofStorage{
		files: make(map[string][]byte),
	}
}

// SetAsMockForTesting sets this mock as the global proof storage instance for testing
func (m *MockProofStorage) SetAsMockForTesting() {
	SetProofStorage(m)
}

// Upload validates the image and keeps it in memory
func (m *MockProofStorage) Upload(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	if _, err := utils.ValidateProofImage(fileHeader); err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	key := proofKey(fileHeader.Filename, time.Now())
	m.mu.Lock()
	m.files[key] = content
	m.mu.Unlock()

	return key, nil
}

// URL returns a fake presigned URL for a stored key
func (m *MockProofStorage) URL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.files[key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("file not found in mock storage: %s", key)
	}

	return fmt.Sprintf("https://test-bucket.s3.us-east-1.amazonaws.com/%s?mock=true", key), nil
}

// Delete removes a stored key
func (m *MockProofStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.files, key)
	m.mu.Unlock()
	return nil
}

// FileExists checks if a key exists in mock storage
func (m *MockProofStorage) FileExists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.files[key]
	return exists
}

// Count returns how many files are stored
func (m *MockProofStorage) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// Clear removes all files from mock storage
func (m *MockProofStorage) Clear() {
	m.mu.Lock()
	m.files = make(map[string][]byte)
	m.mu.Unlock()
}
