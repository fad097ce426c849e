package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/ntdkhiem/fycat/compression"
	"github.com/ntdkhiem/fycat/internal/common"
)

// --- Mocks ---

// mockGCSClient satisfies the GCSClientInterface
type mockGCSClient struct {
	mu    sync.Mutex
	files map[string]*bytes.Buffer // Stores uploaded files in memory
	// failRead tells NewObjectReader to return an error
	failRead bool
	// failClose makes writers keep what they received and then fail on
	// Close, like an interrupted upload
	failClose bool
	// deleteCtxErrs records the context state seen by each DeleteObject
	deleteCtxErrs []error
}

// NewObjectWriter creates an in-memory writer
func (c *mockGCSClient) NewObjectWriter(ctx context.Context, bucket, object string) common.GCSObjectWriterInterface {
	return &mockGCSWriter{
		objectPath: object,
		buffer:     new(bytes.Buffer),
		client:     c,
	}
}

func (c *mockGCSClient) NewObjectReader(ctx context.Context, bucket, object string) (common.GCSObjectReaderInterface, error) {
	if c.failRead {
		return nil, errors.New("mock gcs read error")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.files[object]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	// Create a new reader from a copy of the bytes
	return io.NopCloser(bytes.NewReader(data.Bytes())), nil
}

func (c *mockGCSClient) DeleteObject(ctx context.Context, bucket, object string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteCtxErrs = append(c.deleteCtxErrs, ctx.Err())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := c.files[object]; !ok {
		return storage.ErrObjectNotExist
	}
	delete(c.files, object)
	return nil
}

// Helper to pre-populate files
func (c *mockGCSClient) SetObject(object string, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[object] = bytes.NewBuffer(content)
}

// Helper to get file content from the mock
func (c *mockGCSClient) GetObjectContent(object string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.files[object]
	if !ok {
		return nil, false
	}
	return buf.Bytes(), true
}

// mockGCSWriter satisfies io.WriteCloser
type mockGCSWriter struct {
	objectPath string
	buffer     *bytes.Buffer
	client     *mockGCSClient
}

// Write adds data to the in-memory buffer
func (w *mockGCSWriter) Write(p []byte) (n int, err error) {
	return w.buffer.Write(p)
}

// Close "commits" the buffer to the mock client's file map
func (w *mockGCSWriter) Close() error {
	w.client.mu.Lock()
	defer w.client.mu.Unlock()
	w.client.files[w.objectPath] = w.buffer
	if w.client.failClose {
		return errors.New("mock gcs close error")
	}
	return nil
}

// mockMessage satisfies MessageInterface
type mockMessage struct {
	data       []byte
	ackCalled  bool
	nackCalled bool
}

func (m *mockMessage) Ack()            { m.ackCalled = true }
func (m *mockMessage) Nack()           { m.nackCalled = true }
func (m *mockMessage) GetData() []byte { return m.data }

// --- Test Setup ---

const testBucket = "test-bucket"

// setupTestApp initializes a new Application with mock clients.
func setupTestApp(t *testing.T) (*Application, *mockGCSClient) {
	t.Helper()

	ctx := context.Background()

	mockGCS := &mockGCSClient{
		files: make(map[string]*bytes.Buffer),
	}

	app := &Application{
		GCSClient:  mockGCS,
		CTX:        &ctx,
		Bucket:     testBucket,
		GCSTimeout: 5 * time.Second,
	}

	return app, mockGCS
}

func newJobMessage(t *testing.T, job any) *mockMessage {
	t.Helper()
	msgBytes, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Failed to marshal job message: %v", err)
	}
	return &mockMessage{data: msgBytes}
}

func readStatus(t *testing.T, mockGCS *mockGCSClient, jobID string) common.JobStatus {
	t.Helper()
	content, ok := mockGCS.GetObjectContent(common.StatusPath(jobID))
	if !ok {
		t.Fatalf("Expected status object for job %s", jobID)
	}
	var status common.JobStatus
	if err := json.Unmarshal(content, &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	return status
}

func expectAck(t *testing.T, msg *mockMessage) {
	t.Helper()
	if !msg.ackCalled {
		t.Error("Expected message to be Ack-ed, but it wasn't")
	}
	if msg.nackCalled {
		t.Error("Expected message to not be Nack-ed, but it was")
	}
}

func expectNack(t *testing.T, msg *mockMessage) {
	t.Helper()
	if !msg.nackCalled {
		t.Error("Expected message to be Nack-ed, but it wasn't")
	}
	if msg.ackCalled {
		t.Error("Expected message to not be Ack-ed, but it was")
	}
}

// --- Tests ---

func TestCompressMessageHandler(t *testing.T) {
	jobID := uuid.New().String()
	originalFilePath := fmt.Sprintf("%s/original_notes.txt", jobID)
	original := []byte("this is a test for compression, this is only a test")

	t.Run("success", func(t *testing.T) {
		app, mockGCS := setupTestApp(t)
		mockGCS.SetObject(originalFilePath, original)
		mockMsg := newJobMessage(t, common.CompressMsgSchema{UID: jobID, OriginalFilePath: originalFilePath, Suffix: "txt"})

		app.compressMessageHandler(context.Background(), mockMsg)

		expectAck(t, mockMsg)
		content, ok := mockGCS.GetObjectContent(common.ContainerPath(jobID))
		if !ok {
			t.Fatalf("Expected compressed file %q to exist, but it doesn't", common.ContainerPath(jobID))
		}
		res, err := compression.Decompress(content)
		if err != nil {
			t.Fatalf("compressed object does not decompress: %v", err)
		}
		if !bytes.Equal(res.Data, original) || res.Suffix != "txt" {
			t.Errorf("Expected %q (txt), got %q (%s)", original, res.Data, res.Suffix)
		}

		status := readStatus(t, mockGCS, jobID)
		if status.State != common.JobDone || status.OutputPath != common.ContainerPath(jobID) {
			t.Errorf("unexpected status %+v", status)
		}
	})

	t.Run("degenerate input is reported", func(t *testing.T) {
		app, mockGCS := setupTestApp(t)
		mockGCS.SetObject(originalFilePath, bytes.Repeat([]byte("z"), 64))
		mockMsg := newJobMessage(t, common.CompressMsgSchema{UID: jobID, OriginalFilePath: originalFilePath, Suffix: "txt"})

		app.compressMessageHandler(context.Background(), mockMsg)

		expectAck(t, mockMsg)
		if _, ok := mockGCS.GetObjectContent(common.ContainerPath(jobID)); ok {
			t.Error("Expected no compressed file for a rejected input")
		}
		status := readStatus(t, mockGCS, jobID)
		if status.State != common.JobFailed || status.ErrorKind != "DegenerateInput" {
			t.Errorf("unexpected status %+v", status)
		}
	})

	t.Run("interrupted upload leaves nothing behind", func(t *testing.T) {
		app, mockGCS := setupTestApp(t)
		mockGCS.SetObject(originalFilePath, original)
		mockGCS.failClose = true
		mockMsg := newJobMessage(t, common.CompressMsgSchema{UID: jobID, OriginalFilePath: originalFilePath, Suffix: "txt"})

		app.compressMessageHandler(context.Background(), mockMsg)

		expectNack(t, mockMsg)
		if _, ok := mockGCS.GetObjectContent(common.ContainerPath(jobID)); ok {
			t.Error("Expected partial compressed file to be deleted")
		}
	})

	testCases := []struct {
		name  string
		setup func(t *testing.T) (*Application, *mockMessage)
	}{
		{
			name: "bad Pub/Sub message",
			setup: func(t *testing.T) (*Application, *mockMessage) {
				app, _ := setupTestApp(t)
				return app, &mockMessage{data: []byte("not json")}
			},
		},
		{
			name: "original file does not exist",
			setup: func(t *testing.T) (*Application, *mockMessage) {
				app, _ := setupTestApp(t)
				return app, newJobMessage(t, common.CompressMsgSchema{UID: jobID, OriginalFilePath: "missing.txt", Suffix: "txt"})
			},
		},
		{
			name: "storage read fails",
			setup: func(t *testing.T) (*Application, *mockMessage) {
				app, mockGCS := setupTestApp(t)
				mockGCS.failRead = true
				return app, newJobMessage(t, common.CompressMsgSchema{UID: jobID, OriginalFilePath: originalFilePath, Suffix: "txt"})
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockMsg := tc.setup(t)
			app.compressMessageHandler(context.Background(), mockMsg)
			expectNack(t, mockMsg)
		})
	}
}

func TestDecompressMessageHandler(t *testing.T) {
	jobID := uuid.New().String()
	containerPath := fmt.Sprintf("%s/archive.fycat", jobID)
	original := []byte("decompression test with enough repetition repetition repetition")

	container, err := compression.Compress(original, "md")
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}

	t.Run("success", func(t *testing.T) {
		app, mockGCS := setupTestApp(t)
		mockGCS.SetObject(containerPath, container)
		mockMsg := newJobMessage(t, common.DecompressMsgSchema{UID: jobID, ContainerPath: containerPath})

		app.decompressMessageHandler(context.Background(), mockMsg)

		expectAck(t, mockMsg)
		expectedFinalPath := common.RestoredPath(jobID, "md")
		content, ok := mockGCS.GetObjectContent(expectedFinalPath)
		if !ok {
			t.Fatalf("Expected restored file %q to exist, but it doesn't", expectedFinalPath)
		}
		if !bytes.Equal(content, original) {
			t.Errorf("Expected decompressed content to be %q, but got %q", original, content)
		}
		status := readStatus(t, mockGCS, jobID)
		if status.State != common.JobDone || status.Suffix != "md" || status.OutputPath != expectedFinalPath {
			t.Errorf("unexpected status %+v", status)
		}
	})

	t.Run("corrupted payload is reported", func(t *testing.T) {
		app, mockGCS := setupTestApp(t)
		corrupted := append([]byte{}, container...)
		// last payload byte sits right before the "END" field and the size
		corrupted[len(corrupted)-8-7-1] ^= 0x01
		mockGCS.SetObject(containerPath, corrupted)
		mockMsg := newJobMessage(t, common.DecompressMsgSchema{UID: jobID, ContainerPath: containerPath})

		app.decompressMessageHandler(context.Background(), mockMsg)

		expectAck(t, mockMsg)
		if _, ok := mockGCS.GetObjectContent(common.RestoredPath(jobID, "md")); ok {
			t.Error("Expected no restored file for a corrupted container")
		}
		status := readStatus(t, mockGCS, jobID)
		if status.State != common.JobFailed || status.ErrorKind != "ChecksumMismatch" {
			t.Errorf("unexpected status %+v", status)
		}
	})

	// --- Test: Failure Cases ---
	testCases := []struct {
		name  string
		setup func(t *testing.T) (*Application, *mockMessage)
	}{
		{
			"bad pubsub message",
			func(t *testing.T) (*Application, *mockMessage) {
				app, _ := setupTestApp(t)
				return app, &mockMessage{data: []byte("not json")}
			},
		},
		{
			"compressed file does not exist",
			func(t *testing.T) (*Application, *mockMessage) {
				app, _ := setupTestApp(t)
				return app, newJobMessage(t, common.DecompressMsgSchema{UID: jobID, ContainerPath: "missing.fycat"})
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app, mockMsg := tc.setup(t)
			app.decompressMessageHandler(context.Background(), mockMsg)
			expectNack(t, mockMsg)
		})
	}
}

func TestUploadDiscardsAfterDeadline(t *testing.T) {
	app, mockGCS := setupTestApp(t)
	mockGCS.failClose = true

	ctx, cancel := context.WithTimeout(*app.CTX, time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	object := common.ContainerPath(uuid.NewString())
	if err := app.upload(ctx, object, []byte("partial")); err == nil {
		t.Fatal("Expected upload to fail")
	}

	if _, ok := mockGCS.GetObjectContent(object); ok {
		t.Errorf("Expected partial object %s to be deleted", object)
	}
	if len(mockGCS.deleteCtxErrs) != 1 || mockGCS.deleteCtxErrs[0] != nil {
		t.Errorf("Expected one delete with a live context, got %v", mockGCS.deleteCtxErrs)
	}
}
