package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/ntdkhiem/fycat/compression"
	"github.com/ntdkhiem/fycat/internal/common"
)

type Application struct {
	GCSClient         common.GCSClientInterface
	PUBSUBClient      common.PubSubClientInterface
	CTX               *context.Context
	Bucket            string
	CompressTopicID   string
	DecompressTopicID string
	MaxUploadSize     int64
	GCSTimeout        time.Duration
}

// formFile reads the "file" part of a size-limited multipart request and
// writes the matching error response when it cannot.
func (app *Application) formFile(w http.ResponseWriter, r *http.Request) (io.ReadCloser, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Failed to get file from form", "error", err)
		// This error is triggered when MaxBytesReader limit is exceeded
		if strings.Contains(err.Error(), "request body too large") {
			common.WriteError(w, "File exceeds size limit", http.StatusRequestEntityTooLarge)
			return nil, "", false
		}
		common.WriteError(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return nil, "", false
	}
	return file, header.Filename, true
}

func (app *Application) publish(jobID, topicID string, message any) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal MQ message: %w", err)
	}
	// a fresh publisher per job avoids sending messages in batch
	returnedMessageID, err := app.PUBSUBClient.PublishMessage(*app.CTX, topicID, &pubsub.Message{
		Data: messageBytes,
	})
	if err != nil {
		return fmt.Errorf("send MQ message: %w", err)
	}
	slog.Debug("Sent message to Pub/Sub", "job", jobID, "server_generated_message_id", returnedMessageID)
	return nil
}

func (app *Application) compressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		common.WriteError(w, "Only POST method allowed", http.StatusMethodNotAllowed)
		return
	}

	file, filename, ok := app.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	suffix := compression.SuffixOf(filename)
	if suffix == "" {
		common.WriteKindError(w, "Input file has no suffix", compression.Kind(compression.ErrMissingSuffix), http.StatusBadRequest)
		return
	}

	slog.Info("Processing a request for compressing")

	jobID := uuid.New().String()
	slog.Debug("Creating new job", "job", jobID, "file", filename)

	ctx, cancel := context.WithTimeout(*app.CTX, app.GCSTimeout)
	defer cancel()

	// tally byte frequencies while the upload streams to GCS
	freq := &compression.FrequencyTable{}
	originalFilePath := fmt.Sprintf("%s/original_%s", jobID, filename)
	wc := app.GCSClient.NewObjectWriter(ctx, app.Bucket, originalFilePath)
	if _, err := io.Copy(wc, io.TeeReader(file, freq)); err != nil {
		slog.Error("Failed to stream data to GCS", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := wc.Close(); err != nil {
		slog.Error("Failed to close data stream to GCS", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	slog.Debug(fmt.Sprintf("Uploaded %s to GCS", filename), "job", jobID, "size", freq.Total())

	var rejected error
	status := http.StatusBadRequest
	switch {
	case freq.Total() == 0:
		rejected = compression.ErrEmptyInput
	case freq.Distinct() == 1:
		rejected = compression.ErrDegenerateInput
		status = http.StatusUnprocessableEntity
	}
	if rejected != nil {
		if err := app.GCSClient.DeleteObject(ctx, app.Bucket, originalFilePath); err != nil {
			slog.Warn("Failed to delete rejected upload", "job", jobID, "error", err)
		}
		common.WriteKindError(w, "Cannot compress file: "+rejected.Error(), compression.Kind(rejected), status)
		return
	}

	message := common.CompressMsgSchema{
		UID:              jobID,
		OriginalFilePath: originalFilePath,
		Suffix:           suffix,
	}
	if err := app.publish(jobID, app.CompressTopicID, message); err != nil {
		slog.Error("Failed to publish job", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// Send 202 Accepted Code
	common.WriteJSON(w, map[string]string{"job_id": jobID}, http.StatusAccepted)
}

func (app *Application) decompressHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		common.WriteError(w, "Only POST method allowed", http.StatusMethodNotAllowed)
		return
	}

	file, filename, ok := app.formFile(w, r)
	if !ok {
		return
	}
	defer file.Close()

	if !strings.HasSuffix(filename, compression.Extension) {
		common.WriteError(w, "Wrong file format", http.StatusBadRequest)
		return
	}

	slog.Info("Processing a request for decompressing")

	jobID := uuid.New().String()
	slog.Debug("Creating new job", "job", jobID, "file", filename)

	ctx, cancel := context.WithTimeout(*app.CTX, app.GCSTimeout)
	defer cancel()

	containerPath := fmt.Sprintf("%s/%s", jobID, filename)
	wc := app.GCSClient.NewObjectWriter(ctx, app.Bucket, containerPath)
	if _, err := io.Copy(wc, file); err != nil {
		slog.Error("Failed to stream compressed data to GCS", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := wc.Close(); err != nil {
		slog.Error("Failed to close data stream to GCS", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	slog.Debug(fmt.Sprintf("Uploaded %s to GCS", filename), "job", jobID)

	message := common.DecompressMsgSchema{
		UID:           jobID,
		ContainerPath: containerPath,
	}
	if err := app.publish(jobID, app.DecompressTopicID, message); err != nil {
		slog.Error("Failed to publish job", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	common.WriteJSON(w, map[string]string{"job_id": jobID}, http.StatusAccepted)
}

func (app *Application) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		common.WriteError(w, "Only GET method allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		common.WriteError(w, "Invalid job_id", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(*app.CTX, app.GCSTimeout)
	defer cancel()

	reader, err := app.GCSClient.NewObjectReader(ctx, app.Bucket, common.StatusPath(jobID))
	if err != nil {
		if common.IsNotExist(err) {
			common.WriteError(w, "Job not finished or unknown", http.StatusNotFound)
			return
		}
		slog.Error("Failed to read job status", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	var status common.JobStatus
	if err := json.NewDecoder(reader).Decode(&status); err != nil {
		slog.Error("Failed to decode job status", "job", jobID, "error", err)
		common.WriteError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	common.WriteJSON(w, status, http.StatusOK)
}

func main() {
	common.SetupLogger()

	// initialize GCP services
	projectID := os.Getenv("GCP_PROJECT_ID")
	compressTopicID := os.Getenv("PUBSUB_COMPRESS_TOPIC_ID")
	decompressTopicID := os.Getenv("PUBSUB_DECOMPRESS_TOPIC_ID")
	bucket := os.Getenv("GCS_BUCKET")
	addr := common.EnvString("LISTEN_ADDR", ":8081")
	ctx := context.Background()

	GCSClient, err := storage.NewClient(ctx)
	if err != nil {
		slog.Error("Cannot create new client for GCS", "error", err)
		return
	}
	defer GCSClient.Close()
	slog.Debug("Initialized a GCS client.")

	PUBSUBClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		slog.Error("Cannot create new client for Pub/Sub", "error", err)
		return
	}
	defer PUBSUBClient.Close()
	slog.Debug("Initialized a Pub/Sub client.")

	app := Application{
		GCSClient:         &common.RealGCSClient{Client: GCSClient},
		PUBSUBClient:      &common.RealPubSubClient{Client: PUBSUBClient},
		CTX:               &ctx,
		Bucket:            bucket,
		CompressTopicID:   compressTopicID,
		DecompressTopicID: decompressTopicID,
		MaxUploadSize:     common.EnvInt64("MAX_UPLOAD_SIZE", 1<<30), // 1GB
		GCSTimeout:        common.EnvDuration("GCS_TIMEOUT", 50*time.Second),
	}

	http.HandleFunc("/compress", app.compressHandler)
	http.HandleFunc("/decompress", app.decompressHandler)
	http.HandleFunc("/status", app.statusHandler)
	slog.Info("Listening on " + addr + "...")
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("Server stopped", "error", err)
	}
}
