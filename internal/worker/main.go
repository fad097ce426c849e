package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"

	"github.com/ntdkhiem/fycat/compression"
	"github.com/ntdkhiem/fycat/internal/common"
)

const discardTimeout = 10 * time.Second

type Application struct {
	GCSClient  common.GCSClientInterface
	CTX        *context.Context
	Bucket     string
	GCSTimeout time.Duration
}

// download reads a whole object into memory.
func (app *Application) download(ctx context.Context, object string) ([]byte, error) {
	reader, err := app.GCSClient.NewObjectReader(ctx, app.Bucket, object)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", object, err)
	}
	return data, nil
}

// upload writes data to object. A failed upload is deleted so no partial
// object is left behind.
func (app *Application) upload(ctx context.Context, object string, data []byte) error {
	wc := app.GCSClient.NewObjectWriter(ctx, app.Bucket, object)
	if _, err := io.Copy(wc, bytes.NewReader(data)); err != nil {
		wc.Close()
		app.discard(object)
		return fmt.Errorf("write %s: %w", object, err)
	}
	if err := wc.Close(); err != nil {
		app.discard(object)
		return fmt.Errorf("close %s: %w", object, err)
	}
	return nil
}

// discard deletes object with its own deadline, since the upload's context
// may be the reason the upload failed.
func (app *Application) discard(object string) {
	ctx, cancel := context.WithTimeout(*app.CTX, discardTimeout)
	defer cancel()
	if err := app.GCSClient.DeleteObject(ctx, app.Bucket, object); err != nil && !common.IsNotExist(err) {
		slog.Warn("Failed to delete partial object", "object", object, "error", err)
	}
}

// finish records the job outcome. Codec failures are final, so the
// message is acked and the failure is reported through the status object;
// only a status that cannot be written asks for redelivery.
func (app *Application) finish(ctx context.Context, msg common.MessageInterface, status common.JobStatus) {
	statusBytes, err := json.Marshal(status)
	if err != nil {
		slog.Error("Failed to marshal job status", "job", status.UID, "error", err)
		msg.Nack()
		return
	}
	if err := app.upload(ctx, common.StatusPath(status.UID), statusBytes); err != nil {
		slog.Error("Failed to upload job status", "job", status.UID, "error", err)
		msg.Nack()
		return
	}
	msg.Ack()
	slog.Info("Completed processing job", "job", status.UID, "state", status.State)
}

func failedStatus(jobID string, err error) common.JobStatus {
	return common.JobStatus{
		UID:       jobID,
		State:     common.JobFailed,
		ErrorKind: compression.Kind(err),
		Error:     err.Error(),
	}
}

func (app *Application) compressMessageHandler(_ context.Context, msg common.MessageInterface) {
	var job common.CompressMsgSchema
	if err := json.Unmarshal(msg.GetData(), &job); err != nil || job.UID == "" {
		slog.Error("Failed to unmarshal body from job message", "error", err)
		msg.Nack()
		return
	}

	slog.Info("Received job", "job", job.UID)

	ctx, cancel := context.WithTimeout(*app.CTX, app.GCSTimeout)
	defer cancel()

	original, err := app.download(ctx, job.OriginalFilePath)
	if err != nil {
		slog.Error("Failed to download original file", "job", job.UID, "error", err)
		msg.Nack()
		return
	}
	slog.Debug("Downloaded original file", "job", job.UID, "size", len(original))

	container, err := compression.Compress(original, job.Suffix)
	if err != nil {
		slog.Error("Failed to compress data", "job", job.UID, "kind", compression.Kind(err), "error", err)
		app.finish(ctx, msg, failedStatus(job.UID, err))
		return
	}

	containerPath := common.ContainerPath(job.UID)
	if err := app.upload(ctx, containerPath, container); err != nil {
		slog.Error("Failed to upload compressed data to GCS", "job", job.UID, "error", err)
		msg.Nack()
		return
	}
	slog.Debug("Uploaded compressed data to GCS", "job", job.UID, "size", len(container))

	app.finish(ctx, msg, common.JobStatus{
		UID:        job.UID,
		State:      common.JobDone,
		OutputPath: containerPath,
		Suffix:     compression.TruncateSuffix(job.Suffix),
	})
}

func (app *Application) decompressMessageHandler(_ context.Context, msg common.MessageInterface) {
	var job common.DecompressMsgSchema
	if err := json.Unmarshal(msg.GetData(), &job); err != nil || job.UID == "" {
		slog.Error("Failed to unmarshal body from job message", "error", err)
		msg.Nack()
		return
	}

	slog.Info("Received job", "job", job.UID)

	ctx, cancel := context.WithTimeout(*app.CTX, app.GCSTimeout)
	defer cancel()

	container, err := app.download(ctx, job.ContainerPath)
	if err != nil {
		slog.Error("Failed to download compressed file", "job", job.UID, "error", err)
		msg.Nack()
		return
	}
	slog.Debug("Downloaded compressed file from GCS.", "job", job.UID)

	res, err := compression.Decompress(container)
	if err != nil {
		slog.Error("Failed to decompress data", "job", job.UID, "kind", compression.Kind(err), "error", err)
		app.finish(ctx, msg, failedStatus(job.UID, err))
		return
	}

	resultFilePath := common.RestoredPath(job.UID, res.Suffix)
	if err := app.upload(ctx, resultFilePath, res.Data); err != nil {
		slog.Error("Failed to upload final data to GCS", "job", job.UID, "error", err)
		msg.Nack()
		return
	}
	slog.Debug("Uploaded final data to GCS", "job", job.UID)

	app.finish(ctx, msg, common.JobStatus{
		UID:        job.UID,
		State:      common.JobDone,
		OutputPath: resultFilePath,
		Suffix:     res.Suffix,
	})
}

func main() {
	methodFlag := flag.Bool("decompress", false, "flag to indicate this instance is for decompressing.")
	flag.Parse()

	common.SetupLogger()

	// initialize GCP services
	projectID := os.Getenv("GCP_PROJECT_ID")
	subID := os.Getenv("PUBSUB_SUB_ID")
	bucket := os.Getenv("GCS_BUCKET")
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
		GCSClient:  &common.RealGCSClient{Client: GCSClient},
		CTX:        &ctx,
		Bucket:     bucket,
		GCSTimeout: common.EnvDuration("GCS_TIMEOUT", 50*time.Second),
	}

	sub := PUBSUBClient.Subscriber(subID)
	receiveFunc := func(ctx context.Context, msg *pubsub.Message) {
		wrappedMsg := &common.RealMessage{Msg: msg}
		if *methodFlag {
			app.decompressMessageHandler(ctx, wrappedMsg)
		} else {
			app.compressMessageHandler(ctx, wrappedMsg)
		}
	}

	if *methodFlag {
		slog.Info("Listening for a new decompressing message...")
	} else {
		slog.Info("Listening for a new compressing message...")
	}
	err = sub.Receive(ctx, receiveFunc)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Cannot process job", "error", err)
		return
	}
}
