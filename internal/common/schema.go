package common

import (
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
)

// Must follow this schema to be accepted by Pub/Sub
type CompressMsgSchema struct {
	UID              string `json:"UID"`
	OriginalFilePath string `json:"OriginalFilePath"`
	Suffix           string `json:"Suffix"`
}

// Must follow this schema to be accepted by Pub/Sub
type DecompressMsgSchema struct {
	UID           string `json:"UID"`
	ContainerPath string `json:"ContainerPath"`
}

const (
	JobDone   = "done"
	JobFailed = "failed"
)

// JobStatus is written by the worker once a job finishes, successfully or
// not, and served back by the manager.
type JobStatus struct {
	UID        string `json:"job_id"`
	State      string `json:"state"`
	OutputPath string `json:"output_path,omitempty"`
	Suffix     string `json:"suffix,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

func StatusPath(jobID string) string {
	return fmt.Sprintf("%s/status.json", jobID)
}

func ContainerPath(jobID string) string {
	return fmt.Sprintf("%s/compressed.fycat", jobID)
}

func RestoredPath(jobID, suffix string) string {
	return fmt.Sprintf("%s/file.%s", jobID, suffix)
}

// IsNotExist reports whether err means the object is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist)
}
