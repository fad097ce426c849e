package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ntdkhiem/fycat/internal/common"
)

// uploadFile posts path to the manager endpoint and returns the job ID.
func uploadFile(client *http.Client, serverURL, endpoint, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish form: %w", err)
	}

	resp, err := client.Post(serverURL+endpoint, writer.FormDataContentType(), body)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	var result map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("server rejected file (status %d, kind %q): %s", resp.StatusCode, result["kind"], result["error"])
	}
	return result["job_id"], nil
}

// waitForJob polls /status until the worker has recorded an outcome.
func waitForJob(client *http.Client, serverURL, jobID string, interval, timeout time.Duration) (*common.JobStatus, error) {
	deadline := time.Now().Add(timeout)
	for {
		resp, err := client.Get(serverURL + "/status?job_id=" + jobID)
		if err != nil {
			return nil, fmt.Errorf("poll status: %w", err)
		}
		if resp.StatusCode == http.StatusOK {
			var status common.JobStatus
			err := json.NewDecoder(resp.Body).Decode(&status)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("decode status: %w", err)
			}
			return &status, nil
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			return nil, fmt.Errorf("poll status: unexpected status %d", resp.StatusCode)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("job %s did not finish within %s", jobID, timeout)
		}
		time.Sleep(interval)
	}
}

func main() {
	decompressFlag := flag.Bool("decompress", false, "upload a .fycat container for decompressing")
	serverFlag := flag.String("server", common.EnvString("FYCAT_SERVER", "http://127.0.0.1:8081"), "manager base URL")
	waitFlag := flag.Duration("wait", 0, "poll the job status for up to this long")
	flag.Parse()

	common.SetupLogger()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: client [-decompress] [-server url] [-wait 30s] <file>")
		os.Exit(2)
	}

	endpoint := "/compress"
	if *decompressFlag {
		endpoint = "/decompress"
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	jobID, err := uploadFile(client, *serverFlag, endpoint, flag.Arg(0))
	if err != nil {
		slog.Error("Failed to submit job", "error", err)
		os.Exit(1)
	}
	fmt.Println("job_id:", jobID)

	if *waitFlag <= 0 {
		return
	}
	status, err := waitForJob(client, *serverFlag, jobID, time.Second, *waitFlag)
	if err != nil {
		slog.Error("Failed to get job status", "job", jobID, "error", err)
		os.Exit(1)
	}
	if status.State != common.JobDone {
		fmt.Printf("job %s failed (%s): %s\n", jobID, status.ErrorKind, status.Error)
		os.Exit(1)
	}
	fmt.Printf("job %s done: %s\n", jobID, status.OutputPath)
}
