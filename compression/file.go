package compression

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the file extension given to containers.
const Extension = ".fycat"

// SuffixOf returns the extension of path without its leading dot.
func SuffixOf(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// CompressFile compresses inPath into outPath. The suffix recorded in the
// container is inPath's extension.
func CompressFile(inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("%w: cannot open input file: %v", ErrIO, err)
	}

	container, err := Compress(data, SuffixOf(inPath))
	if err != nil {
		return err
	}
	if err := writeFileAtomic(outPath, container); err != nil {
		return err
	}

	slog.Debug("Compressed file", "input", inPath, "output", outPath,
		"input_size", len(data), "output_size", len(container),
		"ratio", float64(len(container))/float64(len(data)))
	return nil
}

// DecompressFile restores the container at inPath. The output is written
// to outBase with the recorded suffix appended, and that path is returned.
func DecompressFile(inPath, outBase string) (string, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return "", fmt.Errorf("%w: cannot open input file: %v", ErrIO, err)
	}

	res, err := Decompress(data)
	if err != nil {
		return "", err
	}
	outPath := outBase + "." + res.Suffix
	if err := writeFileAtomic(outPath, res.Data); err != nil {
		return "", err
	}

	slog.Debug("Decompressed file", "input", inPath, "output", outPath, "output_size", len(res.Data))
	return outPath, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so a failed write never leaves a truncated file behind.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: cannot open output file: %v", ErrIO, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("%w: output file write error: %v", ErrIO, err)
	}
	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("%w: output file write error: %v", ErrIO, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: output file write error: %v", ErrIO, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: cannot move output into place: %v", ErrIO, err)
	}
	return nil
}
