package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/nocaptcha/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// LoadRecordings reads a JSON array of recordings from path.
func LoadRecordings(path string) ([]Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recordings: %w", err)
	}
	var recs []Recording
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode recordings %s: %w", path, err)
	}
	return recs, nil
}

// SaveRecordings writes recordings to path as a JSON array, one recording
// per line.
func SaveRecordings(ctx context.Context, path string, recs []Recording) error {
	if len(recs) == 0 {
		return fmt.Errorf("no recordings to save")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	if _, err := file.WriteString("[\n"); err != nil {
		return fmt.Errorf("failed to write opening bracket: %w", err)
	}
	for i, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal recording %d: %w", i, err)
		}
		if _, err := file.Write(data); err != nil {
			return fmt.Errorf("failed to write recording %d: %w", i, err)
		}
		if i < len(recs)-1 {
			if _, err := file.WriteString(","); err != nil {
				return fmt.Errorf("failed to write comma: %w", err)
			}
		}
		if _, err := file.WriteString("\n"); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}
	if _, err := file.WriteString("]\n"); err != nil {
		return fmt.Errorf("failed to write closing bracket: %w", err)
	}

	logger.Get().Info(ctx, "recordings saved to file", logger.String("filename", path), logger.Int("count", len(recs)))
	return nil
}
