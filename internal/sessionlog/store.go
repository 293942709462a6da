package sessionlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"phobos.org.uk/foreman/internal/sessionid"
)

// ErrNotFound is returned by Read when no log exists for the id.
var ErrNotFound = errors.New("session log does not exist")

// MaxLogFiles is the number of session logs kept by Prune.
const MaxLogFiles = 200

// Summary describes one session log file.
type Summary struct {
	LogID     string    `json:"log_id"`
	SizeBytes int64     `json:"size_bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListOptions controls pagination for List.
type ListOptions struct {
	Page  int // 1-indexed page number
	Limit int // Items per page (max 100)
}

// ListResult contains paginated session log summaries.
type ListResult struct {
	Logs       []Summary `json:"logs"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
}

// Read returns every parseable record in the log for logID.
// Malformed lines, e.g. a torn final write, are skipped.
func Read(dir, logID string) ([]Record, error) {
	if !sessionid.IsSafe(logID) {
		return nil, fmt.Errorf("invalid log id %q", logID)
	}
	f, err := os.Open(Path(dir, logID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session log %s not found: %w", logID, ErrNotFound)
		}
		return nil, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("reading session log: %w", err)
	}
	return records, nil
}

// List returns session log summaries, most recently updated first.
func List(dir string, opts ListOptions) (ListResult, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}

	all, err := scan(dir)
	if err != nil {
		return ListResult{}, err
	}

	total := len(all)
	totalPages := (total + opts.Limit - 1) / opts.Limit

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return ListResult{
		Logs:       append([]Summary{}, all[start:end]...),
		Page:       opts.Page,
		Limit:      opts.Limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// Prune deletes the oldest logs beyond keep and returns how many were removed.
func Prune(dir string, keep int) (int, error) {
	all, err := scan(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := keep; i < len(all); i++ {
		if err := os.Remove(Path(dir, all[i].LogID)); err == nil {
			removed++
		}
	}
	return removed, nil
}

func scan(dir string) ([]Summary, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing session logs: %w", err)
	}

	summaries := make([]Summary, 0, len(files))
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			continue // Removed between glob and stat
		}
		summaries = append(summaries, Summary{
			LogID:     strings.TrimSuffix(filepath.Base(path), ".jsonl"),
			SizeBytes: info.Size(),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}
