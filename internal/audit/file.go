package audit

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// File appends records to a JSONL file.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

// Append writes rec as one line. The directory is created on demand and the
// line goes out in a single O_APPEND write.
func (f *File) Append(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Symbol == "" {
		rec.Symbol = "multi"
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}
	line, err := jsonAPI.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	line = append(line, '\n')

	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer fh.Close()
	if _, err := fh.Write(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// ReadLines returns the non-blank lines of the log.
func ReadLines(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var lines []string
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return lines, nil
}

// Tail returns the last n non-blank lines.
func Tail(path string, n int) ([]string, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Load parses every well-formed record, skipping the rest, and returns them
// sorted by timestamp. ErrEmpty is returned when nothing parsed.
func Load(path string) ([]Record, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(lines))
	for _, line := range lines {
		var rec Record
		if err := jsonAPI.UnmarshalFromString(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].TS < records[j].TS })
	return records, nil
}

// Since keeps records at or after cutoff (epoch seconds).
func Since(records []Record, cutoff float64) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.TS >= cutoff {
			out = append(out, r)
		}
	}
	return out
}
