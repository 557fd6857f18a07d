package llmcall

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// QueryFilter specifies filters for listing calls.
type QueryFilter struct {
	RunID      string
	DocumentID string
	PromptKey  string
	Provider   string
	Model      string
	After      *time.Time
	Before     *time.Time
	Success    *bool
	Limit      int
	Offset     int
}

func (f QueryFilter) match(c *Call) bool {
	switch {
	case f.RunID != "" && c.RunID != f.RunID:
		return false
	case f.DocumentID != "" && c.DocumentID != f.DocumentID:
		return false
	case f.PromptKey != "" && c.PromptKey != f.PromptKey:
		return false
	case f.Provider != "" && c.Provider != f.Provider:
		return false
	case f.Model != "" && c.Model != f.Model:
		return false
	case f.Success != nil && c.Success != *f.Success:
		return false
	case f.After != nil && !c.Timestamp.After(*f.After):
		return false
	case f.Before != nil && !c.Timestamp.Before(*f.Before):
		return false
	}
	return true
}

// List reads the trace at path and returns matching calls in file order.
// A missing file yields no calls. Lines that fail to decode are skipped.
func List(path string, filter QueryFilter) ([]Call, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	var calls []Call
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		var c Call
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			continue
		}
		if !filter.match(&c) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		calls = append(calls, c)
		if filter.Limit > 0 && len(calls) >= filter.Limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return calls, nil
}

// CountByPromptKey returns call counts grouped by prompt key.
func CountByPromptKey(path string, filter QueryFilter) (map[string]int, error) {
	filter.Limit, filter.Offset = 0, 0
	calls, err := List(path, filter)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, c := range calls {
		counts[c.PromptKey]++
	}
	return counts, nil
}
