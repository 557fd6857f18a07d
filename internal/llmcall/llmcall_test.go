package llmcall

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrPrayat/DA235X/internal/providers"
)

func TestFromChatResult(t *testing.T) {
	if FromChatResult(nil, RecordOptions{}) != nil {
		t.Error("nil result should give nil call")
	}

	temp := 0.0
	call := FromChatResult(&providers.ChatResult{
		Content:          "yes",
		PromptTokens:     900,
		CompletionTokens: 1,
		CachedTokens:     512,
		ExecutionTime:    1500 * time.Millisecond,
		Provider:         "openai",
		ModelUsed:        "gpt-4o",
		Success:          false,
		ErrorMessage:     "boom",
	}, RecordOptions{DocumentID: "A1", Page: 3, PromptKey: "pipeline.appendix.user", Temperature: &temp})

	if call.ID == "" {
		t.Error("ID not set")
	}
	if call.LatencyMs != 1500 || call.InputTokens != 900 || call.CachedTokens != 512 {
		t.Errorf("call = %+v", call)
	}
	if call.Error != "boom" || call.Page != 3 || call.DocumentID != "A1" {
		t.Errorf("context fields = %+v", call)
	}
}

func TestRecorderAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "llm_calls.jsonl")
	r := NewRecorder(path, nil)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			doc := "A"
			if page%2 == 0 {
				doc = "B"
			}
			r.Record(&providers.ChatResult{Provider: "mock", Success: true},
				RecordOptions{DocumentID: doc, Page: page, PromptKey: "pipeline.extract.user"})
		}(i)
	}
	wg.Wait()
	r.Record(&providers.ChatResult{Provider: "mock", Success: false, ErrorMessage: "x"},
		RecordOptions{DocumentID: "A", PromptKey: "pipeline.synthesize.user"})

	all, err := List(path, QueryFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 11 {
		t.Fatalf("got %d calls, want 11", len(all))
	}

	onlyB, _ := List(path, QueryFilter{DocumentID: "B"})
	if len(onlyB) != 5 {
		t.Errorf("DocumentID filter = %d calls, want 5", len(onlyB))
	}

	failed := false
	failures, _ := List(path, QueryFilter{Success: &failed})
	if len(failures) != 1 || failures[0].PromptKey != "pipeline.synthesize.user" {
		t.Errorf("failures = %+v", failures)
	}

	page, _ := List(path, QueryFilter{Offset: 2, Limit: 3})
	if len(page) != 3 {
		t.Errorf("Limit/Offset returned %d calls", len(page))
	}

	counts, err := CountByPromptKey(path, QueryFilter{DocumentID: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if counts["pipeline.extract.user"] != 5 || counts["pipeline.synthesize.user"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestListMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	calls, err := List(filepath.Join(dir, "absent.jsonl"), QueryFilter{})
	if err != nil || calls != nil {
		t.Errorf("missing file: calls=%v err=%v", calls, err)
	}

	path := filepath.Join(dir, "trace.jsonl")
	os.WriteFile(path, []byte("{not json}\n{\"prompt_key\":\"k\",\"success\":true}\n"), 0o644)
	calls, err = List(path, QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].PromptKey != "k" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	r.Record(&providers.ChatResult{}, RecordOptions{})
	if r.Path() != "" {
		t.Error("nil recorder should have empty path")
	}
}
