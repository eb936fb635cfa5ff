package content

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

type stubCompleter struct {
	reply    string
	err      error
	system   string
	prompt   string
	jsonMode bool
}

func (s *stubCompleter) Complete(_ context.Context, system, prompt string, jsonMode bool) (string, error) {
	s.system, s.prompt, s.jsonMode = system, prompt, jsonMode
	return s.reply, s.err
}

func TestParseSubtaskNames(t *testing.T) {
	text := "Here are the subtasks:\n1. Draft copy\n- Design banners\n\n* \"Book media\"\n2) QA links\n[ ] Report"
	got := ParseSubtaskNames(text, 3)
	want := []string{"Draft copy", "Design banners", "Book media"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("name %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if all := ParseSubtaskNames(text, 0); len(all) != 5 {
		t.Fatalf("expected 5 names without a limit, got %v", all)
	}
}

func TestGenerateSubtaskNames(t *testing.T) {
	stub := &stubCompleter{reply: "- Draft copy\n- Design banners\n- Book media"}
	names, err := NewGenerator(stub).GenerateSubtaskNames(context.Background(), "Launch the fall campaign", 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(names) != 2 || names[1] != "Design banners" {
		t.Fatalf("unexpected names %v", names)
	}
	if !strings.Contains(stub.prompt, "exactly 2") {
		t.Fatalf("prompt does not ask for the count: %q", stub.prompt)
	}

	if names, err := NewGenerator(stub).GenerateSubtaskNames(context.Background(), "x", 0); err != nil || names != nil {
		t.Fatalf("expected nothing for zero count, got %v %v", names, err)
	}
	stub.reply = "\n\n"
	if _, err := NewGenerator(stub).GenerateSubtaskNames(context.Background(), "x", 2); err == nil {
		t.Fatal("expected error for empty completion")
	}
}

func TestGenerateUpdate(t *testing.T) {
	stub := &stubCompleter{reply: "Kick-off is Monday."}
	got, err := NewGenerator(stub).GenerateUpdate(context.Background(), "fall campaign")
	if err != nil || got != "Kick-off is Monday." {
		t.Fatalf("unexpected update %q %v", got, err)
	}
	if _, err := NewGenerator(stub).GenerateUpdate(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty topic")
	}
	stub.err = errors.New("rate limited")
	if _, err := NewGenerator(stub).GenerateUpdate(context.Background(), "x"); err == nil {
		t.Fatal("expected completer error")
	}
}

func TestParseIntent(t *testing.T) {
	in, err := ParseIntent("```json\n{\"intent\":\"create_task\",\"entities\":{\"taskName\":\"Launch\",\"subtaskCount\":3}}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	task, ok := in.(domain.CreateTaskIntent)
	if !ok || task.TaskName != "Launch" || task.SubtaskCount != 3 {
		t.Fatalf("unexpected intent %#v", in)
	}

	if _, err := ParseIntent(`{"intent":"none"}`); !errors.Is(err, ErrNoIntent) {
		t.Fatalf("expected ErrNoIntent, got %v", err)
	}
	if _, err := ParseIntent(`not json`); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestParseItemIntents(t *testing.T) {
	in, err := ParseIntent(`{"intent":"set_status","entities":{"itemName":"Q3 Media Plan","status":"Done"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st, ok := in.(domain.SetStatusIntent); !ok || st.ItemName != "Q3 Media Plan" || st.Status != "Done" {
		t.Fatalf("unexpected intent %#v", in)
	}

	in, err = ParseIntent(`{"intent":"search_tasks","entities":{"query":"media"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q, ok := in.(domain.SearchTasksIntent); !ok || q.Query != "media" {
		t.Fatalf("unexpected intent %#v", in)
	}

	in, err = ParseIntent(`{"intent":"list_boards"}`)
	if err != nil || in.Kind() != domain.IntentListBoards {
		t.Fatalf("unexpected list intent %#v %v", in, err)
	}
	if !strings.Contains(extractSystem, `"add_update"`) {
		t.Fatal("prompt should offer add_update")
	}
}

func TestExtractIntentUsesJSONMode(t *testing.T) {
	stub := &stubCompleter{reply: `{"intent":"workload_report","entities":{"groupName":"operations"}}`}
	in, err := NewExtractor(stub).ExtractIntent(context.Background(), "who is overloaded in operations?")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if in.Kind() != domain.IntentWorkloadReport || !stub.jsonMode {
		t.Fatalf("unexpected intent %#v json=%v", in, stub.jsonMode)
	}
}

func TestOpenAICompleter(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"  hello  "},"finish_reason":"stop"}],"usage":{"total_tokens":7}}`))
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	c := NewOpenAI(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "m", Logger: logger})
	out, err := c.Complete(context.Background(), "sys", "hi", true)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out != "hello" {
		t.Fatalf("unexpected output %q", out)
	}
	if gotPath != "/v1/chat/completions" || gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected request %s %s", gotPath, gotAuth)
	}
	if !strings.Contains(gotBody, `"json_object"`) {
		t.Fatalf("expected json response format in %s", gotBody)
	}
}
