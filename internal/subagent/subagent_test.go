package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type fakeRunner struct {
	mu      sync.Mutex
	stdout  string
	err     error
	missing bool
	calls   [][]string
	inputs  []string
}

func (f *fakeRunner) Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return []byte(f.stdout), f.err
}

func (f *fakeRunner) RunShell(ctx context.Context, workDir, command string) ([]byte, error) {
	return f.Run(ctx, workDir, "sh", "-c", command)
}

func (f *fakeRunner) RunWithInput(ctx context.Context, workDir, input, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	return f.Run(ctx, workDir, name, args...)
}

func (f *fakeRunner) LookPath(name string) bool {
	return !f.missing
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendCLI, false},
		{"cli", BackendCLI, false},
		{"API", BackendAPI, false},
		{" bedrock ", BackendBedrock, false},
		{"openai", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCLIExecutor_Success(t *testing.T) {
	runner := &fakeRunner{
		stdout: `{"type":"result","subtype":"success","is_error":false,"result":"implemented cache","usage":{"input_tokens":120,"output_tokens":30}}`,
	}
	exe := NewCLIExecutor(runner, "", "sonnet")

	resp, err := exe.Execute(context.Background(), Request{
		Type:          "developer",
		Task:          "Build the cache",
		Context:       "You are a developer.",
		MaxIterations: 5,
		WorkDir:       t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success || resp.Result != "implemented cache" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Tokens == nil || *resp.Tokens != 150 {
		t.Errorf("Tokens = %v, want 150", resp.Tokens)
	}

	if len(runner.inputs) != 1 || runner.inputs[0] != "Build the cache" {
		t.Errorf("prompt not fed on stdin: %v", runner.inputs)
	}
	args := strings.Join(runner.calls[0], " ")
	for _, want := range []string{"claude", "--max-turns 5", "--model sonnet", "--output-format json"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestCLIExecutor_ReportsFailure(t *testing.T) {
	runner := &fakeRunner{
		stdout: "warming up\n" + `{"type":"result","subtype":"error_max_turns","is_error":false,"result":""}`,
	}
	resp, err := NewCLIExecutor(runner, "claude", "").Execute(context.Background(), Request{Task: "x"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("max-turns result should not be successful")
	}
	if resp.Tokens != nil {
		t.Errorf("Tokens should be nil without usage, got %d", *resp.Tokens)
	}
}

func TestCLIExecutor_Errors(t *testing.T) {
	if _, err := NewCLIExecutor(&fakeRunner{missing: true}, "", "").Execute(context.Background(), Request{}); err == nil {
		t.Error("expected error when CLI is missing")
	}
	if _, err := NewCLIExecutor(&fakeRunner{err: fmt.Errorf("exit 1")}, "", "").Execute(context.Background(), Request{}); err == nil {
		t.Error("expected error when CLI fails")
	}
	if _, err := NewCLIExecutor(&fakeRunner{stdout: "not json"}, "", "").Execute(context.Background(), Request{}); err == nil {
		t.Error("expected error for unparseable output")
	}
}

func TestToolExecutor_WriteReadEdit(t *testing.T) {
	dir := t.TempDir()
	tools := NewToolExecutor(dir, &fakeRunner{})
	ctx := context.Background()

	res := tools.Execute(ctx, "Write", json.RawMessage(`{"file_path":"pkg/cache.go","content":"package cache\nvar size = 1\n"}`))
	if res.IsError {
		t.Fatalf("Write failed: %s", res.Content)
	}
	if _, err := os.Stat(filepath.Join(dir, "pkg", "cache.go")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	res = tools.Execute(ctx, "Edit", json.RawMessage(`{"file_path":"pkg/cache.go","old_string":"size = 1","new_string":"size = 64"}`))
	if res.IsError {
		t.Fatalf("Edit failed: %s", res.Content)
	}

	res = tools.Execute(ctx, "Read", json.RawMessage(`{"file_path":"pkg/cache.go","offset":2,"limit":1}`))
	if res.IsError {
		t.Fatalf("Read failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, "2\tvar size = 64") {
		t.Errorf("Read content = %q", res.Content)
	}
}

func TestToolExecutor_Edit_NotUnique(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x x"), 0644); err != nil {
		t.Fatal(err)
	}
	tools := NewToolExecutor(dir, &fakeRunner{})

	res := tools.Execute(context.Background(), "Edit", json.RawMessage(`{"file_path":"a.txt","old_string":"x","new_string":"y"}`))
	if !res.IsError {
		t.Error("expected error for ambiguous edit")
	}
	res = tools.Execute(context.Background(), "Edit", json.RawMessage(`{"file_path":"a.txt","old_string":"x","new_string":"y","replace_all":true}`))
	if res.IsError || res.Content != "Replaced 2 occurrences" {
		t.Errorf("replace_all = %+v", res)
	}
}

func TestToolExecutor_RejectsEscape(t *testing.T) {
	tools := NewToolExecutor(t.TempDir(), &fakeRunner{})
	for _, tool := range []string{"Read", "Write"} {
		res := tools.Execute(context.Background(), tool, json.RawMessage(`{"file_path":"../../etc/passwd","content":""}`))
		if !res.IsError || !strings.Contains(res.Content, "outside the working directory") {
			t.Errorf("%s escaped working directory: %+v", tool, res)
		}
	}
}

func TestToolExecutor_GlobListDirBash(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"main.go", "sub/util.go", "README.md", ".git/config.go"} {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	runner := &fakeRunner{stdout: "ok"}
	tools := NewToolExecutor(dir, runner)
	ctx := context.Background()

	res := tools.Execute(ctx, "Glob", json.RawMessage(`{"pattern":"*.go"}`))
	if res.IsError {
		t.Fatalf("Glob failed: %s", res.Content)
	}
	got := strings.Split(res.Content, "\n")
	if len(got) != 2 {
		t.Errorf("Glob matched %v, want main.go and sub/util.go", got)
	}

	res = tools.Execute(ctx, "ListDir", json.RawMessage(`{"path":"."}`))
	if !strings.Contains(res.Content, "d sub/") || !strings.Contains(res.Content, "- main.go (1 bytes)") {
		t.Errorf("ListDir = %q", res.Content)
	}

	res = tools.Execute(ctx, "Bash", json.RawMessage(`{"command":"go test ./..."}`))
	if res.IsError || res.Content != "ok" {
		t.Errorf("Bash = %+v", res)
	}
	if last := runner.calls[len(runner.calls)-1]; strings.Join(last, " ") != "sh -c go test ./..." {
		t.Errorf("Bash ran %v", last)
	}

	if res := tools.Execute(ctx, "Grep", json.RawMessage(`{}`)); !res.IsError {
		t.Error("unknown tool should fail")
	}
}

// fakeMessagesAPI serves scripted Messages API responses in order.
func fakeMessagesAPI(t *testing.T, responses ...string) (*httptest.Server, *int) {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		idx := calls
		calls++
		mu.Unlock()
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, responses[idx])
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

const toolUseResponse = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
"content":[{"type":"text","text":"Writing the file."},{"type":"tool_use","id":"toolu_1","name":"Write","input":{"file_path":"out.txt","content":"hello"}}],
"stop_reason":"tool_use","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":5}}`

const endTurnResponse = `{"id":"msg_2","type":"message","role":"assistant","model":"claude-sonnet-4-20250514",
"content":[{"type":"text","text":"Done."}],
"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":20,"output_tokens":7}}`

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), ClientConfig{APIKey: "test-key", BaseURL: url + "/"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestAPIExecutor_ToolLoop(t *testing.T) {
	srv, calls := fakeMessagesAPI(t, toolUseResponse, endTurnResponse)
	client := newTestClient(t, srv.URL)
	dir := t.TempDir()

	resp, err := NewAPIExecutor(client, &fakeRunner{}, nil).Execute(context.Background(), Request{
		Type:          "developer",
		Task:          "write out.txt",
		MaxIterations: 5,
		WorkDir:       dir,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success || resp.Result != "Done." {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Tokens == nil || *resp.Tokens != 42 {
		t.Errorf("Tokens = %v, want 42", resp.Tokens)
	}
	if *calls != 2 {
		t.Errorf("API calls = %d, want 2", *calls)
	}
	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("tool did not write file: %q %v", data, err)
	}
}

func TestAPIExecutor_IterationBudget(t *testing.T) {
	srv, calls := fakeMessagesAPI(t, toolUseResponse)
	client := newTestClient(t, srv.URL)

	resp, err := NewAPIExecutor(client, &fakeRunner{}, nil).Execute(context.Background(), Request{
		Task:          "loop forever",
		MaxIterations: 3,
		WorkDir:       t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("exhausted budget should not succeed")
	}
	if *calls != 3 {
		t.Errorf("API calls = %d, want 3", *calls)
	}
}

func TestNewClient_NoAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewClient(context.Background(), ClientConfig{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	if got := translateModelForBedrock("claude-sonnet-4-20250514"); got != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("translate = %q", got)
	}
	if got := translateModelForBedrock("custom-model"); got != "custom-model" {
		t.Errorf("unknown model changed: %q", got)
	}
}

func TestToolDefinitions_MatchExecutor(t *testing.T) {
	e := NewToolExecutor(t.TempDir(), &fakeRunner{})
	defs := ToolDefinitions()
	if len(defs) != len(toolSpecs) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(toolSpecs))
	}
	for _, d := range defs {
		tool := d.OfTool
		if len(tool.InputSchema.Required) == 0 {
			t.Errorf("%s has no required parameters", tool.Name)
		}
		res := e.Execute(context.Background(), tool.Name, json.RawMessage(`{}`))
		if strings.HasPrefix(res.Content, "Unknown tool") {
			t.Errorf("tool %s is offered but not executable", tool.Name)
		}
	}
}
