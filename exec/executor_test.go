package exec

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestRealExecutor_Run(t *testing.T) {
	executor := NewRealExecutor()
	ctx := context.Background()

	var stdout bytes.Buffer
	err := executor.Run(ctx, Command{Name: "echo", Args: []string{"hello"}, Stdout: &stdout})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout.String() != "hello\n" {
		t.Errorf("expected 'hello\\n', got %q", stdout.String())
	}
}

func TestRealExecutor_ExitCode(t *testing.T) {
	executor := NewRealExecutor()

	err := executor.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	code, ok := ExitCode(err)
	if !ok {
		t.Fatalf("expected an exit error, got %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestRealExecutor_EnvAndStdin(t *testing.T) {
	executor := NewRealExecutor()

	var stdout bytes.Buffer
	err := executor.Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", `printf '%s:' "$TOKEN_PATH"; cat`},
		Env:    []string{"TOKEN_PATH=/tmp/token"},
		Stdin:  strings.NewReader("payload"),
		Stdout: &stdout,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout.String() != "/tmp/token:payload" {
		t.Errorf("got %q", stdout.String())
	}
}

func TestRealExecutor_NotFound(t *testing.T) {
	executor := NewRealExecutor()

	err := executor.Run(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, ok := ExitCode(err); ok {
		t.Error("a missing binary is not an exit status")
	}

	if _, err := executor.LookPath("definitely-not-a-real-binary-xyz"); err == nil {
		t.Error("LookPath should fail for a missing binary")
	}
	if _, err := executor.LookPath("sh"); err != nil {
		t.Errorf("LookPath(sh): %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantOK   bool
	}{
		{"nil", nil, 0, true},
		{"exit error", &ExitError{Code: 2}, 2, true},
		{"wrapped", errors.Join(errors.New("context"), &ExitError{Code: 7}), 7, true},
		{"other", errors.New("spawn failed"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := ExitCode(tt.err)
			if code != tt.wantCode || ok != tt.wantOK {
				t.Errorf("ExitCode(%v) = (%d, %v), want (%d, %v)", tt.err, code, ok, tt.wantCode, tt.wantOK)
			}
		})
	}
}

func TestCommand_String(t *testing.T) {
	c := Command{Name: "bundle", Args: []string{"exec", "rubocop-daemon", "start"}}
	if got := c.String(); got != "bundle exec rubocop-daemon start" {
		t.Errorf("String() = %q", got)
	}
}

func TestMockExecutor_Run(t *testing.T) {
	mock := NewMockExecutor(nil)

	mock.AddExactMatch("rubocop", []string{"--version"}, MockResponse{
		Stdout: []byte("1.60.0\n"),
	})

	var stdout bytes.Buffer
	err := mock.Run(context.Background(), Command{Name: "rubocop", Args: []string{"--version"}, Dir: "/some/dir", Stdout: &stdout})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout.String() != "1.60.0\n" {
		t.Errorf("expected '1.60.0\\n', got %q", stdout.String())
	}

	calls := mock.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Dir != "/some/dir" {
		t.Errorf("expected dir '/some/dir', got %q", calls[0].Dir)
	}
	if calls[0].Name != "rubocop" {
		t.Errorf("expected name 'rubocop', got %q", calls[0].Name)
	}
}

func TestMockExecutor_PrefixMatch(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("bundle", []string{"exec"}, MockResponse{ExitCode: 1})

	ctx := context.Background()
	err := mock.Run(ctx, Command{Name: "bundle", Args: []string{"exec", "rubocop", "app.rb"}})
	if code, _ := ExitCode(err); code != 1 {
		t.Errorf("expected exit 1 from prefix rule, got %v", err)
	}

	// Different prefix falls through to the default success
	if err := mock.Run(ctx, Command{Name: "bundle", Args: []string{"install"}}); err != nil {
		t.Errorf("unmatched command should succeed, got %v", err)
	}
}

func TestMockExecutor_Error(t *testing.T) {
	mock := NewMockExecutor(nil)
	expectedErr := errors.New("command failed")
	mock.AddExactMatch("rubocop-daemon", []string{"start"}, MockResponse{Err: expectedErr, ExitCode: 4})

	err := mock.Run(context.Background(), Command{Name: "rubocop-daemon", Args: []string{"start"}})
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}
}

func TestMockExecutor_Do(t *testing.T) {
	mock := NewMockExecutor(nil)

	var seenEnv []string
	mock.AddExactMatch("rubocop-daemon", []string{"start"}, MockResponse{
		Do: func(cmd Command) error {
			seenEnv = cmd.Env
			return nil
		},
	})

	env := []string{"TOKEN_PATH=/x/token"}
	if err := mock.Run(context.Background(), Command{Name: "rubocop-daemon", Args: []string{"start"}, Env: env}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seenEnv) != 1 || seenEnv[0] != env[0] {
		t.Errorf("Do saw env %v, want %v", seenEnv, env)
	}

	doErr := errors.New("side effect failed")
	mock.AddExactMatch("rubocop-daemon", []string{"stop"}, MockResponse{
		Do: func(Command) error { return doErr },
	})
	if err := mock.Run(context.Background(), Command{Name: "rubocop-daemon", Args: []string{"stop"}}); !errors.Is(err, doErr) {
		t.Errorf("expected Do error, got %v", err)
	}
}

func TestMockExecutor_LookPath(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPath("rubocop-daemon", "/usr/local/bin/rubocop-daemon")

	path, err := mock.LookPath("rubocop-daemon")
	if err != nil {
		t.Fatalf("LookPath: %v", err)
	}
	if path != "/usr/local/bin/rubocop-daemon" {
		t.Errorf("LookPath = %q", path)
	}

	if _, err := mock.LookPath("rubocop"); err == nil {
		t.Error("unregistered executable should not be found")
	}
}

func TestMockExecutor_Fallback(t *testing.T) {
	inner := NewMockExecutor(nil)
	inner.AddExactMatch("inner", nil, MockResponse{ExitCode: 5})
	inner.AddPath("inner", "/bin/inner")

	outer := NewMockExecutor(inner)
	outer.AddExactMatch("outer", nil, MockResponse{})

	ctx := context.Background()
	if err := outer.Run(ctx, Command{Name: "outer"}); err != nil {
		t.Errorf("outer rule: %v", err)
	}
	if code, _ := ExitCode(outer.Run(ctx, Command{Name: "inner"})); code != 5 {
		t.Errorf("expected fallback exit 5, got %d", code)
	}
	if p, err := outer.LookPath("inner"); err != nil || p != "/bin/inner" {
		t.Errorf("fallback LookPath = (%q, %v)", p, err)
	}

	// Both executors record the delegated call
	if len(outer.GetCalls()) != 2 || len(inner.GetCalls()) != 1 {
		t.Errorf("calls: outer=%d inner=%d", len(outer.GetCalls()), len(inner.GetCalls()))
	}
}

func TestMockExecutor_RuleOrder(t *testing.T) {
	mock := NewMockExecutor(nil)
	mock.AddPrefixMatch("rubocop", nil, MockResponse{ExitCode: 1})
	mock.AddExactMatch("rubocop", []string{"app.rb"}, MockResponse{ExitCode: 2})

	err := mock.Run(context.Background(), Command{Name: "rubocop", Args: []string{"app.rb"}})
	if code, _ := ExitCode(err); code != 1 {
		t.Errorf("first registered rule should win, got exit %d", code)
	}
}

func TestMockExecutor_GetCallsClearCalls(t *testing.T) {
	mock := NewMockExecutor(nil)
	ctx := context.Background()

	mock.Run(ctx, Command{Name: "a"})
	mock.Run(ctx, Command{Name: "b"})
	if len(mock.GetCalls()) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(mock.GetCalls()))
	}

	mock.ClearCalls()
	if len(mock.GetCalls()) != 0 {
		t.Errorf("expected 0 calls after clear, got %d", len(mock.GetCalls()))
	}
}

func TestDefaultExecutor(t *testing.T) {
	original := GetDefaultExecutor()
	defer SetDefaultExecutor(original)

	mock := NewMockExecutor(nil)
	SetDefaultExecutor(mock)

	if GetDefaultExecutor() != mock {
		t.Error("expected default executor to be the mock")
	}
}

func TestDefaultExecutorConcurrentAccess(t *testing.T) {
	original := GetDefaultExecutor()
	defer SetDefaultExecutor(original)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetDefaultExecutor(NewMockExecutor(nil))
		}()
		go func() {
			defer wg.Done()
			_ = GetDefaultExecutor()
		}()
	}
	wg.Wait()
}
