package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/rubocop-daemon/wrapper/exec"
	"github.com/rubocop-daemon/wrapper/logger"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)

	code := m.Run()

	logger.Reset()
	os.Exit(code)
}

func TestInvocation(t *testing.T) {
	tests := []struct {
		name       string
		useBundler bool
		tool       string
		args       []string
		wantName   string
		wantArgs   []string
	}{
		{
			name:     "plain",
			tool:     "rubocop-daemon",
			args:     []string{"start"},
			wantName: "rubocop-daemon",
			wantArgs: []string{"start"},
		},
		{
			name:       "bundler",
			useBundler: true,
			tool:       "rubocop-daemon",
			args:       []string{"start"},
			wantName:   "bundle",
			wantArgs:   []string{"exec", "rubocop-daemon", "start"},
		},
		{
			name:       "bundler no args",
			useBundler: true,
			tool:       "rubocop",
			wantName:   "bundle",
			wantArgs:   []string{"exec", "rubocop"},
		},
		{
			name:     "plain no args",
			tool:     "rubocop",
			wantName: "rubocop",
			wantArgs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args := Invocation(tt.useBundler, tt.tool, tt.args...)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if !slices.Equal(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestInvocation_DoesNotAliasArgs(t *testing.T) {
	args := []string{"--format", "json"}
	_, got := Invocation(false, "rubocop", args...)
	got[0] = "mutated"
	if args[0] != "--format" {
		t.Error("Invocation must copy the caller's args")
	}
}

func TestInstalled(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPath("rubocop-daemon", "/usr/local/bin/rubocop-daemon")

	if !Installed(mock, "rubocop-daemon") {
		t.Error("registered tool should be installed")
	}
	if Installed(mock, "rubocop") {
		t.Error("unregistered tool should not be installed")
	}
}

func TestRunFallback_PropagatesExitCode(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("rubocop", []string{"app.rb"}, exec.MockResponse{
		Stdout:   []byte("1 offense detected\n"),
		ExitCode: 1,
	})

	var out bytes.Buffer
	code, err := RunFallback(context.Background(), mock, false, "rubocop", []string{"app.rb"}, Stdio{Out: &out})
	if err != nil {
		t.Fatalf("RunFallback: %v", err)
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if out.String() != "1 offense detected\n" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestRunFallback_Bundler(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("bundle", []string{"exec", "rubocop", "-a", "app.rb"}, exec.MockResponse{})

	code, err := RunFallback(context.Background(), mock, true, "rubocop", []string{"-a", "app.rb"}, Stdio{})
	if err != nil || code != 0 {
		t.Fatalf("RunFallback = (%d, %v)", code, err)
	}

	calls := mock.GetCalls()
	if len(calls) != 1 || calls[0].Name != "bundle" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestRunFallback_PassesStdin(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	var seen string
	mock.AddPrefixMatch("rubocop", nil, exec.MockResponse{
		Do: func(cmd exec.Command) error {
			var buf bytes.Buffer
			buf.ReadFrom(cmd.Stdin)
			seen = buf.String()
			return nil
		},
	})

	_, err := RunFallback(context.Background(), mock, false, "rubocop", []string{"--stdin", "app.rb"}, Stdio{In: strings.NewReader("puts 1\n")})
	if err != nil {
		t.Fatalf("RunFallback: %v", err)
	}
	if seen != "puts 1\n" {
		t.Errorf("fallback saw stdin %q", seen)
	}
}

func TestRunFallback_SpawnError(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddPrefixMatch("rubocop", nil, exec.MockResponse{Err: errors.New("executable file not found")})

	code, err := RunFallback(context.Background(), mock, false, "rubocop", nil, Stdio{})
	if err == nil {
		t.Fatal("expected error when the fallback cannot start")
	}
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}
