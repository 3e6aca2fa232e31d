package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"authmsg/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRoot()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDemoCommand(t *testing.T) {
	out, err := execute(t, "demo", "--log-level", "error", "-m", "ping")
	if err != nil {
		t.Fatalf("demo: %v", err)
	}
	if !strings.Contains(out, "alice -> bob: ping") {
		t.Fatalf("missing forward line:\n%s", out)
	}
	if !strings.Contains(out, "bob -> alice: Cool, got your message: ping") {
		t.Fatalf("missing reply line:\n%s", out)
	}
	if !strings.Contains(out, "done") {
		t.Fatalf("history not printed:\n%s", out)
	}
}

func TestDemoCommand_ConfigError(t *testing.T) {
	_, err := execute(t, "demo", "--log-level", "error", "--key-cache", "tape")
	if got := ExitCodeFor(err); got != ExitConfigError {
		t.Fatalf("exit code = %d (err %v)", got, err)
	}
}

func TestBindCommand(t *testing.T) {
	out, err := execute(t, "bind", "--log-level", "error")
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if !strings.Contains(out, "Bound authmsg-demo") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestVerifyCommand(t *testing.T) {
	out, err := execute(t, "verify", "carol", "--log-level", "error")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "carol approved") || !strings.Contains(out, "Key token fingerprint") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestDemoCommand_SameUsersRejected(t *testing.T) {
	_, err := execute(t, "demo", "--log-level", "error", "--sender", "bob", "--receiver", "bob")
	if ExitCodeFor(err) != ExitConfigError {
		t.Fatalf("expected config error, got %v", err)
	}
	if errors.Is(err, domain.ErrAuthFailure) {
		t.Fatal("config problem reported as auth failure")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "authmsg dev" {
		t.Fatalf("version output %q", out)
	}
}
