package main

import (
	"bytes"
	"strings"
	"testing"
)

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestToolsCommand(t *testing.T) {
	out, err := execute("tools", "-V")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "research") || !strings.Contains(out, "topic*") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRunRequiresIDAndTopic(t *testing.T) {
	for _, args := range [][]string{{"run"}, {"run", "ml"}, {"run", "ml", "topic", "1", "extra"}} {
		if _, err := execute(args...); err == nil {
			t.Errorf("expected usage error for %v", args)
		}
	}
}

func TestSubmitRequiresIDAndTopic(t *testing.T) {
	if _, err := execute("submit", "ml"); err == nil {
		t.Error("expected usage error")
	}
}

func TestStatusRequiresID(t *testing.T) {
	if _, err := execute("status"); err == nil {
		t.Error("expected usage error")
	}
}

func TestCommandsRegistered(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"run": false, "status": false, "worker": false, "submit": false, "tools": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestUsagePrintedOnMissingArgs(t *testing.T) {
	out, err := execute("run", "ml")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(out, "run <id> <topic> [depth]") {
		t.Errorf("expected usage in output, got:\n%s", out)
	}
}
