package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestOpenCreatesEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.pll")
	out, err := run(t, "open", "--file", path, "--buffer", "direct")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.Contains(out, "0 element(s)") {
		t.Fatalf("output = %q, want mention of 0 elements", out)
	}
}

func TestDumpPrintsMetaHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.pll")
	if _, err := run(t, "open", "--file", path, "--buffer", "direct"); err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := run(t, "dump", "--file", path, "--buffer", "direct")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "meta(id=") {
		t.Fatalf("output = %q, want a meta header line", out)
	}
}

func TestStatsReportsCapacityAndElements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.pll")
	if _, err := run(t, "open", "--file", path, "--buffer", "direct"); err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := run(t, "stats", "--file", path, "--buffer", "direct")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "elements:   0") {
		t.Fatalf("output = %q, want elements line", out)
	}
	if !strings.Contains(out, "capacity:") {
		t.Fatalf("output = %q, want capacity line", out)
	}
}

func TestStatsReportsCommitsForTwoCopyBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.pll")
	if _, err := run(t, "open", "--file", path); err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := run(t, "stats", "--file", path)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "commits:") {
		t.Fatalf("output = %q, want a commits line for the two-copy buffer", out)
	}
}

func TestFsckReportsOkOnHealthyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.pll")
	if _, err := run(t, "open", "--file", path, "--buffer", "direct"); err != nil {
		t.Fatalf("open: %v", err)
	}
	out, err := run(t, "fsck", "--file", path, "--buffer", "direct")
	if err != nil {
		t.Fatalf("fsck: %v", err)
	}
	if !strings.HasPrefix(out, "OK:") {
		t.Fatalf("output = %q, want an OK prefix", out)
	}
}

func TestRequiresFileFlag(t *testing.T) {
	if _, err := run(t, "stats"); err == nil {
		t.Fatal("expected an error when --file is omitted")
	}
}
