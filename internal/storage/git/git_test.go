package git

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestOpenInitializesRepo(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, "kvstore", "kvstore@localhost")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		t.Fatalf("no .git directory after Open: %v", err)
	}
	n, err := m.CommitCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("CommitCount on fresh repo = %d, want 0", n)
	}
}

func TestCommit(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, "kvstore", "kvstore@localhost")
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "a.json", `"one"`)
	if err := m.Commit("first"); err != nil {
		t.Fatal(err)
	}
	n, err := m.CommitCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("CommitCount = %d, want 1", n)
	}

	writeFile(t, dir, "a.json", `"two"`)
	if err := m.Commit("second"); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.CommitCount(); n != 2 {
		t.Fatalf("CommitCount = %d, want 2", n)
	}
}

func TestCommitCleanWorktreeIsNoOp(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, "kvstore", "kvstore@localhost")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "a.json", `1`)
	if err := m.Commit("first"); err != nil {
		t.Fatal(err)
	}
	// No changes since the last commit.
	if err := m.Commit("nothing to do"); err != nil {
		t.Fatal(err)
	}
	if n, _ := m.CommitCount(); n != 1 {
		t.Fatalf("CommitCount = %d, want 1 (no-op created a commit)", n)
	}
}

func TestOpenExistingRepo(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir, "kvstore", "kvstore@localhost")
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "a.json", `1`)
	if err := first.Commit("first"); err != nil {
		t.Fatal(err)
	}

	// Reopening finds the same history instead of reinitializing.
	second, err := Open(dir, "kvstore", "kvstore@localhost")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := second.CommitCount(); n != 1 {
		t.Fatalf("CommitCount after reopen = %d, want 1", n)
	}
}
