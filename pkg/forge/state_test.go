package forge

import "testing"

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		raw  string
		want State
	}{
		{"opened", StateOpen},
		{"open", StateOpen},
		{"closed", StateClosed},
		{"merged", StateMerged},
		{"locked", StateOpen},
		{"", StateOpen},
		{"CLOSED", StateOpen},
		{"reopened", StateOpen},
	}
	for _, tt := range tests {
		if got := NormalizeState(tt.raw); got != tt.want {
			t.Errorf("NormalizeState(%q): expected %q, got %q", tt.raw, tt.want, got)
		}
	}
}

func TestMatchesState(t *testing.T) {
	tests := []struct {
		filter State
		state  State
		want   bool
	}{
		{"", StateOpen, true},
		{"", StateClosed, false},
		{StateOpen, StateOpen, true},
		{StateClosed, StateMerged, false},
		{StateMerged, StateMerged, true},
		{StateAll, StateClosed, true},
	}
	for _, tt := range tests {
		if got := matchesState(tt.filter, tt.state); got != tt.want {
			t.Errorf("matchesState(%q, %q): expected %v, got %v", tt.filter, tt.state, tt.want, got)
		}
	}
}

func TestCountDiffLines(t *testing.T) {
	diff := "--- a/main.go\n+++ b/main.go\n@@ -1,3 +1,4 @@\n package main\n-import \"fmt\"\n+import (\n+\t\"fmt\"\n+)\n"
	add, del := countDiffLines(diff)
	if add != 3 || del != 1 {
		t.Errorf("Expected +3 -1, got +%d -%d", add, del)
	}

	// Hunk content that looks like a file header is still content.
	add, del = countDiffLines("@@ -1,2 +1,2 @@\n--- old sql comment\n+++ counter\n ctx\n")
	if add != 1 || del != 1 {
		t.Errorf("Expected +1 -1 for header-like content, got +%d -%d", add, del)
	}

	multi := "diff --git a/a b/a\n--- a/a\n+++ b/a\n@@ -1 +1 @@\n-x\n+y\n" +
		"diff --git a/b b/b\n--- a/b\n+++ b/b\n@@ -0,0 +1 @@\n+z\n"
	if add, del := countDiffLines(multi); add != 2 || del != 1 {
		t.Errorf("Expected +2 -1 across files, got +%d -%d", add, del)
	}

	if add, del := countDiffLines(""); add != 0 || del != 0 {
		t.Errorf("Expected no changes for empty diff, got +%d -%d", add, del)
	}
}
