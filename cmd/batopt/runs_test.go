package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/batopt/internal/store"
)

func runIDs(infos []store.RunInfo) []string {
	ids := make([]string, len(infos))
	for i, info := range infos {
		ids[i] = info.RunID
	}
	return ids
}

func TestSelectRunsForDeletion(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	infos := []store.RunInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
		{RunID: "run5", Timestamp: now.AddDate(0, 0, -2)},
	}

	tests := []struct {
		name      string
		keepLast  int
		olderThan int
		want      []string
	}{
		{"by age", 0, 7, []string{"run4", "run1"}},
		{"by count", 2, 0, []string{"run4", "run1", "run2"}},
		{"combined without duplicates", 3, 7, []string{"run4", "run1"}},
		{"combined age wins", 4, 3, []string{"run4", "run1", "run2"}},
		{"nothing to delete", 10, 60, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runIDs(selectRunsForDeletion(infos, tt.keepLast, tt.olderThan, now))
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Got %v, want %v", got, tt.want)
			}
		})
	}

	// input order is left untouched
	if infos[0].RunID != "run1" || infos[3].RunID != "run4" {
		t.Error("selectRunsForDeletion reordered its input")
	}
}

func TestWriteRunTable(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRunTable(&buf, nil); err != nil {
		t.Fatalf("writeRunTable failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No runs found.") {
		t.Errorf("Unexpected output %q", buf.String())
	}

	buf.Reset()
	infos := []store.RunInfo{{
		RunID:       "0123456789abcdef",
		Objective:   "sphere",
		Dim:         10,
		BestFitness: 0.5,
		Evaluations: 20000,
		Generations: 1000,
		Timestamp:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	if err := writeRunTable(&buf, infos); err != nil {
		t.Fatalf("writeRunTable failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"0123456789ab...", "2024-01-02 03:04:05", "sphere", "20000", "Total runs: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"Y\n", true},
		{"yes\n", false},
		{"n\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "? "); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRunsCleanCommand(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	cfg := store.DefaultJobConfig()
	cfg.Dim = 2
	for i, id := range []string{"old", "mid", "new"} {
		rec := store.NewRunRecord(id, cfg, []float64{0, 0}, 0, 1, 100, 5)
		rec.Timestamp = time.Now().Add(time.Duration(i-3) * time.Hour)
		if err := st.SaveRun(t.Context(), id, rec); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	out, err := executeCommand(t, "runs", "clean", "--keep-last", "1", "--force", "--data-dir", dir)
	if err != nil {
		t.Fatalf("runs clean failed: %v", err)
	}
	if !strings.Contains(out, "Deleted 2 run(s), 0 failed.") {
		t.Errorf("Unexpected output:\n%s", out)
	}

	infos, err := st.ListRuns(t.Context())
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 1 || infos[0].RunID != "new" {
		t.Errorf("Expected only the newest run left, got %v", runIDs(infos))
	}
}

func TestRunsCleanCommand_Aborted(t *testing.T) {
	dir := t.TempDir()
	st, _ := store.NewFSStore(dir)
	cfg := store.DefaultJobConfig()
	cfg.Dim = 1
	rec := store.NewRunRecord("only", cfg, []float64{0}, 0, 1, 10, 1)
	rec.Timestamp = time.Now().AddDate(0, 0, -30)
	st.SaveRun(t.Context(), "only", rec)

	// executeCommand feeds empty stdin, which declines the prompt
	out, err := executeCommand(t, "runs", "clean", "--older-than", "7", "--data-dir", dir)
	if err != nil {
		t.Fatalf("runs clean failed: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("Expected abort without confirmation:\n%s", out)
	}
	if _, err := st.LoadRun(t.Context(), "only"); err != nil {
		t.Errorf("Run should survive an aborted clean: %v", err)
	}
}
