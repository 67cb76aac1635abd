package questionset_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/intervox/internal/questionset"
)

const backendYAML = `
id: backend-senior
job_position: Senior Backend Engineer
job_description: Builds and runs the payments platform.
experience_level: senior
duration_minutes: 30
interview_types: [technical, behavioral]
questions:
  - id: design
    text: Tell me about a system you designed end to end.
    type: technical
  - text: Describe a disagreement with a teammate and how it ended.
    type: behavioral
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	qs, err := questionset.LoadFromReader(strings.NewReader(backendYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: unexpected error: %v", err)
	}
	if qs.ID != "backend-senior" || qs.JobPosition != "Senior Backend Engineer" {
		t.Errorf("header = %q / %q", qs.ID, qs.JobPosition)
	}
	if qs.DurationMinutes != 30 || qs.ExperienceLevel != "senior" {
		t.Errorf("details = %d / %q", qs.DurationMinutes, qs.ExperienceLevel)
	}
	if len(qs.Questions) != 2 || qs.Questions[0].ID != "design" || qs.Questions[1].Type != "behavioral" {
		t.Errorf("questions = %+v", qs.Questions)
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"completely invalid YAML", ":::not valid yaml:::"},
		{"unknown top-level key", "job_position: x\nsalary: 100\n"},
		{"unknown question key", "job_position: x\nquestions:\n  - text: hi\n    weight: 2\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := questionset.LoadFromReader(strings.NewReader(tc.input)); err == nil {
				t.Fatal("LoadFromReader: expected error for invalid input, got nil")
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", backendYAML)
	writeFile(t, dir, "frontend.yml", "job_position: Frontend Engineer\nquestions:\n  - text: What is the virtual DOM?\n")
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s := questionset.NewMemStore()
	n, err := questionset.LoadDir(ctx, s, dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 2 {
		t.Fatalf("LoadDir: loaded %d sets, want 2", n)
	}

	// A file without an id is keyed by its name.
	fe, err := s.Get(ctx, "frontend")
	if err != nil {
		t.Fatalf("Get(frontend): %v", err)
	}
	if fe.Questions[0].ID != "q1" {
		t.Errorf("question id = %q, want q1", fe.Questions[0].ID)
	}
	if _, err := s.Get(ctx, "backend-senior"); err != nil {
		t.Errorf("Get(backend-senior): %v", err)
	}
}

func TestLoadDir_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("missing dir", func(t *testing.T) {
		t.Parallel()
		if _, err := questionset.LoadDir(ctx, questionset.NewMemStore(), filepath.Join(t.TempDir(), "nope")); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid set aborts", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		writeFile(t, dir, "a.yaml", backendYAML)
		writeFile(t, dir, "b.yaml", "job_position: Empty\nquestions: []\n")
		n, err := questionset.LoadDir(ctx, questionset.NewMemStore(), dir)
		if err == nil {
			t.Fatal("expected validation error")
		}
		if n != 1 {
			t.Errorf("loaded %d before failing, want 1", n)
		}
	})
}
