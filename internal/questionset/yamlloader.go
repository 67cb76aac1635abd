package questionset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and parses a question set YAML file from disk. A set without
// an id takes the file name (without extension) as its id.
//
// Example:
//
//	id: backend-senior
//	job_position: Senior Backend Engineer
//	interview_types: [technical, behavioral]
//	questions:
//	  - text: Tell me about a system you designed end to end.
//	    type: technical
//	  - text: Describe a disagreement with a teammate and how it ended.
//	    type: behavioral
func LoadFile(path string) (QuestionSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return QuestionSet{}, fmt.Errorf("questionset: open %q: %w", path, err)
	}
	defer f.Close()

	qs, err := LoadFromReader(f)
	if err != nil {
		return QuestionSet{}, fmt.Errorf("questionset: parse %q: %w", path, err)
	}
	if qs.ID == "" {
		qs.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return qs, nil
}

// LoadFromReader parses question set YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (QuestionSet, error) {
	var qs QuestionSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&qs); err != nil {
		return QuestionSet{}, fmt.Errorf("questionset: decode yaml: %w", err)
	}
	return qs, nil
}

// LoadDir adds every *.yaml and *.yml file in dir to store, in file name
// order. It returns the number of sets added and aborts at the first file
// that fails to load or validate.
func LoadDir(ctx context.Context, store Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("questionset: read dir %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	count := 0
	for _, name := range names {
		qs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return count, err
		}
		if _, err := store.Add(ctx, qs); err != nil {
			return count, fmt.Errorf("questionset: load %q: %w", name, err)
		}
		count++
	}
	return count, nil
}
