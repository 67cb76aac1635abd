package questionset

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate checks a [QuestionSet] for required fields.
//
// Rules:
//   - JobPosition must be non-empty.
//   - Status, if set, must be a recognised [Status].
//   - There must be at least one question, each with non-empty text.
//   - Question IDs must be unique.
//   - When InterviewTypes is set, every typed question must use one of them.
func Validate(qs QuestionSet) error {
	var errs []error

	if strings.TrimSpace(qs.JobPosition) == "" {
		errs = append(errs, errors.New("job_position must not be empty"))
	}
	if qs.Status != "" && !qs.Status.IsValid() {
		errs = append(errs, fmt.Errorf("status %q is not a recognised status", qs.Status))
	}
	if qs.DurationMinutes < 0 {
		errs = append(errs, errors.New("duration_minutes must not be negative"))
	}
	if len(qs.Questions) == 0 {
		errs = append(errs, errors.New("at least one question is required"))
	}

	seen := make(map[string]bool, len(qs.Questions))
	for i, q := range qs.Questions {
		if strings.TrimSpace(q.Text) == "" {
			errs = append(errs, fmt.Errorf("questions[%d]: text must not be empty", i))
		}
		if q.ID != "" {
			if seen[q.ID] {
				errs = append(errs, fmt.Errorf("questions[%d]: duplicate id %q", i, q.ID))
			}
			seen[q.ID] = true
		}
		if q.Type != "" && len(qs.InterviewTypes) > 0 && !slices.Contains(qs.InterviewTypes, q.Type) {
			errs = append(errs, fmt.Errorf("questions[%d]: type %q is not one of %v", i, q.Type, qs.InterviewTypes))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// normalize fills defaults: active status and positional question IDs.
func normalize(qs QuestionSet) QuestionSet {
	if qs.Status == "" {
		qs.Status = StatusActive
	}
	qs.Questions = slices.Clone(qs.Questions)
	for i := range qs.Questions {
		if qs.Questions[i].ID == "" {
			qs.Questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	return qs
}
