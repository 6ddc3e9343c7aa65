package models

import "time"

// SubmissionState is derived on every read, never stored.
type SubmissionState string

const (
	SubmissionStateNotSubmitted SubmissionState = "NOT_SUBMITTED"
	SubmissionStateSubmitted    SubmissionState = "SUBMITTED"
	SubmissionStateGraded       SubmissionState = "GRADED"
	SubmissionStateOverdue      SubmissionState = "OVERDUE"
)

// DeriveSubmissionState computes the exhaustive, mutually exclusive
// submission state for a (work item, student) pair. Graded wins over
// submitted; overdue applies only while no submission exists.
func DeriveSubmissionState(hasSubmission, graded bool, dueDate, now time.Time) SubmissionState {
	switch {
	case hasSubmission && graded:
		return SubmissionStateGraded
	case hasSubmission:
		return SubmissionStateSubmitted
	case now.After(dueDate):
		return SubmissionStateOverdue
	default:
		return SubmissionStateNotSubmitted
	}
}

// IsOverdue reports whether the student missed the deadline without
// submitting. Independent of lifecycle status; used for action gating.
func IsOverdue(hasSubmission bool, dueDate, now time.Time) bool {
	return !hasSubmission && now.After(dueDate)
}

// EligibleStudent decides whether a student may see and submit to a
// presentation. A non-empty allow-list always overrides enrollment; when
// neither restriction is resolvable the check fails open.
func EligibleStudent(selected, enrolled []string, enrolledKnown bool, studentID string) bool {
	if len(selected) > 0 {
		return containsID(selected, studentID)
	}
	if enrolledKnown {
		return containsID(enrolled, studentID)
	}
	return true
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
