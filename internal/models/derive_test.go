package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeriveSubmissionState(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	t.Run("graded wins over submitted", func(t *testing.T) {
		require.Equal(t, SubmissionStateGraded, DeriveSubmissionState(true, true, past, now))
	})

	t.Run("submitted before deadline", func(t *testing.T) {
		require.Equal(t, SubmissionStateSubmitted, DeriveSubmissionState(true, false, future, now))
	})

	t.Run("submitted after deadline still submitted", func(t *testing.T) {
		require.Equal(t, SubmissionStateSubmitted, DeriveSubmissionState(true, false, past, now))
	})

	t.Run("missing work past deadline is overdue", func(t *testing.T) {
		require.Equal(t, SubmissionStateOverdue, DeriveSubmissionState(false, false, past, now))
	})

	t.Run("missing work before deadline", func(t *testing.T) {
		require.Equal(t, SubmissionStateNotSubmitted, DeriveSubmissionState(false, false, future, now))
	})
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.True(t, IsOverdue(false, past, now))
	require.False(t, IsOverdue(true, past, now))
	require.False(t, IsOverdue(false, future, now))
}

func TestEligibleStudent(t *testing.T) {
	t.Run("allow-list overrides enrollment", func(t *testing.T) {
		selected := []string{"s1", "s2"}
		enrolled := []string{"s3"}
		require.True(t, EligibleStudent(selected, enrolled, true, "s1"))
		require.False(t, EligibleStudent(selected, enrolled, true, "s3"))
	})

	t.Run("falls back to enrollment when no allow-list", func(t *testing.T) {
		enrolled := []string{"s3"}
		require.True(t, EligibleStudent(nil, enrolled, true, "s3"))
		require.False(t, EligibleStudent(nil, enrolled, true, "s4"))
	})

	t.Run("fails open when nothing is resolvable", func(t *testing.T) {
		require.True(t, EligibleStudent(nil, nil, false, "anyone"))
	})
}

func TestEnumValidity(t *testing.T) {
	require.True(t, PresentationStatusPublished.Notifiable())
	require.True(t, PresentationStatusActive.Notifiable())
	require.False(t, PresentationStatusDraft.Notifiable())
	require.False(t, PresentationStatusCancelled.Notifiable())

	require.True(t, NotificationModeAll.Valid())
	require.False(t, NotificationMode("EVERYONE").Valid())
	require.True(t, RoleLecturer.Valid())
	require.False(t, UserRole("TEACHER").Valid())
}
