package storage

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)

	key, err := s.Put("exports/a.json", strings.NewReader(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, "exports/a.json", key)

	rc, err := s.Get(key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(b))

	u, err := s.SignedURL(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
}

func TestFSStore_KeysStayInsideBase(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(filepath.Join(dir, "base"))
	require.NoError(t, err)

	key, err := s.Put("../../escape.json", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "escape.json", key)
	assert.FileExists(t, filepath.Join(dir, "base", "escape.json"))

	_, err = s.Put("", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestPutExport(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := PutExport(s, "career_fair_feedback", time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), []byte(`{}`))
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f-]{36}/cyient-survey-career_fair_feedback-2025-02-03\.json$`, key)
}

func TestPutExport_SameSurveyAndDayKeepsBoth(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	day := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	alice, err := PutExport(s, "campus_hiring_feedback", day, []byte(`{"who":"alice"}`))
	require.NoError(t, err)
	bob, err := PutExport(s, "campus_hiring_feedback", day.Add(3*time.Hour), []byte(`{"who":"bob"}`))
	require.NoError(t, err)
	require.NotEqual(t, alice, bob)

	for key, want := range map[string]string{alice: `{"who":"alice"}`, bob: `{"who":"bob"}`} {
		rc, err := s.Get(key)
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.JSONEq(t, want, string(b))
		assert.True(t, strings.HasSuffix(key, "/cyient-survey-campus_hiring_feedback-2025-03-01.json"))
	}
}
