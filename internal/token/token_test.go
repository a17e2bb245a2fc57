package token

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClaims(now time.Time) Claims {
	return Claims{
		StudentIDHash: HashStudentID("alice@example.com"),
		IDLast4:       "1234",
		FirstName:     "Alice",
		LastName:      "Cohen",
		Email:         "alice@example.com",
		SlotStart:     now.Add(time.Hour),
		SlotEnd:       now.Add(2 * time.Hour),
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc, err := NewService("secret-key", time.Hour)
	require.NoError(t, err)

	now := time.Now()
	signed, err := svc.Issue(testClaims(now))
	require.NoError(t, err)

	claims, err := svc.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, HashStudentID("alice@example.com"), claims.StudentIDHash)
	require.Equal(t, "Alice", claims.FirstName)
	require.WithinDuration(t, now.Add(time.Hour), claims.SlotStart, time.Second)
}

func TestVerifyRejectsTamperedAndForeignTokens(t *testing.T) {
	svc, err := NewService("secret-key", time.Hour)
	require.NoError(t, err)

	signed, err := svc.Issue(testClaims(time.Now()))
	require.NoError(t, err)

	_, err = svc.Verify(signed + "x")
	require.ErrorIs(t, err, ErrTokenInvalid)

	other, err := NewService("different-key", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(signed)
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Verify("")
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = svc.Verify("not.a.jwt")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpiredToken(t *testing.T) {
	svc, err := NewService("secret-key", time.Minute)
	require.NoError(t, err)

	issuedAt := time.Now().Add(-time.Hour)
	svc.now = func() time.Time { return issuedAt }
	signed, err := svc.Issue(testClaims(issuedAt))
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(signed)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestMagicLink(t *testing.T) {
	svc, err := NewService("secret-key", time.Hour)
	require.NoError(t, err)

	link, err := svc.MagicLink("https://exam.example.com/", testClaims(time.Now()))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "https://exam.example.com/exam?token="))
}

func TestHashStudentIDStableAndOneWay(t *testing.T) {
	first := HashStudentID("Alice@Example.com ")
	second := HashStudentID("alice@example.com")
	require.Equal(t, first, second, "hash is case/space insensitive")
	require.Len(t, first, 64)
	require.NotContains(t, first, "@")
}
