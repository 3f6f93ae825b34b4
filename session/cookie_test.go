package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieRoundTrip(t *testing.T) {
	tests := []Pair{
		{Token: "abc", SeriesID: "s1"},
		{Token: "a b", SeriesID: "x/y"},
		{Token: "tok%en", SeriesID: "série"},
		NewPair(),
	}

	for _, p := range tests {
		t.Run(p.Token, func(t *testing.T) {
			got, ok := ParseCookie(p.Encode())
			require.True(t, ok)
			assert.Equal(t, p, got)
		})
	}
}

func TestParseCookieRejects(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"no dash", "abc"},
		{"two dashes", "a-b-c"},
		{"encoded extra dash", "a-b%2Dc"},
		{"empty token", "-s1"},
		{"empty series", "abc-"},
		{"bad escape", "abc-%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseCookie(tt.value)
			assert.False(t, ok)
		})
	}
}

func TestNewPair(t *testing.T) {
	a, b := NewPair(), NewPair()
	assert.Len(t, a.Token, 20)
	assert.Len(t, a.SeriesID, 20)
	assert.NotEqual(t, a, b)
}

func TestFromRequest(t *testing.T) {
	pair := Pair{Token: "abc", SeriesID: "s1"}

	rec := httptest.NewRecorder()
	http.SetCookie(rec, pair.Cookie(DefaultCookieName))
	header := rec.Header().Get("Set-Cookie")
	assert.Contains(t, header, "sesh=abc-s1")
	assert.Contains(t, header, "Path=/")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Cookie", "other=1; sesh=abc-s1")
	got, ok := FromRequest(req, DefaultCookieName)
	require.True(t, ok)
	assert.Equal(t, pair, got)

	_, ok = FromRequest(httptest.NewRequest(http.MethodGet, "/", nil), DefaultCookieName)
	assert.False(t, ok)
}
