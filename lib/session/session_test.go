package session

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCookieString(t *testing.T) {
	s := New("1910100000", "password")
	s.SyncCookies("sit.edu.cn", []*http.Cookie{
		{Name: "JSESSIONID", Value: "abc123"},
	})
	s.SyncCookies("jwxt.sit.edu.cn", []*http.Cookie{
		{Name: "route", Value: "node1"},
	})

	// suffix match pulls in both the parent and the exact domain
	require.Equal(t, "JSESSIONID=abc123;route=node1;",
		s.GetCookieString("jwxt.sit.edu.cn"))
	require.Equal(t, "JSESSIONID=abc123;", s.GetCookieString("sc.sit.edu.cn"))
	require.Equal(t, "", s.GetCookieString("example.com"))
}

func TestGetCookieStringOverwrite(t *testing.T) {
	s := New("1910100000", "password")
	s.SyncCookies("sit.edu.cn", []*http.Cookie{
		{Name: "token", Value: "parent"},
	})
	s.SyncCookies("jwxt.sit.edu.cn", []*http.Cookie{
		{Name: "token", Value: "child"},
	})

	// "sit.edu.cn" sorts after "jwxt.sit.edu.cn" so its value wins
	require.Equal(t, "token=parent;", s.GetCookieString("jwxt.sit.edu.cn"))
	require.Equal(t, "token=parent;", s.GetCookieString("sit.edu.cn"))
}

func TestSuffixMatchHasNoDotBoundary(t *testing.T) {
	s := New("1910100000", "password")
	s.SyncCookies("sit.edu.cn", []*http.Cookie{
		{Name: "a", Value: "1"},
	})
	s.SyncCookies(".sit.edu.cn", []*http.Cookie{
		{Name: "b", Value: "2"},
	})

	// plain suffix matching: "evil-sit.edu.cn" matches "sit.edu.cn"
	// but not ".sit.edu.cn"
	require.Equal(t, "a=1;", s.GetCookieString("evil-sit.edu.cn"))
	require.Equal(t, "a=1;b=2;", s.GetCookieString("jwxt.sit.edu.cn"))
}

func TestSyncCookiesDomainAttribute(t *testing.T) {
	s := New("1910100000", "password")
	s.SyncCookies("authserver.sit.edu.cn", []*http.Cookie{
		{Name: "CASTGC", Value: "TGT-1"},
		{Name: "shared", Value: "x", Domain: ".sit.edu.cn"},
	})

	require.Len(t, s.Cookies["authserver.sit.edu.cn"], 1)
	require.Equal(t, "x", s.Cookies[".sit.edu.cn"]["shared"])

	value, ok := s.QueryCookie("authserver.sit.edu.cn", "CASTGC")
	require.True(t, ok)
	require.Equal(t, "TGT-1", value)

	_, ok = s.QueryCookie("jwxt.sit.edu.cn", "CASTGC")
	require.False(t, ok)
}

func TestClearCookies(t *testing.T) {
	s := New("1910100000", "password")
	s.SyncCookies("sit.edu.cn", []*http.Cookie{{Name: "a", Value: "1"}})
	s.ClearCookies()
	require.Equal(t, "", s.GetCookieString("sit.edu.cn"))
}

func TestTouchAdvancesLastUpdate(t *testing.T) {
	s := New("1910100000", "password")
	before := s.LastUpdate
	s.Touch()
	require.False(t, s.LastUpdate.Before(before))
}
