package campus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"

	"kite-agent/lib/session"
)

func TestRedirectChainKeepsCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "step1", Value: "a"})
		// relative location, resolved against the previous url
		w.Header().Set("Location", "/middle")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("step1")
		require.NoError(t, err)
		require.Equal(t, "a", c.Value)

		http.SetCookie(w, &http.Cookie{Name: "step2", Value: "b"})
		w.Header().Set("Location", "/end")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		for _, name := range []string{"step1", "step2"} {
			_, err := r.Cookie(name)
			require.NoError(t, err)
		}
		w.Write([]byte("done"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(session.New("1910100000", "pw"))
	res, err := client.Get(context.Background(), server.URL+"/start")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode())
	require.Equal(t, "done", string(res.Body()))

	// the chain left both cookies in the session
	host := "127.0.0.1"
	_, ok := client.Session.QueryCookie(host, "step1")
	require.True(t, ok)
	_, ok = client.Session.QueryCookie(host, "step2")
	require.True(t, ok)
}

func TestRedirectedPostBecomesGet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "1910100000", r.PostFormValue("username"))

		w.Header().Set("Location", "/home")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("home"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(session.New("1910100000", "pw"))
	res, err := client.PostForm(context.Background(), server.URL+"/login", map[string]string{
		"username": "1910100000",
	})
	require.NoError(t, err)
	require.Equal(t, "home", string(res.Body()))
}

func TestCookieHeaderSkippedWhenEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Values("Cookie"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(session.New("1910100000", "pw"))
	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
}

func TestRedirectLoopAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/again")
		w.WriteHeader(http.StatusFound)
	}))
	defer server.Close()

	client := NewClient(session.New("1910100000", "pw"))
	_, err := client.Get(context.Background(), server.URL)
	require.ErrorContains(t, err, "redirects")
}

func TestResponseHookCanRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("meta refresh page"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("final"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(session.New("1910100000", "pw"))
	client.OnResponse(func(res *resty.Response) (Action, error) {
		if string(res.Body()) == "meta refresh page" {
			return Redirect("/b"), nil
		}
		return Done, nil
	})

	res, err := client.Get(context.Background(), server.URL+"/a")
	require.NoError(t, err)
	require.Equal(t, "final", string(res.Body()))
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(context.Canceled)
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
