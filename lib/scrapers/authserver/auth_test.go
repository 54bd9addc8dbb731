package authserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"kite-agent/lib/campus"
	"kite-agent/lib/session"
)

const loginPage = `<html><head>
<script>var pwdDefaultEncryptSalt = "0123456789abcdef";</script>
</head><body>
<form><input type="hidden" name="lt" value="LT-12345-test"/></form>
</body></html>`

type fixedSolver struct {
	codes []string
	next  atomic.Int32
}

func (s *fixedSolver) Solve(ctx context.Context, img []byte) (string, error) {
	i := int(s.next.Add(1)) - 1
	if i >= len(s.codes) {
		i = len(s.codes) - 1
	}
	return s.codes[i], nil
}

type portalOptions struct {
	needCaptcha  bool
	captchaCode  string
	wrongPass    bool
	loginCalls   *atomic.Int32
	captchaCalls *atomic.Int32
}

func fakePortal(t *testing.T, opts portalOptions) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/authserver/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, loginPage)
			return
		}
		if opts.loginCalls != nil {
			opts.loginCalls.Add(1)
		}

		require.NoError(t, r.ParseForm())
		require.Equal(t, "userNamePasswordLogin", r.PostFormValue("dllt"))
		require.Equal(t, "LT-12345-test", r.PostFormValue("lt"))
		require.NotEmpty(t, r.PostFormValue("password"))

		if opts.wrongPass {
			fmt.Fprintf(w, "<html><body><span id=\"msg\">%s</span></body></html>",
				"您提供的用户名或者密码有误")
			return
		}
		if opts.needCaptcha && r.PostFormValue("captchaResponse") != opts.captchaCode {
			fmt.Fprint(w, "<html><body><span id=\"msg\">无效的验证码</span></body></html>")
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "CASTGC", Value: "TGT-1-test"})
		w.Header().Set("Location", "/authserver/index.do")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/authserver/index.do", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>welcome</body></html>")
	})
	mux.HandleFunc("/authserver/needCaptcha.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%v", opts.needCaptcha)
	})
	mux.HandleFunc("/authserver/captcha.html", func(w http.ResponseWriter, r *http.Request) {
		if opts.captchaCalls != nil {
			opts.captchaCalls.Add(1)
		}
		w.Write([]byte("\x89PNG fake image bytes"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server, solver CaptchaSolver) *Client {
	c := NewClient(campus.NewClient(session.New("1910100000", "password")), solver)
	c.BaseURL = server.URL
	return c
}

func TestPortalLoginSuccess(t *testing.T) {
	var loginCalls atomic.Int32
	server := fakePortal(t, portalOptions{loginCalls: &loginCalls})
	c := newTestClient(server, &fixedSolver{codes: []string{""}})

	err := c.PortalLogin(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), loginCalls.Load())

	value, ok := c.Http.Session.QueryCookie("127.0.0.1", "CASTGC")
	require.True(t, ok)
	require.Equal(t, "TGT-1-test", value)
}

func TestPortalLoginWrongPassword(t *testing.T) {
	var loginCalls atomic.Int32
	server := fakePortal(t, portalOptions{wrongPass: true, loginCalls: &loginCalls})
	c := newTestClient(server, &fixedSolver{codes: []string{""}})

	err := c.PortalLogin(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	// no retries on a rejected password
	require.Equal(t, int32(1), loginCalls.Load())
}

func TestPortalLoginStaleTicketWrongPassword(t *testing.T) {
	var loginCalls atomic.Int32
	server := fakePortal(t, portalOptions{wrongPass: true, loginCalls: &loginCalls})
	c := newTestClient(server, &fixedSolver{codes: []string{""}})

	// a ticket from an earlier run that the server no longer accepts
	c.Http.Session.SyncCookies("127.0.0.1", []*http.Cookie{
		{Name: "CASTGC", Value: "TGT-expired"},
	})

	err := c.PortalLogin(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, int32(1), loginCalls.Load())

	// the stale ticket is gone, not mistaken for a fresh login
	_, ok := c.Http.Session.QueryCookie("127.0.0.1", "CASTGC")
	require.False(t, ok)
}

func TestPortalLoginCaptchaRetry(t *testing.T) {
	var loginCalls, captchaCalls atomic.Int32
	server := fakePortal(t, portalOptions{
		needCaptcha:  true,
		captchaCode:  "ab12",
		loginCalls:   &loginCalls,
		captchaCalls: &captchaCalls,
	})
	// first read is wrong, second is right
	c := newTestClient(server, &fixedSolver{codes: []string{"zzzz", "ab12"}})

	err := c.PortalLogin(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), loginCalls.Load())
	require.Equal(t, int32(2), captchaCalls.Load())
}

func TestShortCaptchaReadIsRefetched(t *testing.T) {
	var loginCalls, captchaCalls atomic.Int32
	server := fakePortal(t, portalOptions{
		needCaptcha:  true,
		captchaCode:  "ab12",
		loginCalls:   &loginCalls,
		captchaCalls: &captchaCalls,
	})
	// the first read comes back two glyphs short; it must never be
	// submitted, only refetched
	c := newTestClient(server, &fixedSolver{codes: []string{"zz", "ab12"}})

	err := c.PortalLogin(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), loginCalls.Load())
	require.Equal(t, int32(2), captchaCalls.Load())
}

func TestPortalLoginMissingSaltIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>maintenance</body></html>")
	}))
	t.Cleanup(server.Close)
	c := newTestClient(server, &fixedSolver{codes: []string{""}})

	err := c.PortalLogin(context.Background())
	require.ErrorContains(t, err, "encrypt salt")
}
