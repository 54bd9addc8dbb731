package jwxt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"kite-agent/lib/campus"
	"kite-agent/lib/scrapers/authserver"
	"kite-agent/lib/session"
)

const testCsrfPage = `<html><body><form>` +
	`<input type="hidden" id="csrftoken" name="csrftoken" value="token-abc"/>` +
	`</form></body></html>`

func fakeZhengfang(t *testing.T, key *rsa.PrivateKey, wrongPass bool) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/jwglxt/xtgl/login_slogin.html", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, testCsrfPage)
			return
		}

		require.NoError(t, r.ParseForm())
		require.Equal(t, "token-abc", r.PostFormValue("csrftoken"))
		require.Equal(t, "1910100000", r.PostFormValue("yhm"))

		sealed, err := base64.StdEncoding.DecodeString(r.PostFormValue("mm"))
		require.NoError(t, err)
		plain, err := rsa.DecryptPKCS1v15(nil, key, sealed)
		require.NoError(t, err)

		if wrongPass || string(plain) != "password" {
			fmt.Fprintf(w, `%s<p id="tips">用户名或密码不正确</p>`, testCsrfPage)
			return
		}
		w.Header().Set("Location", "/jwglxt/xtgl/index_initMenu.html")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/jwglxt/xtgl/login_getPublicKey.html", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"modulus":  base64.StdEncoding.EncodeToString(key.N.Bytes()),
			"exponent": base64.StdEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	})
	mux.HandleFunc("/jwglxt/xtgl/index_initMenu.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>menu</body></html>")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestLoginSuccess(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	server := fakeZhengfang(t, key, false)

	c := NewClient(campus.NewClient(session.New("1910100000", "password")))
	c.BaseURL = server.URL

	require.NoError(t, c.Login(context.Background()))
}

func TestLoginWrongPassword(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	server := fakeZhengfang(t, key, true)

	c := NewClient(campus.NewClient(session.New("1910100000", "password")))
	c.BaseURL = server.URL

	err = c.Login(context.Background())
	require.ErrorIs(t, err, authserver.ErrLoginFailed)
}

func TestSemesterRawRoundTrip(t *testing.T) {
	for _, semester := range []Semester{SemesterAll, SemesterFirst, SemesterSecond, SemesterMid} {
		back, err := SemesterFromRaw(semester.Raw())
		require.NoError(t, err)
		require.Equal(t, semester, back)
	}
	_, err := SemesterFromRaw("7")
	require.Error(t, err)
}

func TestSchoolYearRaw(t *testing.T) {
	require.Equal(t, "", SchoolYear(0).Raw())
	require.Equal(t, "2021", SchoolYear(2021).Raw())
}
