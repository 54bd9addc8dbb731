// Package jwxt scrapes the zhengfang educational administration system
// at jwxt.sit.edu.cn: scores, timetables, majors, classes, exams and
// the student profile. The system accepts either its own RSA login or
// a ticket from the campus sso.
package jwxt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"

	"kite-agent/lib/campus"
	"kite-agent/lib/scrapers/authserver"
)

var tracer = otel.Tracer("scrapers/jwxt")

const (
	loginPath        = "/jwglxt/xtgl/login_slogin.html"
	publicKeyPath    = "/jwglxt/xtgl/login_getPublicKey.html"
	scoreListPath    = "/jwglxt/cjcx/cjcx_cxDgXscj.html?doType=query&gnmkdm=N305005"
	scoreDetailPath  = "/jwglxt/cjcx/cjcx_cxCjxqGjh.html?gnmkdm=N305005"
	timetablePath    = "/jwglxt/kbcx/xskbcx_cxXsKb.html?gnmkdm=N253508"
	profilePath      = "/jwglxt/xsxxxggl/xsgrxxwh_cxXsgrxx.html?gnmkdm=N100801&layout=default"
	majorListPath    = "/jwglxt/xtgl/comm_cxZyfxList.html?gnmkdm=N214505"
	classListPath    = "/jwglxt/xtgl/comm_cxBjdmList.html?gnmkdm=N214505"
	suggestedPath    = "/jwglxt/kbdy/bjkbdy_cxBjKb.html?gnmkdm=N214505"
	examPath         = "/jwglxt/kwgl/kscx_cxXsksxxIndex.html?doType=query&gnmkdm=N358105"
	defaultSSOBounce = "https://authserver.sit.edu.cn/authserver/login?service=http%3A%2F%2Fjwxt.sit.edu.cn%2Fsso%2Fjziotlogin"
)

var csrfTokenRegex = regexp.MustCompile(
	`<input type="hidden" id="csrftoken" name="csrftoken" value="(.*)"/>`)

// SchoolYear selects one academic year by its starting calendar year,
// e.g. 2021 means 2021-2022. The zero value queries every year.
type SchoolYear int

func (y SchoolYear) Raw() string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(int(y))
}

type Semester int

const (
	SemesterAll Semester = iota
	SemesterFirst
	SemesterSecond
	SemesterMid
)

// Raw returns the magic code the zhengfang backend uses for the term.
func (s Semester) Raw() string {
	switch s {
	case SemesterFirst:
		return "3"
	case SemesterSecond:
		return "12"
	case SemesterMid:
		return "16"
	default:
		return ""
	}
}

func SemesterFromRaw(raw string) (Semester, error) {
	switch raw {
	case "":
		return SemesterAll, nil
	case "3":
		return SemesterFirst, nil
	case "12":
		return SemesterSecond, nil
	case "16":
		return SemesterMid, nil
	}
	return SemesterAll, fmt.Errorf("unknown semester code %q", raw)
}

type Client struct {
	BaseURL string
	// SSORedirect bounces the sso ticket into the zhengfang system.
	SSORedirect string
	Http        *campus.Client
}

func NewClient(http *campus.Client) *Client {
	return &Client{
		BaseURL:     "http://jwxt.sit.edu.cn",
		SSORedirect: defaultSSOBounce,
		Http:        http,
	}
}

// onLoginPage reports whether a fetched page is the zhengfang login
// form, which is how an expired session announces itself.
func onLoginPage(body []byte) bool {
	return csrfTokenRegex.Match(body)
}

// Login authenticates directly against zhengfang with the rsa scheme.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	c.Http.Session.ClearCookies()

	res, err := c.Http.Get(ctx, c.BaseURL+loginPath)
	if err != nil {
		return err
	}
	match := csrfTokenRegex.FindSubmatch(res.Body())
	if match == nil {
		return campus.Permanent(errors.New("no csrf token on the login page"))
	}

	modulus, exponent, err := c.fetchPublicKey(ctx)
	if err != nil {
		return err
	}
	encrypted, err := encryptPassword(c.Http.Session.Password, modulus, exponent)
	if err != nil {
		return campus.Permanent(err)
	}

	res, err = c.Http.PostForm(ctx, c.BaseURL+loginPath, map[string]string{
		"csrftoken": string(match[1]),
		"language":  "zh_CN",
		"yhm":       c.Http.Session.Account,
		"mm":        encrypted,
	})
	if err != nil {
		return err
	}
	if !onLoginPage(res.Body()) {
		return nil
	}

	tips := loginErrMessage(res.Body())
	if strings.Contains(tips, "用户名或密码") {
		return authserver.ErrLoginFailed
	}
	return fmt.Errorf("zhengfang login rejected: %s", tips)
}

func loginErrMessage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("p#tips").Text())
}

// MakeSureActive revives the zhengfang session if it expired: re-login
// on the sso, then bounce its ticket through the service redirect.
func (c *Client) MakeSureActive(ctx context.Context, sso *authserver.Client) error {
	ctx, span := tracer.Start(ctx, "MakeSureActive")
	defer span.End()

	res, err := c.Http.Get(ctx, c.BaseURL)
	if err != nil {
		return err
	}
	if !onLoginPage(res.Body()) {
		return nil
	}

	if err := sso.PortalLogin(ctx); err != nil {
		return err
	}
	res, err = c.Http.Get(ctx, c.SSORedirect)
	if err != nil {
		return err
	}
	if onLoginPage(res.Body()) {
		// the sso hop did not take, fall back to the direct login
		return c.Login(ctx)
	}
	return nil
}

// postQuery sends a query form and hands the json body back.
func (c *Client) postQuery(ctx context.Context, path string, form map[string]string) ([]byte, error) {
	res, err := c.Http.PostForm(ctx, c.BaseURL+path, form)
	if err != nil {
		return nil, err
	}
	if onLoginPage(res.Body()) {
		return nil, errors.New("zhengfang session expired mid-request")
	}
	return res.Body(), nil
}
