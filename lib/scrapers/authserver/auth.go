// Package authserver logs accounts into the campus single sign-on at
// authserver.sit.edu.cn. Every other portal subsystem trusts the
// CASTGC ticket this login leaves in the session.
package authserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"kite-agent/lib/campus"
	"kite-agent/lib/timezone"
)

var tracer = otel.Tracer("scrapers/authserver")

var (
	ErrLoginFailed      = errors.New("invalid username or password")
	ErrWrongCaptcha     = errors.New("captcha rejected")
	ErrFailToGetCaptcha = errors.New("failed to fetch captcha")
)

// the portal sometimes rejects a first valid attempt, but a handful of
// retries is always enough when the credentials are right
const maxLoginAttempts = 8
const loginRetryDelay = 100 * time.Millisecond

// captchas are always four glyphs; anything else is a misread that
// should be refetched, not submitted
const captchaCodeLength = 4
const maxCaptchaFetches = 5

const wrongCredentialsText = "您提供的用户名或者密码有误"
const wrongCaptchaText = "无效的验证码"

var saltRegex = regexp.MustCompile(`var pwdDefaultEncryptSalt = "(.*?)";`)

type Client struct {
	BaseURL string
	Http    *campus.Client
	Solver  CaptchaSolver
}

func NewClient(http *campus.Client, solver CaptchaSolver) *Client {
	return &Client{
		BaseURL: "https://authserver.sit.edu.cn",
		Http:    http,
		Solver:  solver,
	}
}

func (c *Client) hostname() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// loggedIn checks for the ticket granting cookie the sso hands out on
// success.
func (c *Client) loggedIn() bool {
	_, ok := c.Http.Session.QueryCookie(c.hostname(), "CASTGC")
	return ok
}

// PortalLogin authenticates the session's account against the sso.
// Wrong credentials fail immediately with ErrLoginFailed; transient
// refusals and misread captchas are retried a bounded number of times.
func (c *Client) PortalLogin(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "PortalLogin")
	defer span.End()

	err := campus.Retry(ctx, maxLoginAttempts, loginRetryDelay, func() error {
		return c.tryLogin(ctx)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (c *Client) tryLogin(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tryLogin")
	defer span.End()

	// start from a clean jar: a ticket the server has already expired
	// must not be mistaken for a fresh login below
	c.Http.Session.ClearCookies()

	res, err := c.Http.Get(ctx, c.BaseURL+"/authserver/login")
	if err != nil {
		return err
	}
	body := res.Body()

	salt := saltRegex.FindSubmatch(body)
	if salt == nil {
		return campus.Permanent(errors.New("no encrypt salt on the login page"))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	lt, ok := doc.Find("input[name=lt]").Attr("value")
	if !ok {
		return campus.Permanent(errors.New("no lt field on the login page"))
	}

	account := c.Http.Session.Account
	captcha, err := c.solveCaptchaIfNeeded(ctx, account)
	if err != nil {
		return err
	}

	encrypted, err := GeneratePasswordString(c.Http.Session.Password, string(salt[1]))
	if err != nil {
		return campus.Permanent(err)
	}

	form := map[string]string{
		"username":        account,
		"password":        encrypted,
		"dllt":            "userNamePasswordLogin",
		"execution":       "e1s1",
		"_eventId":        "submit",
		"rmShown":         "1",
		"lt":              lt,
		"captchaResponse": captcha,
	}
	res, err = c.Http.PostForm(ctx, c.BaseURL+"/authserver/login", form)
	if err != nil {
		return err
	}

	// classify the refusal first: the body is authoritative, cookies
	// are only proof of success when the server rejected nothing
	page := res.Body()
	if bytes.Contains(page, []byte(wrongCredentialsText)) {
		return campus.Permanent(ErrLoginFailed)
	}
	if bytes.Contains(page, []byte(wrongCaptchaText)) {
		return ErrWrongCaptcha
	}
	if c.loggedIn() {
		return nil
	}
	return fmt.Errorf("login refused with status %d", res.StatusCode())
}

// solveCaptchaIfNeeded asks the sso whether this account currently
// requires a captcha and runs the solver when it does.
func (c *Client) solveCaptchaIfNeeded(ctx context.Context, account string) (string, error) {
	probe := fmt.Sprintf(
		"%s/authserver/needCaptcha.html?username=%s&pwdEncrypt2=pwdEncryptSalt&_=%s",
		c.BaseURL, url.QueryEscape(account),
		strconv.FormatInt(timezone.Now().UnixMilli(), 10))
	res, err := c.Http.Get(ctx, probe)
	if err != nil {
		return "", err
	}
	if !bytes.Contains(res.Body(), []byte("true")) {
		return "", nil
	}

	// a blank or garbled image reads as a short code; refetch instead
	// of burning a whole login attempt on a string that cannot be right
	for fetch := 0; fetch < maxCaptchaFetches; fetch++ {
		img, err := c.Http.Get(ctx, c.BaseURL+"/authserver/captcha.html")
		if err != nil || img.StatusCode() != 200 || len(img.Body()) == 0 {
			continue
		}

		code, err := c.Solver.Solve(ctx, img.Body())
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrFailToGetCaptcha, err)
		}
		if len(code) == captchaCodeLength {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no %d character code after %d reads",
		ErrFailToGetCaptcha, captchaCodeLength, maxCaptchaFetches)
}
