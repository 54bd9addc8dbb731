package campus

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"kite-agent/lib/campus/useragent"
	"kite-agent/lib/session"
	"kite-agent/lib/telemetry"
)

// Action tells the redirect loop what to do after a response hook ran.
// The zero value means the exchange is finished.
type Action struct {
	// Redirect, when non-empty, is the location to fetch next. It may
	// be relative to the url the response came from.
	Redirect string
}

var Done = Action{}

func Redirect(location string) Action {
	return Action{Redirect: location}
}

// RequestHook can mutate the outgoing request, e.g. to add headers a
// specific portal subsystem wants.
type RequestHook func(req *resty.Request)

// ResponseHook inspects a response and decides whether the client
// should keep following the exchange. Hooks run in registration order,
// the first one that asks for a redirect wins.
type ResponseHook func(res *resty.Response) (Action, error)

// DefaultResponseHook follows ordinary http redirects. Campus portals
// love bouncing logins through three or four Location headers, some of
// them relative, so this is registered on every new client.
func DefaultResponseHook(res *resty.Response) (Action, error) {
	code := res.StatusCode()
	if code < 300 || code >= 400 {
		return Done, nil
	}
	location := res.Header().Get("Location")
	if location == "" {
		return Done, fmt.Errorf("status %d without a location header", code)
	}
	return Redirect(location), nil
}

// Client is an http client bound to one account's session. It never
// lets the underlying transport follow redirects on its own: every hop
// goes through the hooks so the session's cookies stay in sync across
// domains (the whole point of an SSO login chain).
type Client struct {
	Session *session.Session

	http          *resty.Client
	requestHooks  []RequestHook
	responseHooks []ResponseHook
	maxRedirects  int
}

// Option tweaks a new client, e.g. to route through a proxy.
type Option func(*Client)

// WithProxy routes every request through the given proxy url. Some
// deployments can only reach the portal through a campus-side proxy.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		c.http.SetProxy(proxyURL)
	}
}

func NewClient(s *session.Session, opts ...Option) *Client {
	client := resty.New()
	client.SetRedirectPolicy(resty.NoRedirectPolicy())
	client.SetTimeout(time.Second * 30)
	client.SetHeader("User-Agent", useragent.Random())

	telemetry.InstrumentResty(client, "campus/http")

	c := &Client{
		Session:      s,
		http:         client,
		maxRedirects: 10,
	}
	c.OnResponse(DefaultResponseHook)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) OnRequest(hook RequestHook) {
	c.requestHooks = append(c.requestHooks, hook)
}

func (c *Client) OnResponse(hook ResponseHook) {
	c.responseHooks = append(c.responseHooks, hook)
}

func (c *Client) Get(ctx context.Context, link string) (*resty.Response, error) {
	return c.execute(ctx, resty.MethodGet, link, nil)
}

func (c *Client) PostForm(ctx context.Context, link string, form map[string]string) (*resty.Response, error) {
	return c.execute(ctx, resty.MethodPost, link, form)
}

func (c *Client) execute(ctx context.Context, method, link string, form map[string]string) (*resty.Response, error) {
	current, err := url.Parse(link)
	if err != nil {
		return nil, err
	}

	for hop := 0; hop <= c.maxRedirects; hop++ {
		req := c.http.R().SetContext(ctx)
		if form != nil {
			req.SetFormData(form)
		}
		if cookies := c.Session.GetCookieString(current.Hostname()); cookies != "" {
			req.SetHeader("Cookie", cookies)
		}
		for _, hook := range c.requestHooks {
			hook(req)
		}

		res, err := req.Execute(method, current.String())
		if err != nil {
			// NoRedirectPolicy reports a 3xx answer as an error, but
			// the response is still there and the hooks want it
			if res == nil || res.StatusCode() < 300 || res.StatusCode() >= 400 {
				return nil, err
			}
		}

		c.Session.SyncCookies(current.Hostname(), res.Cookies())
		c.Session.Touch()

		action := Done
		for _, hook := range c.responseHooks {
			action, err = hook(res)
			if err != nil {
				return nil, err
			}
			if action.Redirect != "" {
				break
			}
		}
		if action.Redirect == "" {
			return res, nil
		}

		next, err := url.Parse(action.Redirect)
		if err != nil {
			return nil, err
		}
		// relative locations inherit the previous scheme and host
		current = current.ResolveReference(next)

		// a redirected POST is replayed as a GET, like a browser would
		method = resty.MethodGet
		form = nil
	}

	return nil, fmt.Errorf("more than %d redirects fetching %s", c.maxRedirects, link)
}
