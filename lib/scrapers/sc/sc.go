// Package sc scrapes the "second course" extracurricular activity
// system at sc.sit.edu.cn: activity lists and details, the account's
// joined activities and scores, and activity sign-up.
package sc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"

	"kite-agent/lib/campus"
)

var tracer = otel.Tracer("scrapers/sc")

// the sso redirect that leaves a usable JSESSIONID on sc.sit.edu.cn
const defaultCookiePage = "https://authserver.sit.edu.cn/authserver/login?service=http%3A%2F%2Fsc.sit.edu.cn%2F"

type Client struct {
	BaseURL    string
	CookiePage string
	Http       *campus.Client
}

func NewClient(http *campus.Client) *Client {
	return &Client{
		BaseURL:    "http://sc.sit.edu.cn",
		CookiePage: defaultCookiePage,
		Http:       http,
	}
}

func (c *Client) hostname() string {
	return strings.TrimPrefix(strings.TrimPrefix(c.BaseURL, "http://"), "https://")
}

// ensureSession primes the activity system's JSESSIONID through the
// sso service redirect when the session does not carry one yet. The
// sso login itself must already be done.
func (c *Client) ensureSession(ctx context.Context) error {
	if _, ok := c.Http.Session.QueryCookie(c.hostname(), "JSESSIONID"); ok {
		return nil
	}
	_, err := c.Http.Get(ctx, c.CookiePage)
	return err
}

// JoinActivity signs the account up for an activity. The endpoint
// answers with a bare numeric code.
func (c *Client) JoinActivity(ctx context.Context, activityID int) error {
	ctx, span := tracer.Start(ctx, "JoinActivity")
	defer span.End()

	if err := c.ensureSession(ctx); err != nil {
		return err
	}
	res, err := c.Http.Get(ctx, fmt.Sprintf(
		"%s/public/pcenter/applyActivity.action?activityId=%d", c.BaseURL, activityID))
	if err != nil {
		return err
	}
	return ParseJoinResult(res.Body())
}

var joinMessages = map[int]string{
	1: "您的个人信息不全，请补全您的信息！",
	2: "您已申请过该活动，不能重复申请！",
	3: "对不起，您今天的申请次数已达上限！",
	4: "对不起，该活动的申请人数已达上限！",
	5: "对不起，该活动已过期并停止申请！",
	6: "您已申请过该时间段的活动，不能重复申请！",
	7: "对不起，您不能申请该活动！",
	8: "对不起，您不在该活动的范围内！",
}

func ParseJoinResult(body []byte) error {
	code, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return fmt.Errorf("unrecognized join response %q", body)
	}
	if code == 0 {
		return nil
	}
	message, ok := joinMessages[code]
	if !ok {
		message = "未知错误"
	}
	return fmt.Errorf("join rejected (%d): %s", code, message)
}
