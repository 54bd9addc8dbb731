// Package card scrapes campus card consumption records from
// card.sit.edu.cn. The page is served as GBK and trusts the OA portal
// session for authentication.
package card

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"golang.org/x/text/encoding/simplifiedchinese"

	"kite-agent/lib/campus"
	"kite-agent/lib/scrapers/authserver"
	"kite-agent/lib/timezone"
)

var tracer = otel.Tracer("scrapers/card")

type ExpenseRecord struct {
	Time    time.Time `cbor:"ts"`
	Amount  float64   `cbor:"amount"`
	Address string    `cbor:"address"`
}

type PageInfo struct {
	Current int `cbor:"current"`
	Total   int `cbor:"total"`
}

type ExpensePage struct {
	Records []ExpenseRecord `cbor:"records"`
	Page    PageInfo        `cbor:"page"`
}

type ExpenseQuery struct {
	Page      int
	StartDate string
	EndDate   string
}

type Client struct {
	BaseURL string
	// OAHome is the portal page that proves the session is alive.
	OAHome string
	Http   *campus.Client
}

func NewClient(http *campus.Client) *Client {
	return &Client{
		BaseURL: "http://card.sit.edu.cn",
		OAHome:  "https://myportal.sit.edu.cn/",
		Http:    http,
	}
}

// MakeSureActive checks the OA portal and re-runs the sso login when
// the session has gone stale. A reachable OA home implies the card
// system will accept us too.
func (c *Client) MakeSureActive(ctx context.Context, sso *authserver.Client) error {
	ctx, span := tracer.Start(ctx, "MakeSureActive")
	defer span.End()

	res, err := c.Http.Get(ctx, c.OAHome)
	if err != nil {
		return err
	}
	if res.RawResponse != nil && res.RawResponse.Request.URL.Path == "/" {
		return nil
	}

	if err := sso.PortalLogin(ctx); err != nil {
		return err
	}
	_, err = c.Http.Get(ctx, c.OAHome)
	return err
}

func (c *Client) GetExpensePage(ctx context.Context, query ExpenseQuery) (*ExpensePage, error) {
	ctx, span := tracer.Start(ctx, "GetExpensePage")
	defer span.End()

	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.StartDate != "" {
		params.Set("from", query.StartDate)
	}
	if query.EndDate != "" {
		params.Set("to", query.EndDate)
	}

	link := c.BaseURL + "/personalxiaofei.jsp"
	if encoded := params.Encode(); encoded != "" {
		link += "?" + encoded
	}
	res, err := c.Http.Get(ctx, link)
	if err != nil {
		return nil, err
	}

	// the card system still answers in GBK
	html, err := simplifiedchinese.GBK.NewDecoder().Bytes(res.Body())
	if err != nil {
		return nil, fmt.Errorf("expense page is not valid gbk: %w", err)
	}
	return ParseExpensePage(html)
}

var (
	currentPageRegex = regexp.MustCompile(`第(\d+)页`)
	totalPagesRegex  = regexp.MustCompile(`共(\d+)页`)
)

func ParseExpensePage(page []byte) (*ExpensePage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}

	pager := doc.Find(`#listContent[align=right]`)
	if pager.Length() == 0 {
		return nil, fmt.Errorf("expense page has no pager block")
	}
	pagerText := pager.Text()

	result := &ExpensePage{}
	if m := currentPageRegex.FindStringSubmatch(pagerText); m != nil {
		result.Page.Current, _ = strconv.Atoi(m[1])
	}
	if m := totalPagesRegex.FindStringSubmatch(pagerText); m != nil {
		result.Page.Total, _ = strconv.Atoi(m[1])
	}

	doc.Find("#table > tbody > tr").Each(func(i int, row *goquery.Selection) {
		// row 0 is the header
		if i == 0 {
			return
		}
		fields := row.Find("td > div[align=center]").Map(func(_ int, cell *goquery.Selection) string {
			return strings.TrimSpace(cell.Text())
		})
		if len(fields) < 6 {
			return
		}

		ts, err := time.ParseInLocation("2006-01-02 15:04:05",
			fields[2]+" "+fields[3], timezone.Location)
		if err != nil {
			return
		}
		amount, _ := strconv.ParseFloat(fields[4], 64)
		result.Records = append(result.Records, ExpenseRecord{
			Time:    ts,
			Amount:  amount,
			Address: fields[5],
		})
	})

	return result, nil
}
