package sc

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// JoinedActivity is one row of the personal center's application list.
type JoinedActivity struct {
	Title     string    `cbor:"title"`
	ApplyID   string    `cbor:"apply_id"`
	ApplyTime time.Time `cbor:"apply_time"`
	Score     float64   `cbor:"score"`
}

// ScoreItem is one scored activity from the personal score detail
// page.
type ScoreItem struct {
	ActivityID int     `cbor:"activity_id"`
	Amount     float64 `cbor:"amount"`
}

func (c *Client) GetMyActivities(ctx context.Context) ([]JoinedActivity, error) {
	ctx, span := tracer.Start(ctx, "GetMyActivities")
	defer span.End()

	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	res, err := c.Http.Get(ctx, c.BaseURL+"/public/pcenter/activityOrderList.action")
	if err != nil {
		return nil, err
	}
	return ParseMyActivityPage(res.Body())
}

func (c *Client) GetMyScores(ctx context.Context) ([]ScoreItem, error) {
	ctx, span := tracer.Start(ctx, "GetMyScores")
	defer span.End()

	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	res, err := c.Http.Get(ctx, c.BaseURL+"/public/pcenter/scoreDetail.action")
	if err != nil {
		return nil, err
	}
	return ParseMyScorePage(res.Body())
}

var scoreAmountRegex = regexp.MustCompile(`\+(\d+(?:\.\d+)?)`)

func ParseMyActivityPage(page []byte) ([]JoinedActivity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}

	var activities []JoinedActivity
	doc.Find(`table[width="100%"] tbody tr`).Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td").Map(func(_ int, cell *goquery.Selection) string {
			return strings.TrimSpace(cell.Text())
		})
		if len(cols) < 5 {
			return
		}

		var score float64
		if m := scoreAmountRegex.FindStringSubmatch(cols[4]); m != nil {
			score, _ = strconv.ParseFloat(m[1], 64)
		}
		activities = append(activities, JoinedActivity{
			Title:     cols[0],
			ApplyID:   cols[2],
			ApplyTime: parseDateTime(cols[3]),
			Score:     score,
		})
	})
	return activities, nil
}

func ParseMyScorePage(page []byte) ([]ScoreItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}

	var items []ScoreItem
	doc.Find("#div1 div.table_style_4 form table:nth-child(4) tbody tr").Each(func(_ int, row *goquery.Selection) {
		id, _ := strconv.Atoi(strings.TrimSpace(row.Find("td:nth-child(3)").Text()))
		amount, _ := strconv.ParseFloat(
			strings.TrimSpace(row.Find("td:nth-child(5) > span").Text()), 64)
		// zero rows are pending audits, not real scores
		if amount <= 0.01 {
			return
		}
		items = append(items, ScoreItem{ActivityID: id, Amount: amount})
	})
	return items, nil
}
