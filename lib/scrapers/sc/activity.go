package sc

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"kite-agent/lib/timezone"
)

// Activity is one row of the public activity list, a link with the
// numeric id buried in its href.
type Activity struct {
	ID       int `cbor:"id"`
	Category int `cbor:"category"`
}

// ActivityDetail is the banner block of an activity page, a run of
// "key：value" lines.
type ActivityDetail struct {
	ID            int       `cbor:"id"`
	Category      int       `cbor:"category"`
	Title         string    `cbor:"title"`
	StartTime     time.Time `cbor:"start_time"`
	SignStartTime time.Time `cbor:"sign_start_time"`
	SignEndTime   time.Time `cbor:"sign_end_time"`
	Place         string    `cbor:"place"`
	Duration      string    `cbor:"duration"`
	Manager       string    `cbor:"manager"`
	Contact       string    `cbor:"contact"`
	Organizer     string    `cbor:"organizer"`
	Undertaker    string    `cbor:"undertaker"`
	Description   string    `cbor:"description"`
}

func (c *Client) GetActivityList(ctx context.Context, pageNo, pageSize int) ([]Activity, error) {
	ctx, span := tracer.Start(ctx, "GetActivityList")
	defer span.End()

	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	res, err := c.Http.Get(ctx, fmt.Sprintf(
		"%s/public/activity/activityList.action?pageNo=%d&pageSize=%d&categoryId=&activityName=",
		c.BaseURL, pageNo, pageSize))
	if err != nil {
		return nil, err
	}
	return ParseActivityListPage(res.Body())
}

func (c *Client) GetActivityDetail(ctx context.Context, activityID int) (*ActivityDetail, error) {
	ctx, span := tracer.Start(ctx, "GetActivityDetail")
	defer span.End()

	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}
	res, err := c.Http.Get(ctx, fmt.Sprintf(
		"%s/public/activity/activityDetail.action?activityId=%d", c.BaseURL, activityID))
	if err != nil {
		return nil, err
	}
	detail, err := ParseActivityDetailPage(res.Body())
	if err != nil {
		return nil, err
	}
	if detail.ID == 0 {
		detail.ID = activityID
	}
	return detail, nil
}

var activityIDRegex = regexp.MustCompile(`\d{7}`)

func ParseActivityListPage(page []byte) ([]Activity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}

	var activities []Activity
	doc.Find(".ul_7 li > a").Each(func(_ int, link *goquery.Selection) {
		href := link.AttrOr("href", "")
		match := activityIDRegex.FindString(href)
		if match == "" {
			return
		}
		id, _ := strconv.Atoi(match)
		activities = append(activities, Activity{ID: id})
	})
	return activities, nil
}

var multiSpaceRegex = regexp.MustCompile(`\s{2}\s+`)

func ParseActivityDetailPage(page []byte) (*ActivityDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}
	frame := doc.Find(".box-1")
	if frame.Length() == 0 {
		return nil, fmt.Errorf("activity page has no detail frame")
	}

	banner, _ := frame.Find(`div[style=" color:#7a7a7a; text-align:center"]`).Html()
	props := splitActivityProperties(banner)

	id, _ := strconv.Atoi(props["活动编号"])
	signStart, signEnd := parseSignTime(props["刷卡时间段"])

	description := frame.Find(`div[style="padding:30px 50px; font-size:14px;"]`).Text()
	description = strings.TrimSpace(regexp.MustCompile(`\s+`).ReplaceAllString(description, " "))

	return &ActivityDetail{
		ID:            id,
		Title:         strings.TrimSpace(frame.Find("h1").Text()),
		StartTime:     parseDateTime(props["活动开始时间"]),
		SignStartTime: signStart,
		SignEndTime:   signEnd,
		Place:         props["活动地点"],
		Duration:      props["活动时长"],
		Manager:       props["负责人"],
		Contact:       props["负责人电话"],
		Organizer:     props["主办方"],
		Undertaker:    props["承办方"],
		Description:   description,
	}, nil
}

// splitActivityProperties flattens the banner html into a key/value
// map, one "key：value" per visual line.
func splitActivityProperties(banner string) map[string]string {
	text := strings.ReplaceAll(banner, "&nbsp;", " ")
	text = strings.ReplaceAll(text, " ", " ")
	text = strings.ReplaceAll(text, "<br>", "")
	text = strings.ReplaceAll(text, "<br/>", "")
	text = multiSpaceRegex.ReplaceAllString(text, "\n")

	props := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "：")
		if !found {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}

func parseDateTime(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", strings.TrimSpace(s), timezone.Location)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseSignTime(s string) (time.Time, time.Time) {
	start, end, _ := strings.Cut(s, "--至--")
	return parseDateTime(start), parseDateTime(end)
}
