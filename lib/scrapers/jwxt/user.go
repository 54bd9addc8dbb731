package jwxt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Course is one cell of a timetable. TimeIndex and Weeks are bitmasks,
// bit n set means section/week n (1-based, bit 0 unused).
type Course struct {
	Name           string   `cbor:"course_name" json:"course_name"`
	Day            int      `cbor:"day" json:"day"`
	TimeIndex      int      `cbor:"time_index" json:"time_index"`
	Weeks          int      `cbor:"week" json:"week"`
	Place          string   `cbor:"place" json:"place"`
	Teachers       []string `cbor:"teacher" json:"teacher"`
	Campus         string   `cbor:"campus" json:"campus"`
	Credit         float64  `cbor:"credit" json:"credit"`
	Hours          float64  `cbor:"hours" json:"hours"`
	DynClassID     string   `cbor:"dyn_class_id" json:"dyn_class_id"`
	CourseID       string   `cbor:"course_id" json:"course_id"`
	PreferredClass []string `cbor:"prefered_class" json:"prefered_class"`
}

type Score struct {
	Value      float64  `cbor:"score" json:"score"`
	Course     string   `cbor:"course" json:"course"`
	CourseID   string   `cbor:"course_id" json:"course_id"`
	ClassID    string   `cbor:"class_id" json:"class_id"`
	SchoolYear string   `cbor:"school_year" json:"school_year"`
	Semester   Semester `cbor:"semester" json:"semester"`
	Credit     float64  `cbor:"credit" json:"credit"`
}

type ScoreDetail struct {
	ScoreType  string  `cbor:"score_type" json:"score_type"`
	Percentage string  `cbor:"percentage" json:"percentage"`
	Score      float64 `cbor:"score" json:"score"`
}

type Profile struct {
	StudentNo      string `cbor:"student_no" json:"student_no"`
	Name           string `cbor:"name" json:"name"`
	NameEng        string `cbor:"name_eng" json:"name_eng"`
	Sex            string `cbor:"sex" json:"sex"`
	CredentialType string `cbor:"credential_type" json:"credential_type"`
	CredentialID   string `cbor:"credential_id" json:"credential_id"`
	BirthDate      string `cbor:"birth_date" json:"birth_date"`
	Ethnicity      string `cbor:"ethnicity" json:"ethnicity"`
	Hometown       string `cbor:"hometown" json:"hometown"`
	EnrollmentDate string `cbor:"enrollment_date" json:"enrollment_date"`
	Type           string `cbor:"types" json:"types"`
}

func (c *Client) GetTimetable(ctx context.Context, year SchoolYear, semester Semester) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "GetTimetable")
	defer span.End()

	body, err := c.postQuery(ctx, timetablePath, map[string]string{
		"xnm": year.Raw(),
		"xqm": semester.Raw(),
	})
	if err != nil {
		return nil, err
	}
	return ParseTimetablePage(body)
}

func (c *Client) GetScoreList(ctx context.Context, year SchoolYear, semester Semester) ([]Score, error) {
	ctx, span := tracer.Start(ctx, "GetScoreList")
	defer span.End()

	body, err := c.postQuery(ctx, scoreListPath, map[string]string{
		"xnm":                  year.Raw(),
		"xqm":                  semester.Raw(),
		"queryModel.showCount": "5000",
	})
	if err != nil {
		return nil, err
	}
	return ParseScoreListPage(body)
}

func (c *Client) GetScoreDetail(ctx context.Context, year SchoolYear, semester Semester, classID string) ([]ScoreDetail, error) {
	ctx, span := tracer.Start(ctx, "GetScoreDetail")
	defer span.End()

	res, err := c.Http.PostForm(ctx, c.BaseURL+scoreDetailPath, map[string]string{
		"xnm":    year.Raw(),
		"xqm":    semester.Raw(),
		"jxb_id": classID,
	})
	if err != nil {
		return nil, err
	}
	return ParseScoreDetailPage(res.Body())
}

func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	ctx, span := tracer.Start(ctx, "GetProfile")
	defer span.End()

	res, err := c.Http.Get(ctx, c.BaseURL+profilePath)
	if err != nil {
		return nil, err
	}
	return ParseProfilePage(res.Body())
}

// CalculateGPA converts a centesimal average into the campus 5-point
// scale, weighted by credit.
func CalculateGPA(scores []Score) float64 {
	var totalCredit, sum float64
	for _, s := range scores {
		sum += s.Credit * s.Value
		totalCredit += s.Credit
	}
	if totalCredit == 0 {
		return 0
	}
	return sum/totalCredit/10 - 5
}

// courseItem mirrors a kbList entry. Zhengfang sends numbers as
// strings.
type courseItem struct {
	Kcmc  string `json:"kcmc"`
	Xqjmc string `json:"xqjmc"`
	Jcs   string `json:"jcs"`
	Zcd   string `json:"zcd"`
	Cdmc  string `json:"cdmc"`
	Xm    string `json:"xm"`
	Xqmc  string `json:"xqmc"`
	Xf    string `json:"xf"`
	Zxs   string `json:"zxs"`
	Jxbmc string `json:"jxbmc"`
	Kch   string `json:"kch"`
	Jxbzc string `json:"jxbzc"`
}

func ParseTimetablePage(page []byte) ([]Course, error) {
	var doc struct {
		KbList []courseItem `json:"kbList"`
	}
	if err := json.Unmarshal(page, &doc); err != nil {
		return nil, err
	}

	var courses []Course
	for _, item := range doc.KbList {
		courses = append(courses, Course{
			Name:           item.Kcmc,
			Day:            weekdayIndex(item.Xqjmc),
			TimeIndex:      toBitmask(expandTimeIndex(item.Jcs)),
			Weeks:          toBitmask(expandWeeks(item.Zcd)),
			Place:          item.Cdmc,
			Teachers:       splitList(item.Xm),
			Campus:         item.Xqmc,
			Credit:         parseFloat(item.Xf),
			Hours:          parseFloat(item.Zxs),
			DynClassID:     item.Jxbmc,
			CourseID:       item.Kch,
			PreferredClass: splitList(item.Jxbzc),
		})
	}
	return courses, nil
}

func ParseScoreListPage(page []byte) ([]Score, error) {
	var doc struct {
		Items []struct {
			Cj    string `json:"cj"`
			Kcmc  string `json:"kcmc"`
			Kch   string `json:"kch"`
			JxbID string `json:"jxb_id"`
			Xnmmc string `json:"xnmmc"`
			Xqm   string `json:"xqm"`
			Xf    string `json:"xf"`
		} `json:"items"`
	}
	if err := json.Unmarshal(page, &doc); err != nil {
		return nil, err
	}

	var scores []Score
	for _, item := range doc.Items {
		semester, err := SemesterFromRaw(item.Xqm)
		if err != nil {
			return nil, err
		}
		scores = append(scores, Score{
			Value:      parseFloat(item.Cj),
			Course:     item.Kcmc,
			CourseID:   item.Kch,
			ClassID:    item.JxbID,
			SchoolYear: item.Xnmmc,
			Semester:   semester,
			Credit:     parseFloat(item.Xf),
		})
	}
	return scores, nil
}

func ParseScoreDetailPage(page []byte) ([]ScoreDetail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}

	var details []ScoreDetail
	doc.Find("div.table-responsive #subtab tbody tr").Each(func(_ int, row *goquery.Selection) {
		cell := func(n int) string {
			text := row.Find("td:nth-child(" + strconv.Itoa(n) + ")").Text()
			return strings.TrimSpace(strings.ReplaceAll(text, " ", ""))
		}
		scoreType := strings.TrimSpace(strings.Trim(cell(1), "【】"))
		details = append(details, ScoreDetail{
			ScoreType:  scoreType,
			Percentage: cell(2),
			Score:      parseFloat(cell(3)),
		})
	})
	return details, nil
}

// profile fields by the element ids the page renders them under
var profileSelectors = []struct {
	selector string
	assign   func(*Profile, string)
}{
	{"#col_xh > p:nth-child(1)", func(p *Profile, v string) { p.StudentNo = v }},
	{"#col_xm > p:nth-child(1)", func(p *Profile, v string) { p.Name = v }},
	{"#col_ywxm > p:nth-child(1)", func(p *Profile, v string) { p.NameEng = v }},
	{"#col_xbm > p:nth-child(1)", func(p *Profile, v string) { p.Sex = v }},
	{"#col_zjlxm > p:nth-child(1)", func(p *Profile, v string) { p.CredentialType = v }},
	{"#col_zjhm > p:nth-child(1)", func(p *Profile, v string) { p.CredentialID = v }},
	{"#col_csrq > p:nth-child(1)", func(p *Profile, v string) { p.BirthDate = v }},
	{"#col_mzm > p:nth-child(1)", func(p *Profile, v string) { p.Ethnicity = v }},
	{"#col_jg > p:nth-child(1)", func(p *Profile, v string) { p.Hometown = v }},
	{"#col_rxrq > p:nth-child(1)", func(p *Profile, v string) { p.EnrollmentDate = v }},
	{"#col_xslxdm > p:nth-child(1)", func(p *Profile, v string) { p.Type = v }},
}

func ParseProfilePage(page []byte) (*Profile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(page))
	if err != nil {
		return nil, err
	}

	profile := &Profile{}
	for _, field := range profileSelectors {
		node := doc.Find(field.selector)
		if node.Length() == 0 {
			return nil, errors.New("profile page is missing expected fields")
		}
		field.assign(profile, strings.TrimSpace(node.Text()))
	}
	return profile, nil
}

var weekdays = map[string]int{
	"星期一": 1, "星期二": 2, "星期三": 3, "星期四": 4,
	"星期五": 5, "星期六": 6, "星期日": 7,
}

func weekdayIndex(name string) int {
	return weekdays[name]
}

var rangeRegex = regexp.MustCompile(`(\d{1,2})(?:-(\d{1,2}))?`)

// expandWeeks turns a week descriptor like "1-16周(单)" or "1-4周,7周"
// into the week numbers it covers.
func expandWeeks(s string) []int {
	var weeks []int
	for _, part := range strings.Split(s, ",") {
		step := 1
		if strings.HasSuffix(part, "(单)") || strings.HasSuffix(part, "(双)") {
			step = 2
		}
		m := rangeRegex.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		lo, _ := strconv.Atoi(m[1])
		hi := lo
		if m[2] != "" {
			hi, _ = strconv.Atoi(m[2])
		}
		for w := lo; w <= hi; w += step {
			weeks = append(weeks, w)
		}
	}
	return weeks
}

// expandTimeIndex turns a section descriptor like "1-2" into [1 2].
func expandTimeIndex(s string) []int {
	m := rangeRegex.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	lo, _ := strconv.Atoi(m[1])
	hi := lo
	if m[2] != "" {
		hi, _ = strconv.Atoi(m[2])
	}
	var indices []int
	for i := lo; i <= hi; i++ {
		indices = append(indices, i)
	}
	return indices
}

func toBitmask(numbers []int) int {
	mask := 0
	for _, n := range numbers {
		mask |= 1 << n
	}
	return mask
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}
