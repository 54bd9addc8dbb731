package jwxt

import (
	"context"
	"encoding/json"
)

type ExamArrangement struct {
	CourseName string `cbor:"course_name" json:"kcmc"`
	ExamTime   string `cbor:"exam_time" json:"kssj"`
	Location   string `cbor:"exam_location" json:"cdmc"`
	CampusName string `cbor:"exam_campus_name" json:"cdxqmc"`
	CourseID   string `cbor:"course_id" json:"kch"`
	IsRetaken  string `cbor:"is_retaked" json:"cxbj"`
	ExamName   string `cbor:"exam_name" json:"ksmc"`
	ExamTip    string `cbor:"exam_tip" json:"ksbz"`
	ClassName  string `cbor:"class_name" json:"jxbmc"`
	ExamMethod string `cbor:"exam_method" json:"ksfs"`
	Seat       string `cbor:"exam_seat" json:"zwh"`
}

func (c *Client) GetExamArrangement(ctx context.Context, year SchoolYear, semester Semester) ([]ExamArrangement, error) {
	ctx, span := tracer.Start(ctx, "GetExamArrangement")
	defer span.End()

	body, err := c.postQuery(ctx, examPath, map[string]string{
		"xnm": year.Raw(),
		"xqm": semester.Raw(),
	})
	if err != nil {
		return nil, err
	}
	return ParseExamArrangementPage(body)
}

func ParseExamArrangementPage(page []byte) ([]ExamArrangement, error) {
	var doc struct {
		Items []ExamArrangement `json:"items"`
	}
	if err := json.Unmarshal(page, &doc); err != nil {
		return nil, err
	}
	return doc.Items, nil
}
