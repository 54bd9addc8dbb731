package jwxt

import (
	"context"
	"encoding/json"
	"strconv"
)

type Major struct {
	EntranceYear int    `cbor:"entrance_year" json:"entrance_year"`
	ID           string `cbor:"id" json:"id"`
	Name         string `cbor:"name" json:"name"`
	InnerID      string `cbor:"inner_id" json:"inner_id"`
	DirectionID  string `cbor:"direction_id" json:"direction_id"`
	Direction    string `cbor:"direction" json:"direction"`
}

type Class struct {
	Grade     int    `cbor:"grade" json:"grade"`
	College   string `cbor:"college" json:"college"`
	MajorName string `cbor:"major_name" json:"major_name"`
	MajorID   string `cbor:"major_id" json:"major_id"`
	ClassID   string `cbor:"class_id" json:"class_id"`
}

func (c *Client) GetMajorList(ctx context.Context, entranceYear SchoolYear) ([]Major, error) {
	ctx, span := tracer.Start(ctx, "GetMajorList")
	defer span.End()

	body, err := c.postQuery(ctx, majorListPath, map[string]string{
		"njdm_id": entranceYear.Raw(),
	})
	if err != nil {
		return nil, err
	}
	return ParseMajorListPage(body)
}

func (c *Client) GetClassList(ctx context.Context, year SchoolYear, semester Semester) ([]Class, error) {
	ctx, span := tracer.Start(ctx, "GetClassList")
	defer span.End()

	body, err := c.postQuery(ctx, classListPath, map[string]string{
		"xnm":                  year.Raw(),
		"xqm":                  semester.Raw(),
		"queryModel.showCount": "10000",
	})
	if err != nil {
		return nil, err
	}
	return ParseClassListPage(body)
}

// GetSuggestedCourses fetches the timetable planned for a whole class.
// When entranceYear is empty it is derived from the class id, which
// starts with the two-digit entrance year.
func (c *Client) GetSuggestedCourses(ctx context.Context, year SchoolYear, semester Semester, majorID, classID, entranceYear string) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "GetSuggestedCourses")
	defer span.End()

	if entranceYear == "" && len(classID) >= 2 {
		entranceYear = "20" + classID[:2]
	}
	body, err := c.postQuery(ctx, suggestedPath, map[string]string{
		"xnm":       year.Raw(),
		"xqm":       semester.Raw(),
		"njdm_id":   entranceYear,
		"zyh_id":    majorID,
		"bh_id":     classID,
		"tjkbzdm":   "1",
		"tjkbzxsdm": "0",
	})
	if err != nil {
		return nil, err
	}
	return ParseTimetablePage(body)
}

func ParseMajorListPage(page []byte) ([]Major, error) {
	var items []struct {
		Njdm   string `json:"njdm"`
		Zyh    string `json:"zyh"`
		Zymc   string `json:"zymc"`
		ZyhID  string `json:"zyh_id"`
		ZyfxID string `json:"zyfx_id"`
		Zyfxmc string `json:"zyfxmc"`
	}
	if err := json.Unmarshal(page, &items); err != nil {
		return nil, err
	}

	var majors []Major
	for _, item := range items {
		year, _ := strconv.Atoi(item.Njdm)
		majors = append(majors, Major{
			EntranceYear: year,
			ID:           item.Zyh,
			Name:         item.Zymc,
			InnerID:      item.ZyhID,
			DirectionID:  item.ZyfxID,
			Direction:    item.Zyfxmc,
		})
	}
	return majors, nil
}

func ParseClassListPage(page []byte) ([]Class, error) {
	var items []struct {
		Njmc  string `json:"njmc"`
		Jgmc  string `json:"jgmc"`
		Zymc  string `json:"zymc"`
		ZyhID string `json:"zyh_id"`
		Bh    string `json:"bh"`
	}
	if err := json.Unmarshal(page, &items); err != nil {
		return nil, err
	}

	var classes []Class
	for _, item := range items {
		grade, _ := strconv.Atoi(item.Njmc)
		classes = append(classes, Class{
			Grade:     grade,
			College:   item.Jgmc,
			MajorName: item.Zymc,
			MajorID:   item.ZyhID,
			ClassID:   item.Bh,
		})
	}
	return classes, nil
}
