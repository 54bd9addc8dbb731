package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind discriminates the request union. The numbers are part of the
// wire contract, never reorder them.
type Kind uint8

const (
	KindAgentInfo Kind = iota + 1
	KindPing
	KindPortalAuth
	KindActivityList
	KindActivityDetail
	KindMyActivities
	KindMyScoreList
	KindJoinActivity
	KindMajorList
	KindClassList
	KindTimeTable
	KindScoreList
	KindScoreDetail
	KindSearchLibrary
	KindBookHoldings
	KindCardExpense
	KindExamArrangement
)

var kindNames = map[Kind]string{
	KindAgentInfo:       "AgentInfo",
	KindPing:            "Ping",
	KindPortalAuth:      "PortalAuth",
	KindActivityList:    "ActivityList",
	KindActivityDetail:  "ActivityDetail",
	KindMyActivities:    "MyActivities",
	KindMyScoreList:     "MyScoreList",
	KindJoinActivity:    "JoinActivity",
	KindMajorList:       "MajorList",
	KindClassList:       "ClassList",
	KindTimeTable:       "TimeTable",
	KindScoreList:       "ScoreList",
	KindScoreDetail:     "ScoreDetail",
	KindSearchLibrary:   "SearchLibrary",
	KindBookHoldings:    "BookHoldings",
	KindCardExpense:     "CardExpense",
	KindExamArrangement: "ExamArrangement",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Known reports whether this kind is part of the contract. A handler
// answers an unknown kind with its own code instead of failing decode.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// RequestPayload is the CBOR body of a request frame: a kind tag plus
// the kind-specific body, left raw until the handler knows what to
// decode it into.
type RequestPayload struct {
	Kind Kind            `cbor:"kind"`
	Body cbor.RawMessage `cbor:"body,omitempty"`
}

var encMode, _ = cbor.EncOptions{Time: cbor.TimeUnix}.EncMode()

// EncodeRequest packs a typed body under its kind tag.
func EncodeRequest(kind Kind, body any) ([]byte, error) {
	payload := RequestPayload{Kind: kind}
	if body != nil {
		raw, err := encMode.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload.Body = raw
	}
	return encMode.Marshal(payload)
}

// DecodeRequest unpacks the union envelope. The body stays raw and the
// kind is not validated, check Kind.Known before dispatching.
func DecodeRequest(data []byte) (*RequestPayload, error) {
	var payload RequestPayload
	if err := cbor.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("malformed request payload: %w", err)
	}
	return &payload, nil
}

// DecodeBody decodes the raw body into the kind's request struct.
func (p *RequestPayload) DecodeBody(v any) error {
	if len(p.Body) == 0 {
		return fmt.Errorf("%s request has no body", p.Kind)
	}
	if err := cbor.Unmarshal(p.Body, v); err != nil {
		return fmt.Errorf("malformed %s body: %w", p.Kind, err)
	}
	return nil
}

// Marshal encodes any success payload for the response frame.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Credential carries one account's portal password. Nearly every kind
// that touches an authenticated system embeds one.
type Credential struct {
	Account  string `cbor:"account"`
	Password string `cbor:"password"`
}

// AgentInfo describes this agent to the server right after connecting.
type AgentInfo struct {
	Name string `cbor:"name"`
}

type PingRequest struct {
	Msg string `cbor:"msg"`
}

type PortalAuthRequest struct {
	Credential
}

// ActivityListRequest pages through the second-course activity list.
// No login is required for public listings.
type ActivityListRequest struct {
	Count int `cbor:"count"`
	Index int `cbor:"index"`
}

type ActivityDetailRequest struct {
	ID int `cbor:"id"`
}

type MyActivityRequest struct {
	Credential
}

type MyScoreRequest struct {
	Credential
}

type JoinActivityRequest struct {
	Credential
	ActivityID int `cbor:"activityId"`
}

type MajorListRequest struct {
	Credential
	EntranceYear int `cbor:"entranceYear"`
}

type ClassListRequest struct {
	Credential
	SchoolYear int    `cbor:"schoolYear"`
	Semester   string `cbor:"semester"`
}

type TimeTableRequest struct {
	Credential
	SchoolYear int    `cbor:"schoolYear"`
	Semester   string `cbor:"semester"`
}

type ScoreListRequest struct {
	Credential
	SchoolYear int    `cbor:"schoolYear"`
	Semester   string `cbor:"semester"`
}

type ScoreDetailRequest struct {
	Credential
	SchoolYear int    `cbor:"schoolYear"`
	Semester   string `cbor:"semester"`
	ClassID    string `cbor:"classId"`
}

type SearchLibraryRequest struct {
	Keyword   string `cbor:"keyword"`
	Rows      int    `cbor:"rows"`
	Page      int    `cbor:"page"`
	SearchWay string `cbor:"searchWay,omitempty"`
	SortWay   string `cbor:"sortWay,omitempty"`
	SortOrder string `cbor:"sortOrder,omitempty"`
}

type BookHoldingsRequest struct {
	BookIDs []string `cbor:"bookIds"`
}

type CardExpenseRequest struct {
	Credential
	Page      int    `cbor:"page"`
	StartDate string `cbor:"startDate,omitempty"`
	EndDate   string `cbor:"endDate,omitempty"`
}

type ExamArrangementRequest struct {
	Credential
	SchoolYear int    `cbor:"schoolYear"`
	Semester   string `cbor:"semester"`
}

// PingResponse echoes the ping message back.
type PingResponse struct {
	Msg string `cbor:"msg"`
}

// PortalAuthResponse reports whether the credential logged in.
type PortalAuthResponse struct {
	Valid bool `cbor:"valid"`
}

type JoinActivityResponse struct {
	Message string `cbor:"message"`
}
