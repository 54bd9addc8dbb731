// Package relay answers the server's framed requests by driving the
// campus scrapers with sessions from the local store. It is the glue
// between the wire protocol and the portal systems.
package relay

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kite-agent/lib/protocol"
	"kite-agent/lib/scrapers/authserver"
	"kite-agent/lib/session"
)

var tracer = otel.Tracer("services/relay")

type Service struct {
	name   string
	store  *session.Store
	solver authserver.CaptchaSolver
	proxy  string
}

func NewService(name string, store *session.Store, solver authserver.CaptchaSolver) *Service {
	return &Service{
		name:   name,
		store:  store,
		solver: solver,
	}
}

// SetProxy routes all portal traffic through the given proxy url.
func (s *Service) SetProxy(proxyURL string) {
	s.proxy = proxyURL
}

// Handle implements the agent handler: decode the union, run the
// action, encode either the result or an ActionError.
func (s *Service) Handle(ctx context.Context, payload []byte) (uint16, []byte) {
	ctx, span := tracer.Start(ctx, "Handle")
	defer span.End()

	req, err := protocol.DecodeRequest(payload)
	if err != nil {
		return errorBody(&protocol.ActionError{
			Code: protocol.CodeBadRequest,
			Msg:  err.Error(),
		})
	}
	if !req.Kind.Known() {
		return errorBody(protocol.ErrUnknown)
	}

	span.SetAttributes(attribute.String("kind", req.Kind.String()))

	result, err := s.dispatch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("request failed", "kind", req.Kind.String(), "error", err)
		return errorBody(actionError(err))
	}

	body, err := protocol.Marshal(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errorBody(&protocol.ActionError{
			Code: protocol.CodeGenericError,
			Msg:  err.Error(),
		})
	}
	return protocol.CodeOK, body
}

func (s *Service) dispatch(ctx context.Context, req *protocol.RequestPayload) (any, error) {
	switch req.Kind {
	case protocol.KindAgentInfo:
		return protocol.AgentInfo{Name: s.name}, nil
	case protocol.KindPing:
		var ping protocol.PingRequest
		if len(req.Body) > 0 {
			if err := req.DecodeBody(&ping); err != nil {
				return nil, badRequest(err)
			}
		}
		return protocol.PingResponse{Msg: ping.Msg}, nil
	case protocol.KindPortalAuth:
		var body protocol.PortalAuthRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.portalAuth(ctx, body)
	case protocol.KindActivityList:
		var body protocol.ActivityListRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.activityList(ctx, body)
	case protocol.KindActivityDetail:
		var body protocol.ActivityDetailRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.activityDetail(ctx, body)
	case protocol.KindMyActivities:
		var body protocol.MyActivityRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.myActivities(ctx, body)
	case protocol.KindMyScoreList:
		var body protocol.MyScoreRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.myScores(ctx, body)
	case protocol.KindJoinActivity:
		var body protocol.JoinActivityRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.joinActivity(ctx, body)
	case protocol.KindMajorList:
		var body protocol.MajorListRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.majorList(ctx, body)
	case protocol.KindClassList:
		var body protocol.ClassListRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.classList(ctx, body)
	case protocol.KindTimeTable:
		var body protocol.TimeTableRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.timetable(ctx, body)
	case protocol.KindScoreList:
		var body protocol.ScoreListRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.scoreList(ctx, body)
	case protocol.KindScoreDetail:
		var body protocol.ScoreDetailRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.scoreDetail(ctx, body)
	case protocol.KindSearchLibrary:
		var body protocol.SearchLibraryRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.searchLibrary(ctx, body)
	case protocol.KindBookHoldings:
		var body protocol.BookHoldingsRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.bookHoldings(ctx, body)
	case protocol.KindCardExpense:
		var body protocol.CardExpenseRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.cardExpense(ctx, body)
	case protocol.KindExamArrangement:
		var body protocol.ExamArrangementRequest
		if err := req.DecodeBody(&body); err != nil {
			return nil, badRequest(err)
		}
		return s.examArrangement(ctx, body)
	}
	return nil, protocol.ErrUnknown
}

func badRequest(err error) error {
	return &protocol.ActionError{Code: protocol.CodeBadRequest, Msg: err.Error()}
}

// actionError folds any scraping failure into the coded form the
// server understands.
func actionError(err error) *protocol.ActionError {
	var action *protocol.ActionError
	if errors.As(err, &action) {
		return action
	}

	switch {
	case errors.Is(err, authserver.ErrLoginFailed):
		return protocol.ErrLoginFailed
	case errors.Is(err, authserver.ErrWrongCaptcha):
		return protocol.ErrWrongCaptcha
	case errors.Is(err, authserver.ErrFailToGetCaptcha):
		return protocol.ErrFailToGetCaptcha
	}

	return &protocol.ActionError{Code: protocol.CodeGenericError, Msg: err.Error()}
}

// errorBody lays the message out as the failure payload. Nonzero codes
// carry plain utf-8 text on the wire, not an encoded structure.
func errorBody(action *protocol.ActionError) (uint16, []byte) {
	return action.Code, []byte(action.Msg)
}
