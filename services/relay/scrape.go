package relay

import (
	"context"
	"log/slog"

	"kite-agent/lib/campus"
	"kite-agent/lib/protocol"
	"kite-agent/lib/scrapers/authserver"
	"kite-agent/lib/scrapers/card"
	"kite-agent/lib/scrapers/jwxt"
	"kite-agent/lib/scrapers/library"
	"kite-agent/lib/scrapers/sc"
	"kite-agent/lib/session"
)

func (s *Service) newHTTP(sess *session.Session) *campus.Client {
	if s.proxy != "" {
		return campus.NewClient(sess, campus.WithProxy(s.proxy))
	}
	return campus.NewClient(sess)
}

func (s *Service) credentialSession(ctx context.Context, cred protocol.Credential) (*session.Session, error) {
	if cred.Account == "" || cred.Password == "" {
		return nil, &protocol.ActionError{
			Code: protocol.CodeBadRequest,
			Msg:  "account and password are required",
		}
	}
	return s.store.QueryOr(ctx, cred.Account, cred.Password)
}

// randomSession backs actions that only need *some* logged-in account,
// like browsing the public activity list behind the campus firewall.
func (s *Service) randomSession(ctx context.Context) (*session.Session, error) {
	sess, err := s.store.ChooseRandomly(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, protocol.ErrNoSessionAvailable
	}
	return sess, nil
}

// persist saves refreshed cookies back to the store. Losing them only
// costs a re-login next time, so a failure is logged and swallowed.
func (s *Service) persist(ctx context.Context, sess *session.Session) {
	if err := s.store.Insert(ctx, sess); err != nil {
		slog.Warn("failed to persist session", "account", sess.Account, "error", err)
	}
}

func (s *Service) portalAuth(ctx context.Context, req protocol.PortalAuthRequest) (any, error) {
	sess, err := s.credentialSession(ctx, req.Credential)
	if err != nil {
		return nil, err
	}
	sess.Password = req.Password
	http := s.newHTTP(sess)

	sso := authserver.NewClient(http, s.solver)
	if err := sso.PortalLogin(ctx); err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return protocol.PortalAuthResponse{Valid: true}, nil
}

func (s *Service) activityList(ctx context.Context, req protocol.ActivityListRequest) (any, error) {
	sess, err := s.randomSession(ctx)
	if err != nil {
		return nil, err
	}

	client := sc.NewClient(s.newHTTP(sess))
	activities, err := client.GetActivityList(ctx, req.Index, req.Count)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return activities, nil
}

func (s *Service) activityDetail(ctx context.Context, req protocol.ActivityDetailRequest) (any, error) {
	sess, err := s.randomSession(ctx)
	if err != nil {
		return nil, err
	}

	client := sc.NewClient(s.newHTTP(sess))
	detail, err := client.GetActivityDetail(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return detail, nil
}

// scAuthed logs the credential into the portal and hands back a
// second-course client riding that session.
func (s *Service) scAuthed(ctx context.Context, cred protocol.Credential) (*sc.Client, *session.Session, error) {
	sess, err := s.credentialSession(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	http := s.newHTTP(sess)

	sso := authserver.NewClient(http, s.solver)
	if err := sso.PortalLogin(ctx); err != nil {
		return nil, nil, err
	}
	return sc.NewClient(http), sess, nil
}

func (s *Service) myActivities(ctx context.Context, req protocol.MyActivityRequest) (any, error) {
	client, sess, err := s.scAuthed(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	activities, err := client.GetMyActivities(ctx)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return activities, nil
}

func (s *Service) myScores(ctx context.Context, req protocol.MyScoreRequest) (any, error) {
	client, sess, err := s.scAuthed(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	scores, err := client.GetMyScores(ctx)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return scores, nil
}

func (s *Service) joinActivity(ctx context.Context, req protocol.JoinActivityRequest) (any, error) {
	client, sess, err := s.scAuthed(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	if err := client.JoinActivity(ctx, req.ActivityID); err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return protocol.JoinActivityResponse{Message: "ok"}, nil
}

// zhengfang logs the credential into the educational administration
// system, falling back through the sso bounce as needed.
func (s *Service) zhengfang(ctx context.Context, cred protocol.Credential) (*jwxt.Client, *session.Session, error) {
	sess, err := s.credentialSession(ctx, cred)
	if err != nil {
		return nil, nil, err
	}
	http := s.newHTTP(sess)

	sso := authserver.NewClient(http, s.solver)
	client := jwxt.NewClient(http)
	if err := client.MakeSureActive(ctx, sso); err != nil {
		return nil, nil, err
	}
	return client, sess, nil
}

func (s *Service) majorList(ctx context.Context, req protocol.MajorListRequest) (any, error) {
	client, sess, err := s.zhengfang(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	majors, err := client.GetMajorList(ctx, jwxt.SchoolYear(req.EntranceYear))
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return majors, nil
}

func (s *Service) classList(ctx context.Context, req protocol.ClassListRequest) (any, error) {
	semester, err := jwxt.SemesterFromRaw(req.Semester)
	if err != nil {
		return nil, badRequest(err)
	}
	client, sess, err := s.zhengfang(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	classes, err := client.GetClassList(ctx, jwxt.SchoolYear(req.SchoolYear), semester)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return classes, nil
}

func (s *Service) timetable(ctx context.Context, req protocol.TimeTableRequest) (any, error) {
	semester, err := jwxt.SemesterFromRaw(req.Semester)
	if err != nil {
		return nil, badRequest(err)
	}
	client, sess, err := s.zhengfang(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	courses, err := client.GetTimetable(ctx, jwxt.SchoolYear(req.SchoolYear), semester)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return courses, nil
}

func (s *Service) scoreList(ctx context.Context, req protocol.ScoreListRequest) (any, error) {
	semester, err := jwxt.SemesterFromRaw(req.Semester)
	if err != nil {
		return nil, badRequest(err)
	}
	client, sess, err := s.zhengfang(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	scores, err := client.GetScoreList(ctx, jwxt.SchoolYear(req.SchoolYear), semester)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return scores, nil
}

func (s *Service) scoreDetail(ctx context.Context, req protocol.ScoreDetailRequest) (any, error) {
	semester, err := jwxt.SemesterFromRaw(req.Semester)
	if err != nil {
		return nil, badRequest(err)
	}
	client, sess, err := s.zhengfang(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	detail, err := client.GetScoreDetail(ctx,
		jwxt.SchoolYear(req.SchoolYear), semester, req.ClassID)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return detail, nil
}

func (s *Service) examArrangement(ctx context.Context, req protocol.ExamArrangementRequest) (any, error) {
	semester, err := jwxt.SemesterFromRaw(req.Semester)
	if err != nil {
		return nil, badRequest(err)
	}
	client, sess, err := s.zhengfang(ctx, req.Credential)
	if err != nil {
		return nil, err
	}

	exams, err := client.GetExamArrangement(ctx, jwxt.SchoolYear(req.SchoolYear), semester)
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return exams, nil
}

// The catalog is public, searches ride an anonymous session.
func (s *Service) searchLibrary(ctx context.Context, req protocol.SearchLibraryRequest) (any, error) {
	client := library.NewClient(s.newHTTP(session.New("", "")))
	return client.Search(ctx, library.SearchOptions{
		Keyword:   req.Keyword,
		Rows:      req.Rows,
		Page:      req.Page,
		SearchWay: library.SearchWay(req.SearchWay),
		SortWay:   library.SortWay(req.SortWay),
		SortOrder: library.SortOrder(req.SortOrder),
	})
}

func (s *Service) bookHoldings(ctx context.Context, req protocol.BookHoldingsRequest) (any, error) {
	if len(req.BookIDs) == 0 {
		return nil, &protocol.ActionError{
			Code: protocol.CodeBadRequest,
			Msg:  "no book ids given",
		}
	}
	client := library.NewClient(s.newHTTP(session.New("", "")))
	return client.GetHoldingPreviews(ctx, req.BookIDs)
}

func (s *Service) cardExpense(ctx context.Context, req protocol.CardExpenseRequest) (any, error) {
	sess, err := s.credentialSession(ctx, req.Credential)
	if err != nil {
		return nil, err
	}
	http := s.newHTTP(sess)

	sso := authserver.NewClient(http, s.solver)
	client := card.NewClient(http)
	if err := client.MakeSureActive(ctx, sso); err != nil {
		return nil, err
	}

	page, err := client.GetExpensePage(ctx, card.ExpenseQuery{
		Page:      req.Page,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	if err != nil {
		return nil, err
	}

	s.persist(ctx, sess)
	return page, nil
}
