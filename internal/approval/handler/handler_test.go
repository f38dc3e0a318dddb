package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"dealflow/internal/approval"
	"dealflow/internal/approval/handler/mocks"
	"dealflow/internal/models"
	"dealflow/internal/platform/logger"
	id "dealflow/pkg/domain"
	dErrors "dealflow/pkg/domain-errors"
	"dealflow/pkg/platform/middleware/auth"
	"dealflow/pkg/testutil"
)

type stubValidator struct {
	claims map[string]*auth.JWTClaims
}

func (v stubValidator) ValidateToken(token string) (*auth.JWTClaims, error) {
	if c, ok := v.claims[token]; ok {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type ApprovalHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	actor   id.UserID
	chainID id.ChainID
}

func TestApprovalHandlerSuite(t *testing.T) {
	suite.Run(t, new(ApprovalHandlerSuite))
}

func (s *ApprovalHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.actor = id.NewUserID()
	s.chainID = id.NewChainID()
	validator := stubValidator{claims: map[string]*auth.JWTClaims{
		"good":       {UserID: s.actor.String(), Role: "partner"},
		"no-subject": {UserID: "", Role: "partner"},
	}}
	s.router = chi.NewRouter()
	New(s.service, logger.Discard(), validator).Register(s.router)
}

func (s *ApprovalHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set("Authorization", "Bearer good")
	return testutil.DoRequest(s.router, req)
}

func (s *ApprovalHandlerSuite) chainPath(suffix string) string {
	return "/approval-queue/" + s.chainID.String() + suffix
}

func (s *ApprovalHandlerSuite) detail(status models.ChainStatus) *models.ChainDetail {
	return &models.ChainDetail{
		Chain:   models.ActionChain{ID: s.chainID, Status: status, ApprovalTier: models.Tier3},
		Actions: []models.ProposedAction{},
	}
}

func (s *ApprovalHandlerSuite) TestRequiresBearerToken() {
	s.Run("missing header", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/approval-queue", nil)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("invalid token", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.chainPath("/approve"), nil)
		req.Header.Set("Authorization", "Bearer forged")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("token without subject", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, s.chainPath("/approve"), nil)
		req.Header.Set("Authorization", "Bearer no-subject")
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *ApprovalHandlerSuite) TestListQueue() {
	s.Run("passes filter and echoes paging", func() {
		dealID := id.NewDealID()
		s.service.EXPECT().ListQueue(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, f models.QueueFilter) ([]models.ChainDetail, error) {
				s.Require().NotNil(f.DealID)
				s.Equal(dealID, *f.DealID)
				s.Equal(10, f.Limit)
				s.Equal(5, f.Offset)
				return []models.ChainDetail{*s.detail(models.ChainPending)}, nil
			})

		rr := s.do(http.MethodGet, "/approval-queue?deal_id="+dealID.String()+"&limit=10&offset=5", nil)

		s.Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[QueueResponse](s.T(), rr)
		s.Equal(1, resp.Count)
		s.Equal(10, resp.Limit)
		s.Equal(5, resp.Offset)
	})

	s.Run("default paging", func() {
		s.service.EXPECT().ListQueue(gomock.Any(), models.QueueFilter{}).Return([]models.ChainDetail{}, nil)

		rr := s.do(http.MethodGet, "/approval-queue", nil)

		s.Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[QueueResponse](s.T(), rr)
		s.Equal(models.DefaultPageSize, resp.Limit)
	})

	s.Run("bad deal id", func() {
		rr := s.do(http.MethodGet, "/approval-queue?deal_id=nope", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

func (s *ApprovalHandlerSuite) TestStats() {
	s.service.EXPECT().Stats(gomock.Any()).Return(&models.QueueStats{
		PendingCount:    3,
		ByTier:          map[models.Tier]int{models.Tier1: 0, models.Tier2: 1, models.Tier3: 2},
		AvgResolutionMS: 90000,
	}, nil)

	rr := s.do(http.MethodGet, "/approval-queue/stats", nil)

	s.Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.InDelta(3, (*resp)["pending_count"], 0)
	s.InDelta(90000, (*resp)["avg_resolution_ms"], 0)
	byTier := (*resp)["by_tier"].(map[string]any)
	s.InDelta(2, byTier["3"], 0)
}

func (s *ApprovalHandlerSuite) TestGetChain() {
	s.service.EXPECT().GetChain(gomock.Any(), s.chainID).Return(&approval.ChainView{
		Chain: models.ActionChain{ID: s.chainID, Status: models.ChainPending},
	}, nil)

	rr := s.do(http.MethodGet, s.chainPath(""), nil)

	s.Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[approval.ChainView](s.T(), rr)
	s.Equal(s.chainID, resp.Chain.ID)
}

func (s *ApprovalHandlerSuite) TestApproveChain() {
	s.Run("actor from token is the approver", func() {
		s.service.EXPECT().ApproveChain(gomock.Any(), s.chainID, s.actor).Return(s.detail(models.ChainApproved), nil)

		rr := s.do(http.MethodPost, s.chainPath("/approve"), nil)

		s.Equal(http.StatusOK, rr.Code)
		resp := testutil.UnmarshalResponse[models.ChainDetail](s.T(), rr)
		s.Equal(models.ChainApproved, resp.Chain.Status)
	})

	s.Run("invalid state maps to conflict", func() {
		s.service.EXPECT().ApproveChain(gomock.Any(), s.chainID, s.actor).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "chain is already approved"))

		rr := s.do(http.MethodPost, s.chainPath("/approve"), nil)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_state")
	})

	s.Run("bad chain id", func() {
		rr := s.do(http.MethodPost, "/approval-queue/xyz/approve", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

func (s *ApprovalHandlerSuite) TestRejectChain() {
	s.Run("with reason", func() {
		s.service.EXPECT().RejectChain(gomock.Any(), s.chainID, s.actor, "deal paused").Return(s.detail(models.ChainRejected), nil)

		rr := s.do(http.MethodPost, s.chainPath("/reject"), map[string]any{"reason": "  deal paused "})

		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("empty body", func() {
		s.service.EXPECT().RejectChain(gomock.Any(), s.chainID, s.actor, "").Return(s.detail(models.ChainRejected), nil)

		rr := s.do(http.MethodPost, s.chainPath("/reject"), nil)

		s.Equal(http.StatusOK, rr.Code)
	})
}

func (s *ApprovalHandlerSuite) TestActionDecisions() {
	actionID := id.NewActionID()
	base := s.chainPath("/actions/" + actionID.String())

	s.Run("approve", func() {
		s.service.EXPECT().ApproveAction(gomock.Any(), s.chainID, actionID, s.actor).Return(s.detail(models.ChainPartiallyApproved), nil)
		rr := s.do(http.MethodPost, base+"/approve", nil)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("reject", func() {
		s.service.EXPECT().RejectAction(gomock.Any(), s.chainID, actionID, s.actor, "wrong party").Return(s.detail(models.ChainPending), nil)
		rr := s.do(http.MethodPost, base+"/reject", map[string]any{"reason": "wrong party"})
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("modify", func() {
		s.service.EXPECT().ModifyAction(gomock.Any(), s.chainID, actionID, s.actor, map[string]any{"new_status": "waived"}).
			Return(s.detail(models.ChainApproved), nil)
		rr := s.do(http.MethodPost, base+"/modify", map[string]any{"payload": map[string]any{"new_status": "waived"}})
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("modify without payload", func() {
		rr := s.do(http.MethodPost, base+"/modify", map[string]any{})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("not found", func() {
		s.service.EXPECT().ApproveAction(gomock.Any(), s.chainID, actionID, s.actor).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "action not found"))
		rr := s.do(http.MethodPost, base+"/approve", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("internal error hides detail", func() {
		s.service.EXPECT().ApproveAction(gomock.Any(), s.chainID, actionID, s.actor).
			Return(nil, dErrors.Wrap(errors.New("pq: connection reset"), dErrors.CodeInternal, "failed to record decision"))
		rr := s.do(http.MethodPost, base+"/approve", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
		s.NotContains(rr.Body.String(), "connection reset")
	})

	s.Run("bad action id", func() {
		rr := s.do(http.MethodPost, s.chainPath("/actions/bogus/approve"), nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}
