package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idlookup/internal/lookup"
	"idlookup/internal/query/handler/mocks"
	"idlookup/internal/query/models"
	"idlookup/internal/query/service"
	dErrors "idlookup/pkg/domain-errors"
	"idlookup/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const callerID = "caller-1"

type LookupHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	svc     *mocks.MockService
	router  chi.Router
	limited bool
}

func TestLookupHandlerSuite(t *testing.T) {
	suite.Run(t, new(LookupHandlerSuite))
}

func (s *LookupHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.svc = mocks.NewMockService(s.ctrl)
	s.limited = false

	limiter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.limited {
				w.Header().Set("Retry-After", "42")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	h := New(s.svc,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRateLimit(limiter),
	)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *LookupHandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *LookupHandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.WithCallerID(req, callerID))
}

func sampleRecord() *models.QueryRecord {
	now := time.Date(2026, 6, 15, 14, 30, 0, 0, time.UTC)
	return &models.QueryRecord{
		ID:          uuid.MustParse("7b0cbd4e-9a52-4b8f-8d5f-1a3c1d2e3f40"),
		Identifier:  "001-2345678-2",
		CallerID:    callerID,
		Status:      models.StatusCompleted,
		Cost:        1,
		Result:      &lookup.Result{Success: true, Message: "found"},
		RequestedAt: now,
		CompletedAt: &now,
		UpdatedAt:   now,
	}
}

func (s *LookupHandlerSuite) TestLookup() {
	s.Run("returns completed record", func() {
		s.svc.EXPECT().Lookup(gomock.Any(), service.LookupRequest{
			Identifier: "001-2345678-2",
			CallerID:   callerID,
			ClientIP:   "10.0.0.7",
			UserAgent:  "curl/8.0",
		}).Return(sampleRecord(), nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/", LookupRequest{Identifier: " 001-2345678-2 "})
		req = testutil.WithClientMetadata(req, "10.0.0.7", "curl/8.0")
		rr := s.do(req)

		testutil.AssertStatusOK(s.T(), rr)
		body := testutil.UnmarshalResponse[models.QueryRecord](s.T(), rr)
		s.Equal(models.StatusCompleted, body.Status)
		s.Equal("001-2345678-2", body.Identifier)
		s.Require().NotNil(body.Result)
		s.True(body.Result.Success)
	})

	s.Run("malformed body is a bad request", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, BasePath+"/", "{")
		rr := s.do(req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("missing identifier is a validation error", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/", LookupRequest{Identifier: "   "})
		rr := s.do(req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("service errors map to their status", func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{dErrors.New(dErrors.CodeInvalidFormat, "identifier must have 11 digits"), http.StatusBadRequest, "invalid_format"},
			{dErrors.New(dErrors.CodeInsufficientBalance, "insufficient token balance"), http.StatusPaymentRequired, "insufficient_balance"},
			{dErrors.New(dErrors.CodeForbidden, "caller is inactive"), http.StatusForbidden, "forbidden"},
			{dErrors.New(dErrors.CodeNotFound, "caller not found"), http.StatusNotFound, "not_found"},
			{dErrors.New(dErrors.CodeExternalService, "registry unavailable"), http.StatusServiceUnavailable, "external_service_error"},
		}
		for _, tc := range cases {
			s.svc.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, tc.err)
			req := testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/", LookupRequest{Identifier: "00123456782"})
			rr := s.do(req)
			testutil.AssertStatusAndError(s.T(), rr, tc.status, tc.code)
		}
	})

	s.Run("internal errors hide their message", func() {
		s.svc.EXPECT().Lookup(gomock.Any(), gomock.Any()).Return(nil, errors.New("pq: connection reset"))
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/", LookupRequest{Identifier: "00123456782"})
		rr := s.do(req)

		testutil.AssertStatusAndError(s.T(), rr, http.StatusInternalServerError, "internal_error")
		s.NotContains(rr.Body.String(), "pq:")
	})

	s.Run("no caller in context is unauthorized", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/", LookupRequest{Identifier: "00123456782"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})
}

func (s *LookupHandlerSuite) TestLookupAsync() {
	s.Run("accepted", func() {
		out := make(chan service.AsyncOutcome, 1)
		s.svc.EXPECT().LookupAsync(gomock.Any(), gomock.Any()).Return(out, nil)

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/async", LookupRequest{Identifier: "00123456782"})
		rr := s.do(req)

		testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
		testutil.AssertJSONContains(s.T(), rr, "accepted", true)
	})

	s.Run("full queue is rate limited", func() {
		s.svc.EXPECT().LookupAsync(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeRateLimited, "too many pending async lookups"))

		req := testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/async", LookupRequest{Identifier: "00123456782"})
		rr := s.do(req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, "rate_limited")
	})
}

func (s *LookupHandlerSuite) TestRateLimitOnlyGuardsLookups() {
	s.limited = true

	rr := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/", LookupRequest{Identifier: "00123456782"}))
	testutil.AssertStatus(s.T(), rr, http.StatusTooManyRequests)
	s.Equal("42", rr.Header().Get("Retry-After"))

	rr = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, BasePath+"/async", LookupRequest{Identifier: "00123456782"}))
	testutil.AssertStatus(s.T(), rr, http.StatusTooManyRequests)

	s.svc.EXPECT().StatsFor(gomock.Any(), callerID).Return(&models.Stats{Total: 3}, nil)
	rr = s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/stats"))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *LookupHandlerSuite) TestHistory() {
	s.Run("passes paging parameters", func() {
		want := models.PageRequest{Page: 2, Size: 5, SortBy: "status", SortDir: "asc"}
		s.svc.EXPECT().HistoryFor(gomock.Any(), callerID, want).
			Return(models.NewPage([]*models.QueryRecord{sampleRecord()}, want, 11), nil)

		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/history?page=2&size=5&sort_by=status&sort_dir=asc"))

		testutil.AssertStatusOK(s.T(), rr)
		page := testutil.UnmarshalResponse[models.Page[models.QueryRecord]](s.T(), rr)
		s.Len(page.Items, 1)
		s.Equal(int64(11), page.Total)
		s.Equal(3, page.TotalPages)
	})

	s.Run("non-numeric page", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/history?page=two"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("out of range size from the service", func() {
		s.svc.EXPECT().HistoryFor(gomock.Any(), callerID, gomock.Any()).
			Return(models.Page[*models.QueryRecord]{}, dErrors.New(dErrors.CodeValidation, "size must be between 1 and 100"))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/history?size=500"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}

func (s *LookupHandlerSuite) TestStats() {
	s.svc.EXPECT().StatsFor(gomock.Any(), callerID).
		Return(&models.Stats{Total: 4, Completed: 2, Failed: 1, Pending: 1, Today: 3}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/stats"))

	testutil.AssertStatusOK(s.T(), rr)
	stats := testutil.UnmarshalResponse[models.Stats](s.T(), rr)
	s.Equal(models.Stats{Total: 4, Completed: 2, Failed: 1, Pending: 1, Today: 3}, *stats)
}

func (s *LookupHandlerSuite) TestRecent() {
	s.Run("forwards the raw limit", func() {
		s.svc.EXPECT().Recent(gomock.Any(), callerID, 5).Return([]*models.QueryRecord{sampleRecord()}, nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/recent?limit=5"))

		testutil.AssertStatusOK(s.T(), rr)
		list := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
		s.Len(list.Items, 1)
	})

	s.Run("empty list is an array", func() {
		s.svc.EXPECT().Recent(gomock.Any(), callerID, 0).Return(nil, nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/recent"))

		testutil.AssertStatusOK(s.T(), rr)
		s.JSONEq(`{"items":[]}`, rr.Body.String())
	})
}

func (s *LookupHandlerSuite) TestSearch() {
	s.Run("requires identifier", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/search"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("returns matches", func() {
		s.svc.EXPECT().Search(gomock.Any(), callerID, "00123456782").Return([]*models.QueryRecord{sampleRecord()}, nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/search?identifier=00123456782"))

		testutil.AssertStatusOK(s.T(), rr)
		list := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
		s.Len(list.Items, 1)
	})

	s.Run("invalid identifier", func() {
		s.svc.EXPECT().Search(gomock.Any(), callerID, "123").
			Return(nil, dErrors.New(dErrors.CodeInvalidFormat, "identifier must have 11 digits"))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/search?identifier=123"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_format")
	})
}

func (s *LookupHandlerSuite) TestCanQuery() {
	s.svc.EXPECT().CanQuery(gomock.Any(), callerID).
		Return(&models.CallerStatus{CanQuery: true, Balance: 7, UnitCost: 1, Active: true}, nil)

	rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/can-query"))

	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "can_query", true)
	testutil.AssertJSONContains(s.T(), rr, "balance", float64(7))
}

func (s *LookupHandlerSuite) TestGet() {
	record := sampleRecord()

	s.Run("own record", func() {
		s.svc.EXPECT().Get(gomock.Any(), record.ID, callerID).Return(record, nil)
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/"+record.ID.String()))

		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "id", record.ID.String())
	})

	s.Run("unknown record", func() {
		s.svc.EXPECT().Get(gomock.Any(), record.ID, callerID).Return(nil, dErrors.New(dErrors.CodeNotFound, "query not found"))
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/"+record.ID.String()))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed id is not found", func() {
		rr := s.do(testutil.NewRequest(s.T(), http.MethodGet, BasePath+"/not-a-uuid"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
}
