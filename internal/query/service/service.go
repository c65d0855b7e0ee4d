// Package service orchestrates metered lookups: validate, charge, fetch,
// record, and refund when the registry could not be reached.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/internal/query/metrics"
	"idlookup/internal/query/models"
	"idlookup/internal/query/ports"
	dErrors "idlookup/pkg/domain-errors"
	"idlookup/pkg/platform/audit"
	"idlookup/pkg/platform/device"
	"idlookup/pkg/platform/sentinel"
	"idlookup/pkg/requestcontext"
)

const (
	defaultUnitCost          = 1
	defaultCompletionTimeout = 2 * time.Minute
	defaultStaleAfter        = 15 * time.Minute
	sweepBatchSize           = 100
	persistAttempts          = 2

	messageAbandoned = "abandoned"
)

// LookupRequest is one caller's request for one identifier.
type LookupRequest struct {
	Identifier string
	CallerID   string
	ClientIP   string
	UserAgent  string
}

// AsyncOutcome is delivered once per LookupAsync call.
type AsyncOutcome struct {
	Record *models.QueryRecord
	Err    error
}

// Service is safe for concurrent use.
type Service struct {
	ledger    ports.TokenLedger
	directory ports.UserDirectory
	store     ports.ResultStore
	gateway   ports.Gateway

	auditor    ports.AuditPublisher
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	unitCost          int64
	completionTimeout time.Duration
	staleAfter        time.Duration
	billCircuitOpen   bool
	location          *time.Location
	now               func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) { s.auditor = p }
}

// WithDispatcher enables LookupAsync.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithUnitCost sets the tokens charged per lookup.
func WithUnitCost(cost int64) Option {
	return func(s *Service) {
		if cost > 0 {
			s.unitCost = cost
		}
	}
}

// WithCompletionTimeout bounds the detached phase that runs after the
// record is created.
func WithCompletionTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.completionTimeout = d
		}
	}
}

// WithStaleAfter sets the age at which PENDING records are swept.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithBillCircuitOpen controls whether a lookup answered by the open-circuit
// fallback is charged. Defaults to true.
func WithBillCircuitOpen(bill bool) Option {
	return func(s *Service) { s.billCircuitOpen = bill }
}

// WithLocation sets the zone in which "today" starts for StatsFor.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(ledger ports.TokenLedger, directory ports.UserDirectory, store ports.ResultStore, gateway ports.Gateway, opts ...Option) (*Service, error) {
	if ledger == nil {
		return nil, errors.New("token ledger is required")
	}
	if directory == nil {
		return nil, errors.New("user directory is required")
	}
	if store == nil {
		return nil, errors.New("result store is required")
	}
	if gateway == nil {
		return nil, errors.New("gateway is required")
	}
	s := &Service{
		ledger:            ledger,
		directory:         directory,
		store:             store,
		gateway:           gateway,
		logger:            slog.Default(),
		tracer:            otel.Tracer("idlookup/internal/query/service"),
		unitCost:          defaultUnitCost,
		completionTimeout: defaultCompletionTimeout,
		staleAfter:        defaultStaleAfter,
		billCircuitOpen:   true,
		location:          time.UTC,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UnitCost is the number of tokens one lookup costs.
func (s *Service) UnitCost() int64 {
	return s.unitCost
}

// Lookup validates, charges and performs one lookup.
//
// Validation and balance checks run on ctx. Once the PENDING record exists
// the remaining steps run detached from ctx cancellation, bounded by the
// completion timeout, so a charged record always reaches a terminal state.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) (*models.QueryRecord, error) {
	ctx, span := s.tracer.Start(ctx, "query.Lookup")
	defer span.End()

	id, err := identifier.Decompose(req.Identifier)
	if err != nil {
		s.metrics.RecordLookup("rejected", string(dErrors.CodeInvalidFormat), 0)
		return nil, err
	}
	span.SetAttributes(attribute.String("identifier.masked", id.Masked()))
	if !id.CheckDigitValid() {
		s.logger.WarnContext(ctx, "identifier check digit mismatch",
			"identifier", id.Masked(),
			"caller_id", req.CallerID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	if err := s.admit(ctx, req.CallerID); err != nil {
		s.metrics.RecordLookup("rejected", string(dErrors.CodeOf(err)), 0)
		return nil, err
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.completionTimeout)
	defer cancel()
	return s.execute(work, id, req)
}

// admit checks the caller exists, is active and can afford one lookup.
func (s *Service) admit(ctx context.Context, callerID string) error {
	caller, err := s.directory.FindCaller(ctx, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "caller not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve caller")
	}
	if !caller.Active {
		return dErrors.New(dErrors.CodeForbidden, "caller is inactive")
	}

	balance, err := s.ledger.Balance(ctx, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInsufficientBalance, "insufficient token balance")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read token balance")
	}
	if balance < s.unitCost {
		return dErrors.New(dErrors.CodeInsufficientBalance, "insufficient token balance")
	}
	return nil
}

func (s *Service) execute(ctx context.Context, id identifier.Identifier, req LookupRequest) (*models.QueryRecord, error) {
	started := s.now()
	record := models.NewQueryRecord(id, req.CallerID, s.unitCost, req.ClientIP, device.ParseUserAgent(req.UserAgent), started)
	log := s.logger.With(
		"query_id", record.ID.String(),
		"caller_id", req.CallerID,
		"identifier", id.Masked(),
		"request_id", requestcontext.RequestID(ctx),
	)

	if err := s.store.Create(ctx, record); err != nil {
		log.ErrorContext(ctx, "failed to create query record", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create query record")
	}
	log.InfoContext(ctx, "query created")

	if err := s.ledger.Debit(ctx, req.CallerID, s.unitCost); err != nil {
		log.WarnContext(ctx, "token debit failed", "error", err)
		s.fail(ctx, log, record, "token debit failed: "+err.Error(), "")
		s.metrics.RecordLookup("failed", "debit", s.now().Sub(started))
		return nil, dErrors.Wrap(err, dErrors.CodeInsufficientBalance, "insufficient token balance")
	}
	log.InfoContext(ctx, "tokens debited", "amount", s.unitCost)

	res, err := s.gateway.Fetch(ctx, id)
	if fault, reason := s.infrastructureFault(res, err); fault {
		log.WarnContext(ctx, "registry lookup failed", "reason", reason, "error", err)
		s.refund(ctx, log, record)
		s.fail(ctx, log, record, "identity registry unavailable: "+reason, reason)
		s.metrics.RecordLookup("failed", reason, s.now().Sub(started))
		return nil, dErrors.New(dErrors.CodeExternalService, "identity registry is unavailable, tokens were refunded")
	}

	pending := record.Clone()
	if err := record.MarkCompleted(res, s.now()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "query record left pending state early")
	}
	if err := s.persist(ctx, record); err != nil {
		// The charge must not outlive an outcome nobody can read back.
		log.ErrorContext(ctx, "failed to persist completed query", "error", err)
		s.refund(ctx, log, pending)
		s.fail(ctx, log, pending, "query outcome could not be recorded", "")
		s.metrics.RecordLookup("failed", "persist", s.now().Sub(started))
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record query outcome, tokens were refunded")
	}
	log.InfoContext(ctx, "query completed",
		"success", res.Success,
		"fallback", string(res.Fallback),
		"check_digit_valid", res.ValidationInfo.CheckDigitValid,
	)
	s.emit(ctx, record, audit.ActionQueryCompleted, string(res.Fallback), "")
	s.metrics.RecordLookup("completed", completedReason(res), s.now().Sub(started))
	return record, nil
}

// infrastructureFault decides whether a gateway answer must be refunded.
// Not-found answers and (by default) open-circuit fallbacks are billable.
func (s *Service) infrastructureFault(res *lookup.Result, err error) (bool, string) {
	switch {
	case err != nil:
		return true, "gateway_error"
	case res == nil:
		return true, "empty_result"
	case res.Fallback == lookup.FallbackUpstreamFailure:
		return true, string(lookup.FallbackUpstreamFailure)
	case res.Fallback == lookup.FallbackCircuitOpen && !s.billCircuitOpen:
		return true, string(lookup.FallbackCircuitOpen)
	default:
		return false, ""
	}
}

func completedReason(res *lookup.Result) string {
	switch {
	case res.IsFallback():
		return string(res.Fallback)
	case res.Success:
		return "found"
	default:
		return "not_found"
	}
}

// persist writes a terminal record, retrying once unless the stored record
// is already terminal.
func (s *Service) persist(ctx context.Context, record *models.QueryRecord) error {
	var err error
	for range persistAttempts {
		if err = s.store.Update(ctx, record); err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, sentinel.ErrInvalidState) {
			break
		}
	}
	return err
}

// refund credits the unit cost back. A failure is logged and audited; the
// caller still sees the original error.
func (s *Service) refund(ctx context.Context, log *slog.Logger, record *models.QueryRecord) {
	if err := s.ledger.Credit(ctx, record.CallerID, record.Cost); err != nil {
		log.ErrorContext(ctx, "token refund failed", "amount", record.Cost, "error", err)
		s.metrics.RecordRefund(false)
		s.emit(ctx, record, audit.ActionQueryRefundFailed, "", err.Error())
		return
	}
	log.InfoContext(ctx, "tokens refunded", "amount", record.Cost)
	s.metrics.RecordRefund(true)
}

func (s *Service) fail(ctx context.Context, log *slog.Logger, record *models.QueryRecord, msg, fallback string) {
	if err := record.MarkFailed(msg, s.now()); err != nil {
		log.ErrorContext(ctx, "query record already terminal", "status", string(record.Status))
		return
	}
	if err := s.store.Update(ctx, record); err != nil {
		log.ErrorContext(ctx, "failed to persist failed query", "error", err)
	}
	s.emit(ctx, record, audit.ActionQueryFailed, fallback, msg)
}

func (s *Service) emit(ctx context.Context, record *models.QueryRecord, action audit.Action, fallback, reason string) {
	if s.auditor == nil {
		return
	}
	masked := record.Identifier
	if id, err := identifier.Decompose(record.Identifier); err == nil {
		masked = id.Masked()
	}
	err := s.auditor.Emit(ctx, audit.Event{
		Action:     action,
		CallerID:   record.CallerID,
		QueryID:    record.ID.String(),
		Identifier: masked,
		Status:     string(record.Status),
		Fallback:   fallback,
		Reason:     reason,
		Cost:       record.Cost,
		RequestID:  requestcontext.RequestID(ctx),
		ClientIP:   record.ClientIP,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", string(action), "query_id", record.ID.String(), "error", err)
	}
}

// LookupAsync queues a lookup on the dispatcher. The returned channel
// receives exactly one outcome and is then closed.
func (s *Service) LookupAsync(ctx context.Context, req LookupRequest) (<-chan AsyncOutcome, error) {
	if s.dispatcher == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "async lookups are not enabled")
	}
	detached := context.WithoutCancel(ctx)
	out := make(chan AsyncOutcome, 1)
	err := s.dispatcher.Submit(func() {
		defer close(out)
		record, err := s.Lookup(detached, req)
		if err != nil {
			s.logger.InfoContext(detached, "async lookup finished with error",
				"caller_id", req.CallerID,
				"code", string(dErrors.CodeOf(err)),
			)
		}
		out <- AsyncOutcome{Record: record, Err: err}
	})
	if err != nil {
		s.metrics.IncAsyncRejected()
		if errors.Is(err, ErrQueueFull) {
			return nil, dErrors.Wrap(err, dErrors.CodeRateLimited, "too many pending async lookups")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "async lookups are shutting down")
	}
	return out, nil
}

// HistoryFor returns one page of the caller's records.
func (s *Service) HistoryFor(ctx context.Context, callerID string, req models.PageRequest) (models.Page[*models.QueryRecord], error) {
	req, err := req.Normalize()
	if err != nil {
		return models.Page[*models.QueryRecord]{}, err
	}
	items, total, err := s.store.ListByCaller(ctx, callerID, req)
	if err != nil {
		return models.Page[*models.QueryRecord]{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list queries")
	}
	return models.NewPage(items, req, total), nil
}

// Get returns one of the caller's own records. Other callers' records are
// reported as not found.
func (s *Service) Get(ctx context.Context, queryID uuid.UUID, callerID string) (*models.QueryRecord, error) {
	record, err := s.store.FindByID(ctx, queryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "query not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load query")
	}
	if record.CallerID != callerID {
		return nil, dErrors.New(dErrors.CodeNotFound, "query not found")
	}
	return record, nil
}

// Recent returns the caller's newest records, limit clamped to 1..20.
func (s *Service) Recent(ctx context.Context, callerID string, limit int) ([]*models.QueryRecord, error) {
	records, err := s.store.ListRecent(ctx, callerID, models.ClampRecent(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recent queries")
	}
	return records, nil
}

// Search returns the caller's records for one identifier in any accepted shape.
func (s *Service) Search(ctx context.Context, callerID, raw string) ([]*models.QueryRecord, error) {
	id, err := identifier.Decompose(raw)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListByIdentifier(ctx, callerID, id.Formatted())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to search queries")
	}
	return records, nil
}

// CanQuery reports whether the caller could start a lookup now.
func (s *Service) CanQuery(ctx context.Context, callerID string) (*models.CallerStatus, error) {
	caller, err := s.directory.FindCaller(ctx, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "caller not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve caller")
	}
	balance, err := s.ledger.Balance(ctx, callerID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read token balance")
	}
	return &models.CallerStatus{
		CanQuery: caller.Active && balance >= s.unitCost,
		Balance:  balance,
		UnitCost: s.unitCost,
		Active:   caller.Active,
	}, nil
}
