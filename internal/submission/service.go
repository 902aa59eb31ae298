// Package submission turns a /verify payload into a persisted
// VerificationLog and provides the retrying client that sends it.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/behavior-verify-gateway/internal/aggregator"
	"github.com/tjfontaine/behavior-verify-gateway/internal/collector"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
	"github.com/tjfontaine/behavior-verify-gateway/internal/core/ports"
	"github.com/tjfontaine/behavior-verify-gateway/internal/metrics"
	"github.com/tjfontaine/behavior-verify-gateway/internal/telemetry"
	"github.com/tjfontaine/behavior-verify-gateway/internal/validator"
)

// Request is one submission as received by the server.
type Request struct {
	// SubmissionID is the client's idempotency key. Empty means one is
	// generated and the submission cannot be safely retried.
	SubmissionID string
	Payload      *collector.BehaviorPayload
	IPAddress    string
	UserAgent    string
	// ReceivedAt defaults to the service clock.
	ReceivedAt time.Time
}

// Result is the outcome of a recorded submission.
type Result struct {
	LogID        domain.LogID
	SubmissionID string
	Log          *domain.VerificationLog
}

// Service runs replay, aggregation, validation and classification, then
// appends the log. A submission either produces a stored log or an error;
// nothing partial is written.
type Service struct {
	aggregator *aggregator.Aggregator
	validator  *validator.Validator
	classifier ports.Classifier
	store      ports.LogAppender
	publisher  ports.EventPublisher
	geo        ports.GeoResolver
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	newID      func() string
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes a SubmissionEvent after each submission.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithGeoResolver resolves the client IP to a location for the
// geolocation_match check and the stored ip_latitude/ip_longitude.
func WithGeoResolver(r ports.GeoResolver) Option {
	return func(s *Service) { s.geo = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the receive time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides log and submission id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService wires the pipeline stages.
func NewService(v *validator.Validator, c ports.Classifier, store ports.LogAppender, opts ...Option) (*Service, error) {
	if v == nil {
		return nil, fmt.Errorf("validator required")
	}
	if c == nil {
		return nil, fmt.Errorf("classifier required")
	}
	if store == nil {
		return nil, fmt.Errorf("log store required")
	}

	s := &Service{
		validator:  v,
		classifier: c,
		store:      store,
		logger:     slog.Default(),
		tracer:     telemetry.Tracer(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.aggregator = aggregator.New(s.logger)
	return s, nil
}

// Submit records one submission. Payload problems return an invalid request
// APIError; store failures return a *domain.PersistenceError. Classifier,
// geo lookup and publisher failures are logged and never fail the submission.
func (s *Service) Submit(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "submission.submit")
	defer span.End()

	if req == nil || req.Payload == nil {
		return nil, domain.ErrInvalidRequest("userBehaviorData is required").WithCode(domain.ErrorCodeInvalidBody)
	}

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	submissionID := req.SubmissionID
	if submissionID == "" {
		submissionID = s.newID()
	}
	span.SetAttributes(attribute.String("submission.id", submissionID))

	if req.SubmissionID != "" {
		existing, err := s.store.FindBySubmission(ctx, submissionID)
		switch {
		case err == nil:
			return s.duplicate(ctx, existing), nil
		case !errors.Is(err, domain.ErrLogNotFound):
			metrics.SubmissionFailures.WithLabelValues("lookup").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "lookup failed")
			if !domain.IsPersistence(err) {
				err = &domain.PersistenceError{Op: "find", Err: err}
			}
			return nil, err
		}
	}

	session, err := collector.Replay(req.Payload, receivedAt)
	if err != nil {
		metrics.SubmissionFailures.WithLabelValues("replay").Inc()
		return nil, domain.ErrInvalidRequest(fmt.Sprintf("invalid behavior data: %v", err)).
			WithCode(domain.ErrorCodeInvalidBody).
			WithParam("userBehaviorData")
	}

	_, aggSpan := s.tracer.Start(ctx, "submission.aggregate")
	features, err := s.aggregator.Aggregate(session)
	aggSpan.End()
	if err != nil {
		metrics.SubmissionFailures.WithLabelValues("aggregate").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("aggregate session: %w", err)
	}

	meta := domain.SessionMetadata{
		IPAddress:          req.IPAddress,
		UserAgent:          firstNonEmpty(req.UserAgent, session.Context.UserAgent),
		BrowserFingerprint: session.Fingerprint,
		DeviceClass:        session.Context.DeviceClass,
		Geo:                session.Geo,
	}
	var geoNote string
	meta.IPGeo, geoNote = s.resolveIP(ctx, req.IPAddress)

	_, valSpan := s.tracer.Start(ctx, "submission.validate")
	results := s.validator.Validate(validator.Input{
		Features: features,
		Metadata: meta,
		Device:   session.Context,
	})
	failed := results.Failed()
	valSpan.SetAttributes(attribute.StringSlice("validation.failed", failed))
	valSpan.End()
	for _, check := range failed {
		metrics.ValidationFailures.WithLabelValues(check).Inc()
	}

	input := &domain.ClassifierInput{
		SubmissionID: submissionID,
		Features:     *features,
		Validation:   results,
		Metadata:     meta,
	}
	verdict, classifierNote := s.classify(ctx, input)

	log, err := s.buildLog(submissionID, receivedAt, session, features, results, meta, input, verdict)
	if err != nil {
		metrics.SubmissionFailures.WithLabelValues("encode").Inc()
		return nil, err
	}
	log.Notes = buildNotes(features.Anomalies, classifierNote, geoNote)

	appendCtx, appendSpan := s.tracer.Start(ctx, "submission.append")
	storeStart := time.Now()
	id, err := s.store.AppendLog(appendCtx, log)
	metrics.ObserveStore("append", storeStart)
	if err != nil {
		appendSpan.RecordError(err)
		appendSpan.SetStatus(codes.Error, "append failed")
		appendSpan.End()
		span.SetStatus(codes.Error, "append failed")
		metrics.SubmissionFailures.WithLabelValues("append").Inc()
		s.logger.ErrorContext(ctx, "failed to record verification",
			slog.String("submission_id", submissionID),
			slog.String("error", err.Error()))
		s.publish(ctx, &domain.SubmissionEvent{
			Type:         domain.SubmissionEventFailed,
			SubmissionID: submissionID,
			Timestamp:    receivedAt,
			Verdict:      log.VerdictLabel(),
			Error:        "persistence failure",
		})
		if !domain.IsPersistence(err) {
			err = &domain.PersistenceError{Op: "append", Err: err}
		}
		return nil, err
	}
	appendSpan.End()
	if id != log.ID {
		// A concurrent request with the same submission id was stored first.
		existing, err := s.store.FindBySubmission(ctx, submissionID)
		if err != nil {
			metrics.SubmissionFailures.WithLabelValues("lookup").Inc()
			if !domain.IsPersistence(err) {
				err = &domain.PersistenceError{Op: "find", Err: err}
			}
			return nil, err
		}
		return s.duplicate(ctx, existing), nil
	}

	metrics.Submissions.WithLabelValues(log.VerdictLabel()).Inc()
	metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("log.id", string(id)), attribute.String("verdict", log.VerdictLabel()))

	s.logger.InfoContext(ctx, "verification recorded",
		slog.String("log_id", string(id)),
		slog.String("submission_id", submissionID),
		slog.String("verdict", log.VerdictLabel()),
		slog.Int("failed_checks", len(failed)))

	s.publish(ctx, &domain.SubmissionEvent{
		Type:         domain.SubmissionEventRecorded,
		LogID:        id,
		SubmissionID: submissionID,
		Timestamp:    receivedAt,
		Verdict:      log.VerdictLabel(),
		FailedChecks: failed,
	})

	return &Result{LogID: id, SubmissionID: submissionID, Log: log}, nil
}

// duplicate answers a resubmission with the stored log. Nothing is
// classified, published or counted as a new submission.
func (s *Service) duplicate(ctx context.Context, existing *domain.VerificationLog) *Result {
	metrics.DuplicateSubmissions.Inc()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("log.id", string(existing.ID)),
		attribute.Bool("submission.duplicate", true))
	s.logger.InfoContext(ctx, "duplicate submission, returning stored log",
		slog.String("log_id", string(existing.ID)),
		slog.String("submission_id", existing.SubmissionID))
	return &Result{LogID: existing.ID, SubmissionID: existing.SubmissionID, Log: existing}
}

// classify returns the verdict, or nil and a note explaining its absence.
func (s *Service) classify(ctx context.Context, in *domain.ClassifierInput) (*domain.Verdict, string) {
	ctx, span := s.tracer.Start(ctx, "submission.classify",
		trace.WithAttributes(attribute.String("classifier", s.classifier.Name())))
	defer span.End()

	verdict, err := s.classifier.Classify(ctx, in)
	if err == nil && verdict != nil {
		return verdict, ""
	}
	if err == nil {
		err = domain.ErrClassifierUnavailable
	}

	span.RecordError(err)
	level := slog.LevelWarn
	if errors.Is(err, domain.ErrClassifierUnavailable) {
		level = slog.LevelDebug
	}
	s.logger.Log(ctx, level, "classifier returned no verdict",
		slog.String("classifier", s.classifier.Name()),
		slog.String("error", err.Error()))
	return nil, fmt.Sprintf("classifier %s: %v", s.classifier.Name(), err)
}

// resolveIP looks up the client IP. Lookup failures leave the location
// absent and return a note for the log.
func (s *Service) resolveIP(ctx context.Context, ip string) (domain.Opt[domain.GeoPayload], string) {
	if s.geo == nil || ip == "" {
		return domain.None[domain.GeoPayload](), ""
	}
	geoCtx, span := s.tracer.Start(ctx, "submission.geo")
	defer span.End()

	geo, err := s.geo.Lookup(geoCtx, ip)
	switch {
	case err == nil:
		metrics.GeoLookups.WithLabelValues(s.geo.Name(), metrics.GeoFound).Inc()
		return domain.Some(*geo), ""
	case errors.Is(err, domain.ErrLocationUnknown):
		metrics.GeoLookups.WithLabelValues(s.geo.Name(), metrics.GeoUnknown).Inc()
		return domain.None[domain.GeoPayload](), ""
	default:
		metrics.GeoLookups.WithLabelValues(s.geo.Name(), metrics.GeoError).Inc()
		span.RecordError(err)
		s.logger.DebugContext(ctx, "ip location lookup failed",
			slog.String("resolver", s.geo.Name()),
			slog.String("error", err.Error()))
		return domain.None[domain.GeoPayload](), fmt.Sprintf("geo %s: %v", s.geo.Name(), err)
	}
}

func (s *Service) buildLog(
	submissionID string,
	receivedAt time.Time,
	session *domain.BehaviorSession,
	f *domain.DerivedFeatures,
	results domain.ValidationResult,
	meta domain.SessionMetadata,
	input *domain.ClassifierInput,
	verdict *domain.Verdict,
) (*domain.VerificationLog, error) {
	modelFeatures, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode model features: %w", err)
	}

	mouse := f.Mouse
	keyboard := f.Keyboard
	scroll := f.Scroll
	log := &domain.VerificationLog{
		ID:                 domain.LogID(s.newID()),
		SubmissionID:       submissionID,
		SubmittedAt:        receivedAt.UTC(),
		IPAddress:          meta.IPAddress,
		UserAgent:          meta.UserAgent,
		BrowserFingerprint: meta.BrowserFingerprint,
		DeviceClass:        meta.DeviceClass,
		TimeOnPage:         f.TimeOnPage,
		IdleTime:           f.IdleTime,
		MouseMetrics:       &mouse,
		KeyboardMetrics:    &keyboard,
		ScrollMetrics:      &scroll,
		AngularVelocity:    f.AngularVelocity,
		ModelFeatures:      modelFeatures,
		ValidationResults:  results,
		Classifier:         s.classifier.Name(),
	}
	if geo, ok := session.Geo.Get(); ok {
		log.ReportedLatitude = domain.Some(geo.Latitude)
		log.ReportedLongitude = domain.Some(geo.Longitude)
	}
	if geo, ok := meta.IPGeo.Get(); ok {
		log.IPLatitude = domain.Some(geo.Latitude)
		log.IPLongitude = domain.Some(geo.Longitude)
	}
	if verdict != nil {
		log.IsBot = domain.Some(verdict.IsBot)
		log.Confidence = verdict.Confidence
	}
	return log, nil
}

func (s *Service) publish(ctx context.Context, event *domain.SubmissionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish submission event",
			slog.String("submission_id", event.SubmissionID),
			slog.String("error", err.Error()))
	}
}

// buildNotes summarizes capture anomalies and any degraded stage.
func buildNotes(anomalies []string, stageNotes ...string) string {
	var parts []string
	for _, n := range stageNotes {
		if n != "" {
			parts = append(parts, n)
		}
	}
	if n := len(anomalies); n > 0 {
		const maxListed = 5
		listed := anomalies
		if n > maxListed {
			listed = anomalies[:maxListed]
		}
		note := fmt.Sprintf("%d capture anomalies: %s", n, strings.Join(listed, ", "))
		if n > maxListed {
			note += ", ..."
		}
		parts = append(parts, note)
	}
	return strings.Join(parts, "; ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
