package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sqlgate/sqlgate/pkg/errors"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/metrics"
	"github.com/sqlgate/sqlgate/pkg/models"
	"github.com/sqlgate/sqlgate/pkg/repositories"
)

// GatewayConfig is the configuration surface the gateway honors. Values are
// injected; the gateway performs no environment lookups of its own.
type GatewayConfig struct {
	// DefaultRowCap bounds uncapped read statements. Zero means DefaultRowCap.
	DefaultRowCap int
	// AllowBatch permits multi-statement input. When false any embedded
	// separator rejects the whole input.
	AllowBatch bool
	// AllowWrites enables the write path. When false every write classifies
	// through a read-only authorization context regardless of the caller's.
	AllowWrites bool
	// QueryTimeout bounds each statement's execution. Zero disables the bound.
	QueryTimeout time.Duration
}

// gatewayService wires splitter, classifier, policy gate, limit injector,
// and executor into one invocation pipeline. It is stateless between calls;
// the only cross-call state it reads is the caller's authorization context.
type gatewayService struct {
	executor   repositories.QueryExecutor
	splitter   *Splitter
	classifier Classifier
	gate       *PolicyGate
	limiter    *LimitInjector
	cfg        GatewayConfig
	logger     zerolog.Logger
	metrics    metrics.Collector
}

// NewGateway creates the query gateway.
func NewGateway(
	executor repositories.QueryExecutor,
	cfg GatewayConfig,
	logger zerolog.Logger,
	collector metrics.Collector,
) Gateway {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}
	return &gatewayService{
		executor:   executor,
		splitter:   NewSplitter(cfg.AllowBatch),
		classifier: NewKeywordClassifier(),
		gate:       NewPolicyGate(),
		limiter:    NewLimitInjector(cfg.DefaultRowCap),
		cfg:        cfg,
		logger:     logger,
		metrics:    collector,
	}
}

// Execute validates and runs candidate SQL. Validation is a deterministic
// function of the input text and the authorization context; no statement
// touches the data source until the entire batch has been classified and the
// forbidden scan has passed.
func (s *gatewayService) Execute(ctx context.Context, rawSQL string, auth AuthorizationContext) ([]models.StatementResult, error) {
	timer := s.metrics.StartTimer("gateway_execute")
	defer timer.Stop()

	statements, err := s.splitter.Split(rawSQL)
	if err != nil {
		s.metrics.IncrementCounter("gateway_validation_rejections", "reason", "split")
		return nil, err
	}

	kinds := make([]StatementKind, len(statements))
	for i, stmt := range statements {
		kinds[i] = s.classifier.Classify(stmt.Text)
		// A forbidden keyword anywhere is fatal for the whole request.
		if kinds[i] == KindForbidden {
			s.metrics.IncrementCounter("gateway_validation_rejections", "reason", "forbidden")
			s.logger.Warn().
				Str("statement", stmt.Text).
				Int("position", stmt.Position).
				Msg("Forbidden keyword in candidate SQL")
			return nil, errors.ErrDangerousOperation
		}
	}

	if !s.cfg.AllowWrites {
		auth = ReadOnly
	}

	results := make([]models.StatementResult, 0, len(statements))
	for i, stmt := range statements {
		kind := kinds[i]

		if err := s.gate.Authorize(kind, auth); err != nil {
			s.metrics.IncrementCounter("gateway_validation_rejections", "reason", kind.String())
			s.logger.Warn().
				Str("kind", kind.String()).
				Int("position", stmt.Position).
				Msg("Statement rejected by policy gate")
			return nil, err
		}

		text := stmt.Text
		if kind == KindRead {
			text = s.limiter.Inject(text)
		}

		result, err := s.runStatement(ctx, text, kind)
		if err != nil {
			// Fail fast: prior committed writes stay committed.
			s.metrics.IncrementCounter("gateway_execution_errors")
			return nil, err
		}
		results = append(results, result)
	}

	s.metrics.IncrementCounter("gateway_requests_total", "outcome", "ok")
	return results, nil
}

// runStatement executes a single gated statement.
func (s *gatewayService) runStatement(ctx context.Context, text string, kind StatementKind) (models.StatementResult, error) {
	execCtx := ctx
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	switch kind {
	case KindRead:
		table, err := s.executor.ExecuteQuery(execCtx, text)
		if err != nil {
			s.logger.Error().Err(err).Str("query", text).Msg("Query execution failed")
			return models.StatementResult{}, err
		}
		s.metrics.RecordHistogram("gateway_query_rows", float64(len(table.Rows)))
		s.logger.Info().
			Str("query", text).
			Int("rows", len(table.Rows)).
			Dur("duration", time.Since(start)).
			Msg("Query executed")
		return models.StatementResult{Table: table}, nil

	case KindWrite:
		affected, err := s.executor.ExecuteWrite(execCtx, text)
		if err != nil {
			s.logger.Error().Err(err).Str("statement", text).Msg("Write execution failed")
			return models.StatementResult{}, err
		}
		s.metrics.RecordHistogram("gateway_write_affected_rows", float64(affected))
		s.logger.Info().
			Str("statement", text).
			Int64("rows_affected", affected).
			Dur("duration", time.Since(start)).
			Msg("Write executed")
		return models.StatementResult{Ack: WriteAck(text)}, nil

	default:
		return models.StatementResult{}, errors.ErrUnsupportedStatement
	}
}

// WriteAck renders the acknowledgment for an executed write statement.
func WriteAck(statement string) string {
	return leadingKeyword(statement) + " operation completed successfully"
}

// leadingKeyword returns the uppercased first token of a statement.
func leadingKeyword(statement string) string {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}
