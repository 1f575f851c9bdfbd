package pgmcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Antonhansel/my-pg-mcp/internal/fingerprint"
	"github.com/Antonhansel/my-pg-mcp/internal/gate"
	"github.com/Antonhansel/my-pg-mcp/internal/limits"
	"github.com/Antonhansel/my-pg-mcp/internal/metrics"
)

const (
	blockedPrefix = "Query blocked for safety: "
	logSQLMaxLen  = 200
	rollbackGrace = 5 * time.Second
)

// Query runs the full gated pipeline: resolve limits, analyze, rewrite,
// execute, sanitize. Every failure is returned in output.Error with the
// typed cause in output.Err, so callers only need to check the output.
func (p *PostgresMcp) Query(ctx context.Context, input QueryInput) *QueryOutput {
	startTime := time.Now()
	l := p.limits.Resolve()
	log := p.loggerFor(ctx)

	finalSQL, verdict := p.analyzer.Prepare(input.SQL, l)
	p.metrics.Verdict(verdict.Allowed, verdict.Rule)

	if verdict.Rejected() {
		var err error
		if verdict.Reason == gate.ReasonTooLong {
			err = &ValidationError{Field: "sql", Reason: verdict.Reason}
		} else {
			err = &SafetyRejection{Reason: verdict.Reason, Rule: verdict.Rule}
		}
		log.Warn().
			Str("reason", verdict.Reason).
			Str("rule", verdict.Rule).
			Int("sql_length", len(input.SQL)).
			Msg("query blocked")
		return &QueryOutput{Error: blockedPrefix + verdict.Reason, Err: err}
	}

	rewritten := finalSQL != input.SQL
	if rewritten {
		p.metrics.Rewrite()
		log.Info().
			Str("original", fingerprint.Truncate(input.SQL, logSQLMaxLen)).
			Str("modified", fingerprint.Truncate(finalSQL, logSQLMaxLen)).
			Str("note", verdict.Note).
			Msg("query modified for safety")
	}

	output, err := p.Execute(ctx, finalSQL, l)
	if err != nil {
		return p.handleError(log, err)
	}
	output.Rewritten = rewritten

	if p.sanitizer.HasRules() {
		output.Rows = p.sanitizer.SanitizeRows(output.Rows)
	}

	summary := fingerprint.Summarize(finalSQL, logSQLMaxLen)
	logEvent := log.Info().
		Str("sql", summary.Normalized).
		Dur("duration", time.Since(startTime)).
		Int("row_count", len(output.Rows)).
		Str("rows", humanize.Comma(int64(len(output.Rows)))).
		Bool("rewritten", rewritten).
		Bool("row_limit_hit", output.RowCountHitLimit)
	if summary.Parsed {
		logEvent = logEvent.Str("fingerprint", summary.Fingerprint)
	}
	if p.sanitizer.HasRules() {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("query executed")

	return output
}

// Execute runs finalSQL inside a read-only transaction with a
// transaction-local statement timeout. finalSQL is sent as is: callers
// are expected to have passed it through the gate.
//
// The acquired connection is rolled back and released on every path.
// Failures are returned as *ExecutionFailure.
func (p *PostgresMcp) Execute(ctx context.Context, finalSQL string, l limits.Limits) (*QueryOutput, error) {
	// Acquire semaphore (respects context cancellation to prevent deadlock)
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, p.executionFailure(fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err()))
	}
	defer func() { <-p.semaphore }()

	startTime := time.Now()
	output, err := p.execute(ctx, finalSQL, l)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	p.metrics.Execution(outcome, output != nil && output.RowCountHitLimit, time.Since(startTime))
	if err != nil {
		return nil, p.executionFailure(err)
	}
	return output, nil
}

func (p *PostgresMcp) execute(ctx context.Context, finalSQL string, l limits.Limits) (*QueryOutput, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var tx Tx
	// Every acquired connection is rolled back once, then released, whichever
	// step failed. Detached from ctx so a cancelled or timed-out request still
	// rolls back before the connection returns to the pool.
	defer func() {
		defer conn.Release()
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackGrace)
		defer cancel()
		var rbErr error
		if tx != nil {
			rbErr = tx.Rollback(rbCtx)
		} else {
			_, rbErr = conn.Exec(rbCtx, "ROLLBACK")
		}
		if rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log := p.loggerFor(ctx)
			log.Warn().Err(rbErr).Msg("rollback failed")
		}
	}()

	tx, err = conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", l.TimeoutMs)); err != nil {
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, finalSQL)
	if err != nil {
		return nil, err
	}
	output, err := collectRows(rows)
	if err != nil {
		return nil, err
	}

	output.SQL = finalSQL
	output.RowLimit = l.MaxRows
	output.RowCountHitLimit = len(output.Rows) == l.MaxRows
	return output, nil
}

// collectRows reads all rows from pgx.Rows and returns a QueryOutput.
func collectRows(rows pgx.Rows) (*QueryOutput, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &QueryOutput{Columns: columns, Rows: resultRows}, nil
}

// executionFailure wraps err and appends any matching error prompt.
func (p *PostgresMcp) executionFailure(err error) *ExecutionFailure {
	return &ExecutionFailure{Message: p.errPrompts.Decorate(err.Error()), Err: err}
}

// handleError converts a gateway error into a QueryOutput.
func (p *PostgresMcp) handleError(log zerolog.Logger, err error) *QueryOutput {
	logEvent := log.Error().Err(err)
	var failure *ExecutionFailure
	if errors.As(err, &failure) && failure.Err != nil {
		if patterns := p.errPrompts.MatchedPatterns(failure.Err.Error()); len(patterns) > 0 {
			logEvent = logEvent.Strs("error_prompts", patterns)
		}
	}
	logEvent.Msg("query error")
	return &QueryOutput{Error: err.Error(), Err: err}
}

// FormatQueryResult renders a successful QueryOutput as the tool text:
// the rows as indented JSON, followed by a warning when the row cap was
// reached.
func FormatQueryResult(output *QueryOutput) (string, error) {
	text, err := marshalIndent(orderedRows(output.Columns, output.Rows))
	if err != nil {
		return "", fmt.Errorf("failed to marshal query result: %w", err)
	}
	if output.RowCountHitLimit {
		var sb strings.Builder
		sb.WriteString(text)
		fmt.Fprintf(&sb, "\n\nResults limited to %d rows. Use LIMIT clause for different limits.", output.RowLimit)
		return sb.String(), nil
	}
	return text, nil
}
