package recalc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/pipeline/retry"
)

// HTTPEngine forwards recalculation requests to the external cost-basis
// service. Transient failures are retried in place with jittered backoff;
// terminal failures return immediately and leave the signal unacked for
// redelivery.
type HTTPEngine struct {
	url         string
	client      *http.Client
	policy      *retry.Policy
	maxAttempts int
	logger      *slog.Logger
}

func NewHTTPEngine(url string, policy *retry.Policy, maxAttempts int, logger *slog.Logger) *HTTPEngine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &HTTPEngine{
		url:         url,
		client:      &http.Client{Timeout: 30 * time.Second},
		policy:      policy,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "recalc_engine"),
	}
}

func (e *HTTPEngine) Recalculate(ctx context.Context, sig model.RecalcSignal) error {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.policy.Delay(attempt - 1)):
			}
		}

		lastErr = e.post(ctx, sig)
		if lastErr == nil {
			return nil
		}
		if !retry.Classify(lastErr).IsTransient() {
			return lastErr
		}
		e.logger.Warn("recalc request retrying",
			"wallet", sig.WalletAddress,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return lastErr
}

func (e *HTTPEngine) post(ctx context.Context, sig model.RecalcSignal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return retry.Terminal(fmt.Errorf("marshal recalc request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return retry.Terminal(fmt.Errorf("build recalc request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("recalc request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("recalc engine http status %d", resp.StatusCode)
	}
	return nil
}
