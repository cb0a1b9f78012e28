package billing

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/opswatch/internal/masking"
	"github.com/good-yellow-bee/opswatch/internal/metrics"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

const (
	// snapshotEventLimit bounds how many activity rows one status
	// request may pull from the event store.
	snapshotEventLimit = 200

	// providerTimeout bounds the optional provider-side lookup so a
	// slow billing API cannot stall the whole status endpoint.
	providerTimeout = 5 * time.Second
)

// ErrCodeProviderSnapshot is surfaced on partial results when the
// provider-side lookup fails. Local correlation is still returned.
const ErrCodeProviderSnapshot = "STRIPE_SNAPSHOT_FAILED"

// ProviderSnapshot is the provider-side view of a purchase, fetched
// best-effort from the payment provider's API.
type ProviderSnapshot struct {
	CustomerRef    string     `json:"customer_ref,omitempty"`
	PaymentStatus  string     `json:"payment_status,omitempty"`
	LastEventType  string     `json:"last_event_type,omitempty"`
	LastEventAt    *time.Time `json:"last_event_at,omitempty"`
	PendingWebhook bool       `json:"pending_webhook"`
}

// ProviderClient fetches the provider-side snapshot for a request.
// Implementations live at the edge; a nil client disables the lookup.
type ProviderClient interface {
	Snapshot(ctx context.Context, requestID string) (*ProviderSnapshot, error)
}

// WebhookStatus is the support-tooling read model: the reconstructed
// timeline, the correlator's diagnosis, and the optional provider view.
// All strings are masked before they reach this struct.
type WebhookStatus struct {
	RequestID        string                    `json:"request_id"`
	Timeline         []models.TimelineEntry    `json:"timeline"`
	Correlation      models.BillingCorrelation `json:"correlation"`
	CreditsAvailable *int                      `json:"credits_available,omitempty"`
	Provider         *ProviderSnapshot         `json:"provider,omitempty"`
	ErrorCode        string                    `json:"error_code,omitempty"`
	GeneratedAt      time.Time                 `json:"generated_at"`
}

// StatusService assembles WebhookStatus snapshots from the activity
// store, the credit ledger, and (optionally) the payment provider.
type StatusService struct {
	events     storage.EventStorage
	ledger     storage.LedgerRepository
	provider   ProviderClient
	correlator *Correlator
}

func NewStatusService(events storage.EventStorage, ledger storage.LedgerRepository, provider ProviderClient) *StatusService {
	return &StatusService{
		events:     events,
		ledger:     ledger,
		provider:   provider,
		correlator: &Correlator{},
	}
}

// Snapshot builds the status for one request id. The local and
// provider-side fetches run concurrently; a provider failure degrades
// the result to a partial snapshot with ErrorCode set instead of
// failing the whole request.
func (s *StatusService) Snapshot(ctx context.Context, requestID string, now time.Time) (*WebhookStatus, error) {
	var (
		events       []*models.ActivityEvent
		ledgerRows   []*models.LedgerEntry
		balance      int
		provider     *ProviderSnapshot
		providerFail bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		events, err = s.events.ListByRequestID(gctx, requestID, snapshotEventLimit)
		if err != nil {
			return fmt.Errorf("list activity events: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		ledgerRows, err = s.ledger.ListByRequest(gctx, requestID)
		if err != nil {
			return fmt.Errorf("list ledger rows: %w", err)
		}
		balance, err = s.ledger.Balance(gctx)
		if err != nil {
			return fmt.Errorf("ledger balance: %w", err)
		}
		return nil
	})

	if s.provider != nil {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, providerTimeout)
			defer cancel()
			snap, err := s.provider.Snapshot(pctx, requestID)
			if err != nil {
				// Best-effort: record the failure, keep the local view.
				providerFail = true
				metrics.ProviderSnapshotErrors.Inc()
				return nil
			}
			provider = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	timeline := BuildTimeline(events, ledgerRows)
	correlation := s.correlator.Correlate(timeline, len(ledgerRows) > 0, &balance, now)
	correlation.Explanation = masking.ReasonString(correlation.Explanation)
	metrics.CorrelationStates.WithLabelValues(string(correlation.State)).Inc()

	status := &WebhookStatus{
		RequestID:        requestID,
		Timeline:         timeline,
		Correlation:      correlation,
		CreditsAvailable: &balance,
		Provider:         provider,
		GeneratedAt:      now,
	}
	if providerFail {
		status.ErrorCode = ErrCodeProviderSnapshot
	}
	return status, nil
}
