package signal

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		count int
		red   int
		amber int
		want  models.HealthBand
	}{
		{
			name:  "zero is green",
			count: 0,
			red:   5,
			amber: 1,
			want:  models.BandGreen,
		},
		{
			name:  "below amber is green",
			count: 2,
			red:   10,
			amber: 3,
			want:  models.BandGreen,
		},
		{
			name:  "at amber floor is amber",
			count: 1,
			red:   5,
			amber: 1,
			want:  models.BandAmber,
		},
		{
			name:  "between amber and red is amber",
			count: 4,
			red:   5,
			amber: 1,
			want:  models.BandAmber,
		},
		{
			name:  "at red ceiling is red",
			count: 5,
			red:   5,
			amber: 1,
			want:  models.BandRed,
		},
		{
			name:  "above red ceiling is red",
			count: 100,
			red:   5,
			amber: 1,
			want:  models.BandRed,
		},
		{
			name:  "no red ceiling caps at amber",
			count: 1000,
			red:   0,
			amber: 5,
			want:  models.BandAmber,
		},
		{
			name:  "disabled thresholds stay green",
			count: 1000,
			red:   0,
			amber: 0,
			want:  models.BandGreen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.count, tt.red, tt.amber)
			if got != tt.want {
				t.Errorf("Classify(%d, %d, %d) = %s, want %s", tt.count, tt.red, tt.amber, got, tt.want)
			}
		})
	}
}

func TestClassifyMonotonic(t *testing.T) {
	// A higher count must never produce a less severe band.
	bounds := []struct{ red, amber int }{
		{5, 1}, {10, 3}, {0, 5}, {0, 0}, {3, 3},
	}
	for _, b := range bounds {
		prev := models.BandGreen
		for count := 0; count <= 20; count++ {
			got := Classify(count, b.red, b.amber)
			if prev.Worse(got) {
				t.Fatalf("Classify(%d, %d, %d) = %s downgraded from %s", count, b.red, b.amber, got, prev)
			}
			prev = got
		}
	}
}

func TestComputeRagStatusAllGreen(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	now := time.Now().UTC()
	window := models.Window{Minutes: 15, From: now.Add(-15 * time.Minute), To: now}

	status := agg.ComputeRagStatus(models.SignalCounts{}, window, "test-v1", now)

	if status.Overall != models.BandGreen {
		t.Errorf("overall = %s, want green", status.Overall)
	}
	if len(status.TopIssues) != 0 {
		t.Errorf("top issues = %d, want none", len(status.TopIssues))
	}
	if status.RulesVersion != "test-v1" {
		t.Errorf("rules version = %q, want test-v1", status.RulesVersion)
	}
	if len(status.Signals) != 4 {
		t.Errorf("signals = %d, want 4", len(status.Signals))
	}
}

func TestComputeRagStatusWebhookRed(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	now := time.Now().UTC()
	window := models.Window{Minutes: 15, From: now.Add(-15 * time.Minute), To: now}

	counts := models.SignalCounts{
		WebhookFailures: 6,
		PortalErrors:    2,
	}
	status := agg.ComputeRagStatus(counts, window, "test-v1", now)

	if status.Overall != models.BandRed {
		t.Errorf("overall = %s, want red", status.Overall)
	}
	if status.Signals[models.SignalWebhookFailures].State != models.BandRed {
		t.Errorf("webhook_failures state = %s, want red", status.Signals[models.SignalWebhookFailures].State)
	}
	if len(status.TopIssues) == 0 {
		t.Fatal("expected top issues")
	}
	if status.TopIssues[0].Key != models.SignalWebhookFailures {
		t.Errorf("topIssues[0] = %s, want webhook_failures", status.TopIssues[0].Key)
	}
	if len(status.TopIssues[0].Actions) == 0 {
		t.Error("expected remediation actions for webhook_failures")
	}
}

func TestComputeRagStatusCriticalRateLimit(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	now := time.Now().UTC()
	window := models.Window{Minutes: 15, From: now.Add(-15 * time.Minute), To: now}

	// A single hit on a critical route is amber even though the general
	// rate limit signal stays green.
	counts := models.SignalCounts{
		RateLimitHits:         1,
		CriticalRateLimitHits: 1,
	}
	status := agg.ComputeRagStatus(counts, window, "test-v1", now)

	if status.Overall != models.BandAmber {
		t.Errorf("overall = %s, want amber", status.Overall)
	}
	crit, ok := status.Signals[models.SignalCriticalRateLimitHits]
	if !ok {
		t.Fatal("critical_rate_limit_hits signal missing")
	}
	if crit.State != models.BandAmber {
		t.Errorf("critical signal state = %s, want amber", crit.State)
	}

	// No critical hits: the signal is absent entirely.
	status = agg.ComputeRagStatus(models.SignalCounts{RateLimitHits: 1}, window, "test-v1", now)
	if _, ok := status.Signals[models.SignalCriticalRateLimitHits]; ok {
		t.Error("critical_rate_limit_hits present with zero count")
	}
}

func TestTopIssuesOrdering(t *testing.T) {
	agg := NewAggregator(DefaultThresholds())
	now := time.Now().UTC()
	window := models.Window{Minutes: 15, From: now.Add(-15 * time.Minute), To: now}

	// checkout red (7), webhook red (9), portal amber (4), rate limit green with count.
	counts := models.SignalCounts{
		WebhookFailures: 9,
		CheckoutErrors:  7,
		PortalErrors:    4,
		RateLimitHits:   2,
	}
	status := agg.ComputeRagStatus(counts, window, "test-v1", now)

	wantOrder := []string{
		models.SignalWebhookFailures, // red, count 9
		models.SignalCheckoutErrors,  // red, count 7
		models.SignalPortalErrors,    // amber, count 4
		models.SignalRateLimitHits,   // green, count 2
	}
	if len(status.TopIssues) != len(wantOrder) {
		t.Fatalf("top issues = %d, want %d", len(status.TopIssues), len(wantOrder))
	}
	for i, want := range wantOrder {
		if status.TopIssues[i].Key != want {
			t.Errorf("topIssues[%d] = %s, want %s", i, status.TopIssues[i].Key, want)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Thresholds)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(t *Thresholds) {},
			wantErr: false,
		},
		{
			name: "negative amber",
			mutate: func(t *Thresholds) {
				t.PortalErrors.Amber = -1
			},
			wantErr: true,
		},
		{
			name: "amber above red",
			mutate: func(t *Thresholds) {
				t.WebhookFailures = Threshold{Red: 2, Amber: 5}
			},
			wantErr: true,
		},
		{
			name: "amber above zero red is allowed",
			mutate: func(t *Thresholds) {
				t.RateLimitHits = Threshold{Red: 0, Amber: 50}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			tt.mutate(&th)
			err := th.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
