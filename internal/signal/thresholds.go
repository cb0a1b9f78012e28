package signal

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// noRed disables the red ceiling for a signal.
const noRed = 0

// Threshold holds the per-signal classification bounds. A Red of zero
// means the signal has no red ceiling.
type Threshold struct {
	Red   int `yaml:"red"`
	Amber int `yaml:"amber"`
}

// Thresholds holds per-signal classification bounds for the aggregator.
// The defaults are deployment-tunable configuration, not business
// requirements; changing them must bump the catalog rules version.
type Thresholds struct {
	WebhookFailures Threshold `yaml:"webhook_failures"`
	PortalErrors    Threshold `yaml:"portal_errors"`
	CheckoutErrors  Threshold `yaml:"checkout_errors"`
	RateLimitHits   Threshold `yaml:"rate_limit_hits"`
}

// DefaultThresholds returns the stock classification bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WebhookFailures: Threshold{Red: 5, Amber: 1},
		PortalErrors:    Threshold{Red: 10, Amber: 3},
		CheckoutErrors:  Threshold{Red: 5, Amber: 1},
		RateLimitHits:   Threshold{Red: noRed, Amber: 5},
	}
}

// LoadThresholds reads threshold overrides from a YAML file, filling
// unset fields from the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read thresholds file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return DefaultThresholds(), fmt.Errorf("parse thresholds file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return DefaultThresholds(), fmt.Errorf("validate thresholds file: %w", err)
	}
	return t, nil
}

// Validate checks the thresholds for consistency.
func (t Thresholds) Validate() error {
	for name, th := range map[string]Threshold{
		"webhook_failures": t.WebhookFailures,
		"portal_errors":    t.PortalErrors,
		"checkout_errors":  t.CheckoutErrors,
		"rate_limit_hits":  t.RateLimitHits,
	} {
		if th.Amber < 0 || th.Red < 0 {
			return fmt.Errorf("%s: thresholds must be non-negative", name)
		}
		if th.Red != noRed && th.Amber > th.Red {
			return fmt.Errorf("%s: amber threshold exceeds red", name)
		}
	}
	return nil
}
