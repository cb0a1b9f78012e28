// Package alerting holds the fixed alert rule catalog, the per-tick
// evaluator, and the transition detector that diffs evaluated states
// against persisted ones.
package alerting

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// EvalInput is everything a rule may consume for one evaluation tick.
type EvalInput struct {
	Counts models.SignalCounts
	Rag    models.RagStatus
}

// Result is one rule's output for a tick.
type Result struct {
	Key      string                     `json:"key"`
	State    models.AlertStateValue     `json:"state"`
	Severity models.Severity            `json:"severity"`
	Summary  string                     `json:"summary"`
	Signals  map[string]int             `json:"signals,omitempty"`
	Actions  []models.RemediationAction `json:"actions,omitempty"`
}

// Rule is one entry in the fixed catalog. Identity is the Key; the
// catalog is extended by adding entries, never by silently changing an
// existing key's semantics.
type Rule struct {
	Key      string
	Severity models.Severity
	Evaluate func(in EvalInput) Result
}

// PayloadHash digests a result's material content. An unchanged hash
// while still firing means "nothing new to say" for dedup purposes.
func PayloadHash(r Result) string {
	var b strings.Builder
	b.WriteString(r.Key)
	b.WriteByte('|')
	b.WriteString(r.Summary)
	b.WriteByte('|')

	keys := make([]string, 0, len(r.Signals))
	for k := range r.Signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(r.Signals[k]))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	for _, a := range r.Actions {
		b.WriteString(a.Key)
		b.WriteByte(',')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
