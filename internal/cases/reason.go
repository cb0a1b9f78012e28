package cases

import (
	"sort"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// reasonRank maps each code to its precedence position, lowest wins.
var reasonRank = func() map[models.ReasonCode]int {
	m := make(map[models.ReasonCode]int, len(models.ReasonPrecedence))
	for i, code := range models.ReasonPrecedence {
		m[code] = i
	}
	return m
}()

// ResolveCaseReason picks the case's explanation from candidate
// sources. Sources outside [windowStart, now] are eliminated first;
// survivors with the same (code, primarySource) merge by summing
// counts and keeping the most recent timestamp. Precedence then wins
// over recency. No surviving source means UNKNOWN.
func ResolveCaseReason(sources []models.CaseReasonSource, windowStart, now time.Time) models.CaseReason {
	type mergeKey struct {
		code   models.ReasonCode
		source string
	}

	merged := make(map[mergeKey]models.CaseReasonSource)
	for _, src := range sources {
		if src.LastSeenAt.Before(windowStart) || src.LastSeenAt.After(now) {
			continue
		}
		k := mergeKey{code: src.Code, source: src.PrimarySource}
		cur, ok := merged[k]
		if !ok {
			merged[k] = src
			continue
		}
		cur.Count += src.Count
		if src.LastSeenAt.After(cur.LastSeenAt) {
			cur.LastSeenAt = src.LastSeenAt
			cur.Detail = src.Detail
		}
		merged[k] = cur
	}

	if len(merged) == 0 {
		return models.CaseReason{Code: models.ReasonUnknown}
	}

	candidates := make([]models.CaseReasonSource, 0, len(merged))
	for _, src := range merged {
		candidates = append(candidates, src)
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := rankOf(candidates[i].Code), rankOf(candidates[j].Code)
		if ri != rj {
			return ri < rj
		}
		if !candidates[i].LastSeenAt.Equal(candidates[j].LastSeenAt) {
			return candidates[i].LastSeenAt.After(candidates[j].LastSeenAt)
		}
		return candidates[i].PrimarySource < candidates[j].PrimarySource
	})

	top := candidates[0]
	return models.CaseReason{
		Code:          top.Code,
		Count:         top.Count,
		LastSeenAt:    top.LastSeenAt,
		PrimarySource: top.PrimarySource,
		Detail:        top.Detail,
	}
}

func rankOf(code models.ReasonCode) int {
	if r, ok := reasonRank[code]; ok {
		return r
	}
	return len(models.ReasonPrecedence)
}

// GatherReasonSources derives reason candidates for one case from the
// freshest alert and activity signals the callers already hold.
func GatherReasonSources(events []*models.ActivityEvent, alertEvents []*models.AlertEvent, recentAlertWindow time.Duration, now time.Time) []models.CaseReasonSource {
	var sources []models.CaseReasonSource

	for _, ev := range alertEvents {
		code := models.ReasonAlertRecent
		if ev.State == models.AlertFiring && now.Sub(ev.At) <= recentAlertWindow {
			code = models.ReasonAlertFiring
		}
		sources = append(sources, models.CaseReasonSource{
			Code:          code,
			Count:         1,
			LastSeenAt:    ev.At,
			PrimarySource: "alert:" + ev.Key,
			Detail:        ev.MaskedSummary,
		})
	}

	for _, ev := range events {
		var code models.ReasonCode
		switch {
		case ev.Type == models.EventTypeWebhookFailure || ev.Type == models.EventTypeWebhookError:
			code = models.ReasonWebhookFailure
		case ev.Type == models.EventTypePortalError:
			code = models.ReasonPortalError
		case ev.Type == models.EventTypeRateLimitHit:
			code = models.ReasonRateLimit
		case ev.Type == models.EventTypeCheckoutError:
			code = models.ReasonBillingRecheck
		default:
			continue
		}
		sources = append(sources, models.CaseReasonSource{
			Code:          code,
			Count:         1,
			LastSeenAt:    ev.OccurredAt,
			PrimarySource: "event:" + ev.Type,
			Detail:        ev.Route,
		})
	}

	return sources
}
