package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Record stores an accepted answer in the example index. A normal search stores
// its first pair; an agent search stores every pair plus the plan that produced
// them. It reports false on any failure and never returns an error.
func (p *Pipeline) Record(ctx context.Context, fb Feedback) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pipeline: panic while recording feedback", "panic", r)
			ok = false
		}
		status := "ok"
		if !ok {
			status = "error"
		}
		FeedbackTotal.WithLabelValues(string(fb.Intent), status).Inc()
	}()

	if err := p.record(ctx, fb); err != nil {
		p.log.Warn("pipeline: failed to record feedback", "profile", fb.Profile, "intent", fb.Intent, "error", err)
		return false
	}
	return true
}

func (p *Pipeline) record(ctx context.Context, fb Feedback) error {
	if fb.Profile == "" {
		return errors.New("profile is required")
	}

	switch fb.Intent {
	case IntentNormal:
		if len(fb.Answers) == 0 {
			return nil
		}
		first := fb.Answers[0]
		return p.cfg.Recorder.AddSample(ctx, fb.Profile, first.Query, first.SQL)
	case IntentAgent:
		queries := make([]string, 0, len(fb.Answers))
		for _, a := range fb.Answers {
			queries = append(queries, a.Query)
			if err := p.cfg.Recorder.AddSample(ctx, fb.Profile, a.Query, a.SQL); err != nil {
				return fmt.Errorf("failed to add sample %q: %w", a.Query, err)
			}
		}
		return p.cfg.Recorder.AddAgentCOTSample(ctx, fb.Profile, fb.Query, strings.Join(queries, "\n"))
	default:
		return nil
	}
}
