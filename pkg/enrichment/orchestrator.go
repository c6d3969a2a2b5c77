package enrichment

import (
	"context"
	"strings"
	"sync"

	"github.com/sentryhound/sentryhound/pkg/events"
)

// supportedIOCTypes is the set of indicator types enrichment ever runs for
// (spec §4.8: "Only enriches IP, domain, and hash IOC types").
var supportedIOCTypes = map[string]bool{"ip": true, "domain": true, "hash": true}

// IndicatorInput is the minimal (type, value) pair the orchestrator needs —
// kept independent of pkg/ai.Indicator so this package has no upstream
// dependency on the AI pipeline.
type IndicatorInput struct {
	Type  string
	Value string
}

// Publisher is the subset of events.Bus the orchestrator needs.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// Orchestrator fans an indicator out to every configured Provider in
// parallel and emits the mcp.* event sequence (spec §4.8).
type Orchestrator struct {
	providers []Provider
	bus       Publisher
}

// NewOrchestrator constructs an Orchestrator. An empty providers slice is
// valid — EnrichIndicators becomes a no-op, matching "no providers
// configured" in the original.
func NewOrchestrator(providers []Provider, bus Publisher) *Orchestrator {
	return &Orchestrator{providers: providers, bus: bus}
}

// EnrichIndicators enriches every supported indicator on a finding,
// fire-and-forget: callers should invoke this in its own goroutine, since it
// blocks for the duration of every provider call but must never hold up
// finding persistence (spec §4.8).
func (o *Orchestrator) EnrichIndicators(ctx context.Context, sessionID, findingID string, indicators []IndicatorInput) {
	var wg sync.WaitGroup
	for _, ioc := range indicators {
		if !supportedIOCTypes[ioc.Type] || ioc.Value == "" {
			continue
		}
		wg.Add(1)
		go func(ioc IndicatorInput) {
			defer wg.Done()
			o.enrichOne(ctx, sessionID, findingID, ioc.Type, ioc.Value)
		}(ioc)
	}
	wg.Wait()
}

// enrichOne runs every provider in parallel for a single IOC and, if any
// succeeded, emits one aggregate mcp.enrichment_applied event.
func (o *Orchestrator) enrichOne(ctx context.Context, sessionID, findingID, iocType, iocValue string) {
	if len(o.providers) == 0 {
		return
	}

	results := make([]Result, len(o.providers))
	var wg sync.WaitGroup
	for i, provider := range o.providers {
		wg.Add(1)
		go func(i int, provider Provider) {
			defer wg.Done()
			results[i] = o.lookupOne(ctx, sessionID, findingID, iocType, iocValue, provider)
		}(i, provider)
	}
	wg.Wait()

	var summaries []string
	for _, r := range results {
		if r.Error == "" {
			summaries = append(summaries, r.Summary())
		}
	}
	if len(summaries) > 0 {
		o.publish(ctx, events.EventMCPEnrichmentApplied, sessionID, map[string]any{
			"finding_id":         findingID,
			"enrichment_summary": strings.Join(summaries, "; "),
		})
	}
}

func (o *Orchestrator) lookupOne(ctx context.Context, sessionID, findingID, iocType, iocValue string, provider Provider) Result {
	o.publish(ctx, events.EventMCPLookupStarted, sessionID, map[string]any{
		"finding_id": findingID,
		"provider":   provider.Name(),
		"ioc_type":   iocType,
		"ioc_value":  iocValue,
	})

	result := provider.Lookup(ctx, iocType, iocValue)

	if result.Error != "" {
		o.publish(ctx, events.EventMCPLookupFailed, sessionID, map[string]any{
			"finding_id": findingID,
			"provider":   provider.Name(),
			"error":      result.Error,
		})
	} else {
		o.publish(ctx, events.EventMCPLookupCompleted, sessionID, map[string]any{
			"finding_id":      findingID,
			"provider":        provider.Name(),
			"result_summary":  result.Summary(),
		})
	}

	return result
}

func (o *Orchestrator) publish(ctx context.Context, t events.EventType, sessionID string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, events.NewEvent(t, sessionID, payload))
}
