package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subsidia/internal/common"
	"github.com/ternarybob/subsidia/internal/interfaces"
	"github.com/ternarybob/subsidia/internal/models"
)

// State tracks where a discovery request is in its lifecycle.
type State string

const (
	StateSearching State = "searching"
	StateDeduping  State = "deduping"
	StateVerifying State = "verifying"
	StateReporting State = "reporting"
	StateDone      State = "done"
)

// exclusionListLimit caps how many previously shown titles are fed back
// to the search prompt.
const exclusionListLimit = 30

// candidateFinder is the slice of the finder the orchestrator needs.
type candidateFinder interface {
	Search(ctx context.Context, profile string, excluded []string) ([]*models.Opportunity, []interfaces.GroundingSource, error)
	VerifyCandidate(ctx context.Context, opp *models.Opportunity)
}

// Request is one discovery run for one scope.
type Request struct {
	Scope   string
	Profile string

	// Events receives progress updates when non-nil. Sends never block;
	// a slow consumer just misses events.
	Events chan<- models.ProgressEvent
}

// Result is the outcome of a discovery run.
type Result struct {
	Verified []*models.Opportunity
	Sources  []interfaces.GroundingSource
	Skipped  int
	Deduped  int
	Report   string
	State    State
}

// Orchestrator drives the search, dedup, verify, report pipeline with a
// bounded worker pool and a global wall-clock budget.
type Orchestrator struct {
	finder candidateFinder
	ledger interfaces.HistoryLedger
	config *common.Config
	logger arbor.ILogger
}

// NewOrchestrator creates a discovery orchestrator.
func NewOrchestrator(finder candidateFinder, ledger interfaces.HistoryLedger, config *common.Config, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		finder: finder,
		ledger: ledger,
		config: config,
		logger: logger,
	}
}

// Run executes one discovery request. Expiry of the global budget is
// not an error; it degrades to whatever was verified in time.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.config.Discovery.GlobalBudget)
	defer cancel()

	result := &Result{State: StateSearching}

	o.emit(req, models.StageSearching, "", "Searching for funding opportunities")
	candidates, sources, err := o.search(runCtx, req)
	if err != nil {
		if runCtx.Err() != nil {
			o.logger.Warn().Msg("Discovery budget expired before search completed")
			return o.finish(req, result, nil), nil
		}
		o.emit(req, models.StageError, "", err.Error())
		return nil, err
	}
	result.Sources = sources

	result.State = StateDeduping
	o.emit(req, models.StageDeduping, "", fmt.Sprintf("Checking %d candidates against history", len(candidates)))
	fresh := o.dedup(req.Scope, candidates)
	result.Deduped = len(candidates) - len(fresh)

	if max := o.config.Discovery.MaxCandidates; max > 0 && len(fresh) > max {
		fresh = fresh[:max]
	}

	if len(fresh) == 0 {
		return o.finish(req, result, nil), nil
	}

	result.State = StateVerifying
	verified, skipped := o.verifyAll(runCtx, req, fresh)
	result.Skipped = skipped

	for _, opp := range verified {
		if err := o.ledger.RecordShown(req.Scope, opp); err != nil {
			o.logger.Warn().Err(err).Str("title", opp.Title).Msg("Failed to record opportunity in ledger")
		}
	}

	return o.finish(req, result, verified), nil
}

// search builds the exclusion list and runs the grounded search.
func (o *Orchestrator) search(ctx context.Context, req *Request) ([]*models.Opportunity, []interfaces.GroundingSource, error) {
	excluded, err := o.ledger.ShownTitles(req.Scope, exclusionListLimit)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Could not load exclusion list, searching without it")
		excluded = nil
	}
	return o.finder.Search(ctx, req.Profile, excluded)
}

// dedup drops candidates already shown to this scope. Ledger failures
// err toward showing the candidate again.
func (o *Orchestrator) dedup(scope string, candidates []*models.Opportunity) []*models.Opportunity {
	fresh := make([]*models.Opportunity, 0, len(candidates))
	for _, opp := range candidates {
		shown, err := o.ledger.IsShown(scope, opp.Title, opp.OfficialURL)
		if err != nil {
			o.logger.Warn().Err(err).Str("title", opp.Title).Msg("Ledger lookup failed, keeping candidate")
			shown = false
		}
		if shown {
			o.logger.Debug().Str("title", opp.Title).Msg("Candidate already shown, dropping")
			continue
		}
		fresh = append(fresh, opp)
	}
	return fresh
}

// verifyAll fans candidates out to a fixed worker pool and collects
// verified opportunities. Each collection waits at most the per-result
// timeout; expiry abandons the remaining candidates as skipped.
func (o *Orchestrator) verifyAll(ctx context.Context, req *Request, candidates []*models.Opportunity) ([]*models.Opportunity, int) {
	workers := o.config.Discovery.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan *models.Opportunity)
	// Buffered to hold every candidate so workers can always deliver,
	// even after the collector abandons the loop on a timeout.
	results := make(chan *models.Opportunity, len(candidates))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for opp := range jobs {
				if ctx.Err() == nil {
					o.emit(req, models.StageVerifying, opp.Title, "Verifying official page")
					o.finder.VerifyCandidate(ctx, opp)
				}
				results <- opp
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, opp := range candidates {
			select {
			case jobs <- opp:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var verified []*models.Opportunity
	collected := 0
	skipped := 0

collect:
	for collected < len(candidates) {
		select {
		case opp, ok := <-results:
			if !ok {
				break collect
			}
			collected++
			if ctx.Err() != nil && !opp.IsValid && opp.ExcludeReason == "" {
				skipped++
				continue
			}
			if opp.IsValid {
				verified = append(verified, opp)
				o.emit(req, models.StageVerifying, opp.Title, "Verified")
			} else {
				o.emit(req, models.StageWarning, opp.Title, opp.ExcludeReason)
			}
		case <-time.After(o.config.Discovery.ResultTimeout):
			o.logger.Warn().
				Int("collected", collected).
				Int("pending", len(candidates)-collected).
				Msg("Result collection timed out, abandoning remaining candidates")
			break collect
		}
	}
	skipped += len(candidates) - collected

	sort.SliceStable(verified, func(i, j int) bool {
		return verified[i].ResonanceScore > verified[j].ResonanceScore
	})
	return verified, skipped
}

// finish renders the report and closes out the request.
func (o *Orchestrator) finish(req *Request, result *Result, verified []*models.Opportunity) *Result {
	result.Verified = verified
	result.State = StateReporting
	result.Report = RenderReport(verified, time.Now())

	result.State = StateDone
	o.emit(req, models.StageCompleted, "", fmt.Sprintf("Discovery completed, %d opportunities verified", len(verified)))
	o.logger.Info().
		Int("verified", len(verified)).
		Int("deduped", result.Deduped).
		Int("skipped", result.Skipped).
		Msg("Discovery run finished")
	return result
}

func (o *Orchestrator) emit(req *Request, stage models.ProgressStage, candidate, message string) {
	if req.Events == nil {
		return
	}
	event := models.ProgressEvent{
		Stage:     stage,
		Candidate: candidate,
		Message:   message,
		Timestamp: time.Now(),
	}
	select {
	case req.Events <- event:
	default:
		o.logger.Debug().Str("stage", string(stage)).Msg("Progress event dropped, consumer not ready")
	}
}
