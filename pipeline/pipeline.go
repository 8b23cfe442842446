// Package pipeline orchestrates the analysis stages for one agreement:
// structure building, clause matching, then risk scoring and redline
// generation in parallel.
//
// Every stage reads exactly one upstream artifact from the store and writes
// exactly one downstream artifact. A missing or corrupt input is fatal for
// the stage and nothing is written, so a failed stage can be retried after
// the upstream artifact is repaired. External signal failures inside a stage
// (embeddings, model) degrade scores instead of failing the stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veritract/veritract/artifact"
	"github.com/veritract/veritract/clauselib"
	"github.com/veritract/veritract/llm"
	"github.com/veritract/veritract/match"
	"github.com/veritract/veritract/observability"
	"github.com/veritract/veritract/playbook"
	"github.com/veritract/veritract/risk"
	"github.com/veritract/veritract/structure"
)

// Stage names, as recorded in stage events and job payloads.
const (
	StageStructure = "structure"
	StageMatch     = "match"
	StageRisk      = "risk"
	StageRedline   = "redline"
)

// Config wires a Runner.
type Config struct {
	Store    artifact.Store
	Builder  *structure.Builder
	Matcher  *match.Matcher
	Scorer   *risk.Scorer
	Engine   *playbook.Engine
	Library  clauselib.Source
	Playbook *playbook.Playbook

	// Completer writes the risk report narrative. Optional.
	Completer llm.Completer

	// Events records stage outcomes. Optional.
	Events *observability.EventLogger

	Logger *slog.Logger
}

// Runner executes pipeline stages against the artifact store.
type Runner struct {
	cfg Config
}

// NewRunner validates the wiring and returns a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case cfg.Builder == nil:
		return nil, errors.New("pipeline: structure builder is required")
	case cfg.Matcher == nil:
		return nil, errors.New("pipeline: matcher is required")
	case cfg.Scorer == nil:
		return nil, errors.New("pipeline: risk scorer is required")
	case cfg.Engine == nil:
		return nil, errors.New("pipeline: playbook engine is required")
	case cfg.Library == nil:
		return nil, errors.New("pipeline: clause library is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner{cfg: cfg}, nil
}

// Run executes the full chain for one agreement: structure, then matching,
// then risk scoring and redlining concurrently. The first failing stage
// aborts everything after it; the two final stages run independently and
// their errors are joined.
func (r *Runner) Run(ctx context.Context, agreementID string) error {
	if err := r.RunStructure(ctx, agreementID); err != nil {
		return err
	}
	if err := r.RunMatch(ctx, agreementID); err != nil {
		return err
	}

	var wg sync.WaitGroup
	var riskErr, redlineErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		riskErr = r.RunRisk(ctx, agreementID)
	}()

	if r.cfg.Playbook != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			redlineErr = r.RunRedline(ctx, agreementID)
		}()
	} else {
		r.cfg.Logger.Info("no playbook configured, skipping redline", "agreement_id", agreementID)
	}

	wg.Wait()
	return errors.Join(riskErr, redlineErr)
}

// RunStructure reads normalized.json and writes structure.json.
func (r *Runner) RunStructure(ctx context.Context, agreementID string) error {
	return r.instrument(ctx, agreementID, StageStructure, func() error {
		var normalized structure.Normalized
		if err := artifact.GetJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindNormalized), &normalized); err != nil {
			return fmt.Errorf("load normalized document: %w", err)
		}

		tree := r.cfg.Builder.Build(normalized)
		return artifact.PutJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindStructure), tree)
	})
}

// RunMatch reads structure.json, matches it against the clause library, and
// writes clause_matches.json.
func (r *Runner) RunMatch(ctx context.Context, agreementID string) error {
	return r.instrument(ctx, agreementID, StageMatch, func() error {
		var tree structure.Tree
		if err := artifact.GetJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindStructure), &tree); err != nil {
			return fmt.Errorf("load structure: %w", err)
		}

		clauses, err := r.cfg.Library.List(ctx)
		if err != nil {
			return fmt.Errorf("load clause library: %w", err)
		}

		// Embed clauses that lack a vector and write the vectors back when the
		// library can store them, so later runs skip the embedding call.
		computed, err := clauselib.EnsureEmbeddings(ctx, r.cfg.Matcher.Embedder(), clauses)
		if err != nil {
			r.cfg.Logger.Warn("library embeddings unavailable", "error", err, "agreement_id", agreementID)
		} else if saver, ok := r.cfg.Library.(clauselib.EmbeddingSaver); ok {
			for _, i := range computed {
				if err := saver.SaveEmbedding(ctx, clauses[i].ID, clauses[i].Embedding); err != nil {
					r.cfg.Logger.Warn("persist clause embedding", "clause_id", clauses[i].ID, "error", err)
				}
			}
		}

		matches, err := r.cfg.Matcher.Match(ctx, &tree, clauses)
		if err != nil {
			return err
		}
		return artifact.PutJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindMatches), matches)
	})
}

// RunRisk reads clause_matches.json and writes risk_report.json.
func (r *Runner) RunRisk(ctx context.Context, agreementID string) error {
	return r.instrument(ctx, agreementID, StageRisk, func() error {
		var matches []match.Match
		if err := artifact.GetJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindMatches), &matches); err != nil {
			return fmt.Errorf("load clause matches: %w", err)
		}

		report, err := r.cfg.Scorer.Report(ctx, r.cfg.Completer, agreementID, matches)
		if err != nil {
			return err
		}
		return artifact.PutJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindRiskReport), report)
	})
}

// RunRedline reads clause_matches.json, applies the configured playbook, and
// writes redline.json.
func (r *Runner) RunRedline(ctx context.Context, agreementID string) error {
	return r.instrument(ctx, agreementID, StageRedline, func() error {
		if r.cfg.Playbook == nil {
			return errors.New("no playbook configured")
		}

		var matches []match.Match
		if err := artifact.GetJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindMatches), &matches); err != nil {
			return fmt.Errorf("load clause matches: %w", err)
		}

		redline := r.cfg.Engine.Apply(agreementID, r.cfg.Playbook, matches)
		return artifact.PutJSON(ctx, r.cfg.Store, artifact.Key(agreementID, artifact.KindRedline), redline)
	})
}

// instrument runs one stage with logging and optional stage events.
func (r *Runner) instrument(ctx context.Context, agreementID, stage string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	log := r.cfg.Logger.With("agreement_id", agreementID, "stage", stage)
	log.Info("stage started")
	r.logEvent(ctx, agreementID, stage, "started", 0)

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if err != nil {
		log.Error("stage failed", "error", err, "duration", elapsed)
		r.logEvent(ctx, agreementID, stage, "failed", elapsed)
		return fmt.Errorf("%s %s: %w", stage, agreementID, err)
	}

	log.Info("stage completed", "duration", elapsed)
	r.logEvent(ctx, agreementID, stage, "completed", elapsed)
	return nil
}

func (r *Runner) logEvent(ctx context.Context, agreementID, stage, status string, d time.Duration) {
	if r.cfg.Events == nil {
		return
	}
	r.cfg.Events.LogStage(ctx, observability.StageEvent{
		AgreementID: agreementID,
		Stage:       stage,
		Status:      status,
		Duration:    d,
	})
}
