package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/veritract/veritract/artifact"
	"github.com/veritract/veritract/clauselib"
	"github.com/veritract/veritract/dbopen"
	"github.com/veritract/veritract/match"
	"github.com/veritract/veritract/playbook"
	"github.com/veritract/veritract/risk"
	"github.com/veritract/veritract/structure"
	_ "modernc.org/sqlite"
)

const terminationText = "Either party may terminate this agreement upon thirty days written notice with automatic renewal unless terminated."

type listSource []clauselib.Clause

func (l listSource) List(context.Context) ([]clauselib.Clause, error) { return l, nil }

type failingSource struct{}

func (failingSource) List(context.Context) ([]clauselib.Clause, error) {
	return nil, errors.New("library unavailable")
}

func testLibrary() listSource {
	return listSource{{
		ID:         "clause_term",
		Title:      "Termination for Convenience",
		Text:       terminationText,
		ClauseType: "term",
		Category:   "legal",
		RiskLevel:  "medium",
	}}
}

func testRunner(t *testing.T, store artifact.Store, lib clauselib.Source, pb *playbook.Playbook) *Runner {
	t.Helper()
	scorer, err := risk.NewScorer(risk.Config{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRunner(Config{
		Store:    store,
		Builder:  structure.NewBuilder(structure.Config{}),
		Matcher:  match.New(match.Config{}),
		Scorer:   scorer,
		// No model signal in tests, so fused confidences top out near 0.62.
		Engine: playbook.NewEngine(playbook.Config{MinConfidence: 0.6}),
		Library:  lib,
		Playbook: pb,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func testPlaybook() *playbook.Playbook {
	return &playbook.Playbook{
		ID: "pb_test",
		Positions: map[string]playbook.Position{
			"term": {
				ClauseType:        "term",
				PreferredText:     "Either party may terminate this agreement upon sixty days written notice.",
				UnacceptableTerms: []string{"automatic renewal"},
				RiskWeight:        0.8,
			},
		},
	}
}

func putNormalized(t *testing.T, store artifact.Store, agreementID string) {
	t.Helper()
	n := structure.Normalized{
		DocumentType: "msa",
		Sections: []structure.Block{
			{Heading: "1. Term", Level: 1, Content: []string{terminationText}},
		},
	}
	if err := artifact.PutJSON(context.Background(), store, artifact.Key(agreementID, artifact.KindNormalized), n); err != nil {
		t.Fatal(err)
	}
}

func TestRunFullChain(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemory()
	putNormalized(t, store, "agr_1")

	r := testRunner(t, store, testLibrary(), testPlaybook())
	if err := r.Run(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}

	var tree structure.Tree
	if err := artifact.GetJSON(ctx, store, artifact.Key("agr_1", artifact.KindStructure), &tree); err != nil {
		t.Fatal(err)
	}
	if len(tree.Sections) != 1 {
		t.Fatalf("tree = %+v", tree)
	}

	var matches []match.Match
	if err := artifact.GetJSON(ctx, store, artifact.Key("agr_1", artifact.KindMatches), &matches); err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].LibraryClauseID != "clause_term" {
		t.Fatalf("matches = %+v", matches)
	}

	var report risk.Report
	if err := artifact.GetJSON(ctx, store, artifact.Key("agr_1", artifact.KindRiskReport), &report); err != nil {
		t.Fatal(err)
	}
	if report.AgreementID != "agr_1" || report.RiskLevel == "" {
		t.Fatalf("report = %+v", report)
	}
	// The text trips the auto-renewal pattern.
	if len(report.Exceptions) == 0 || report.Exceptions[0].Name != "Auto-Renewal Trap" {
		t.Fatalf("exceptions = %+v", report.Exceptions)
	}

	var redline playbook.Redline
	if err := artifact.GetJSON(ctx, store, artifact.Key("agr_1", artifact.KindRedline), &redline); err != nil {
		t.Fatal(err)
	}
	if len(redline.ChangeSets) != 1 || redline.ChangeSets[0].Operation != "replace" {
		t.Fatalf("redline = %+v", redline)
	}
}

func TestRunWithoutPlaybookSkipsRedline(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemory()
	putNormalized(t, store, "agr_1")

	r := testRunner(t, store, testLibrary(), nil)
	if err := r.Run(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Get(ctx, artifact.Key("agr_1", artifact.KindRiskReport)); err != nil {
		t.Fatalf("risk report should exist: %v", err)
	}
	if _, err := store.Get(ctx, artifact.Key("agr_1", artifact.KindRedline)); !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("redline should be absent, got err = %v", err)
	}
}

func TestRunStructureMissingInput(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemory()
	r := testRunner(t, store, testLibrary(), nil)

	err := r.RunStructure(ctx, "agr_1")
	if !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, getErr := store.Get(ctx, artifact.Key("agr_1", artifact.KindStructure)); !errors.Is(getErr, artifact.ErrNotFound) {
		t.Fatal("failed stage must not write its output artifact")
	}
}

func TestRunMatchCorruptStructure(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemory()
	if err := store.Put(ctx, artifact.Key("agr_1", artifact.KindStructure), []byte("not json")); err != nil {
		t.Fatal(err)
	}

	r := testRunner(t, store, testLibrary(), nil)
	err := r.RunMatch(ctx, "agr_1")
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Fatalf("err = %v, want decode failure", err)
	}
}

func TestRunMatchLibraryFailure(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemory()
	putNormalized(t, store, "agr_1")

	r := testRunner(t, store, failingSource{}, nil)
	if err := r.RunStructure(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}
	if err := r.RunMatch(ctx, "agr_1"); err == nil || !strings.Contains(err.Error(), "library unavailable") {
		t.Fatalf("err = %v", err)
	}
}

// countingEmbedder counts library batch calls; per-section Embed calls are
// served without touching the counter.
type countingEmbedder struct {
	batches int
}

func (e *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batches++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int { return 3 }
func (e *countingEmbedder) Model() string  { return "counting" }

func TestRunMatchPersistsLibraryEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemory()
	putNormalized(t, store, "agr_1")

	db := dbopen.OpenMemory(t, dbopen.WithSchema(clauselib.Schema))
	lib := clauselib.NewSQLiteSource(db)
	for _, c := range testLibrary() {
		if err := lib.Upsert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	emb := &countingEmbedder{}
	scorer, err := risk.NewScorer(risk.Config{})
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewRunner(Config{
		Store:   store,
		Builder: structure.NewBuilder(structure.Config{}),
		Matcher: match.New(match.Config{Embedder: emb}),
		Scorer:  scorer,
		Engine:  playbook.NewEngine(playbook.Config{}),
		Library: lib,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.RunStructure(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}
	if err := r.RunMatch(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}
	if emb.batches != 1 {
		t.Fatalf("batches = %d, want one embedding pass over the library", emb.batches)
	}

	stored, err := lib.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || len(stored[0].Embedding) != 3 {
		t.Fatalf("stored = %+v, want the computed vector persisted", stored)
	}

	// The next run reads the persisted vectors instead of re-embedding.
	if err := r.RunMatch(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}
	if emb.batches != 1 {
		t.Fatalf("batches = %d after second run, want still 1", emb.batches)
	}
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewMemory()
	putNormalized(t, store, "agr_1")

	r := testRunner(t, store, testLibrary(), testPlaybook())
	if err := r.Run(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}
	first, err := store.Get(ctx, artifact.Key("agr_1", artifact.KindMatches))
	if err != nil {
		t.Fatal(err)
	}

	if err := r.Run(ctx, "agr_1"); err != nil {
		t.Fatal(err)
	}
	second, err := store.Get(ctx, artifact.Key("agr_1", artifact.KindMatches))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Fatal("re-running the pipeline must fully replace artifacts with identical content")
	}
}

func TestNewRunnerValidation(t *testing.T) {
	if _, err := NewRunner(Config{}); err == nil {
		t.Fatal("expected error for missing store")
	}
}
