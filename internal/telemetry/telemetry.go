// Package telemetry is an optional Firestore-backed sink for update
// run history: one document per stack or global update run, holding
// the per-patch outcomes, so a patch author can see update health
// across machines without tailing logs.
package telemetry

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/SakuraUO/thcrap/internal/updater"
)

// Config selects the Firestore project and credentials to record to.
type Config struct {
	GCPProjectID      string
	ServiceAccountKey string // path to a service account JSON; "" uses ADC
}

// Store records update run outcomes to Firestore.
type Store struct {
	client *firestore.Client
}

// NewStore dials Firestore using cfg.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	var (
		client *firestore.Client
		err    error
	)
	if cfg.ServiceAccountKey != "" {
		client, err = firestore.NewClient(ctx, cfg.GCPProjectID, option.WithCredentialsFile(cfg.ServiceAccountKey))
	} else {
		client, err = firestore.NewClient(ctx, cfg.GCPProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: firestore.NewClient: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying Firestore client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// PatchOutcome is one patch's result within a run.
type PatchOutcome struct {
	PatchID string `firestore:"patchId"`
	Archive string `firestore:"archive"`
	Status  string `firestore:"status"`
}

// Run is one stack/global update invocation.
type Run struct {
	RunID      string         `firestore:"-"`
	Kind       string         `firestore:"kind"` // "stack" or "global"
	Game       string         `firestore:"game,omitempty"`
	StartedAt  int64          `firestore:"startedAt"`
	FinishedAt int64          `firestore:"finishedAt"`
	Patches    []PatchOutcome `firestore:"patches"`
}

// NewRun builds a Run record from a stack/global update's patch list
// and the Status slice UpdatePatch (via StackUpdate/GlobalUpdate)
// returned for it, tagging it with runID for correlation.
func NewRun(runID, kind, game string, startedAt, finishedAt int64, ids, archives []string, statuses []updater.Status) Run {
	n := len(statuses)
	outcomes := make([]PatchOutcome, 0, n)
	for i := 0; i < n; i++ {
		id, archive := "", ""
		if i < len(ids) {
			id = ids[i]
		}
		if i < len(archives) {
			archive = archives[i]
		}
		outcomes = append(outcomes, PatchOutcome{
			PatchID: id,
			Archive: archive,
			Status:  statuses[i].String(),
		})
	}
	return Run{
		RunID:      runID,
		Kind:       kind,
		Game:       game,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Patches:    outcomes,
	}
}

// RecordRun writes one run document, keyed by its RunID.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if run.RunID == "" {
		return fmt.Errorf("telemetry: run id is required")
	}
	_, err := s.client.Collection("update_runs").Doc(run.RunID).Set(ctx, run)
	if err != nil {
		return fmt.Errorf("telemetry: record run %s: %w", run.RunID, err)
	}
	return nil
}

// LatestForGame returns the most recent run recorded for a game, or
// nil if none exist yet.
func (s *Store) LatestForGame(ctx context.Context, game string) (*Run, error) {
	iter := s.client.Collection("update_runs").
		Where("game", "==", game).
		OrderBy("finishedAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: query latest run for %s: %w", game, err)
	}
	var run Run
	if err := doc.DataTo(&run); err != nil {
		return nil, fmt.Errorf("telemetry: decode run %s: %w", doc.Ref.ID, err)
	}
	run.RunID = doc.Ref.ID
	return &run, nil
}
