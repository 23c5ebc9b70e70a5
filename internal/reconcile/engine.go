package reconcile

import (
	"context"
	"log/slog"
	"time"

	"storysync/internal/logging"
	"storysync/internal/storyboard"
)

// Backend is the subset of the server API reconciliation needs.
type Backend interface {
	GetDocument(ctx context.Context, documentID string) (*storyboard.Document, error)
	SaveDocument(ctx context.Context, doc *storyboard.Document) (string, error)
}

// Engine runs post-terminal verification and repair.
type Engine struct {
	backend    Backend
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewEngine(backend Backend, maxRetries int, backoff time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		backend:    backend,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger.With(logging.String(logging.FieldComponent, "reconcile")),
	}
}

// Verify fetches the authoritative document for local's id and merges the two
// views. It never fails the caller: any unrecoverable condition is logged and
// the best document available is returned, falling back to local itself.
func (e *Engine) Verify(ctx context.Context, local *storyboard.Document) *storyboard.Document {
	if local == nil {
		return nil
	}

	server := e.fetchSettled(ctx, local)
	if server == nil {
		e.logger.Warn("verification could not reach a settled server document; keeping local state",
			logging.DocumentID(local.ID))
		return local
	}

	merged, repairs := mergeClips(local.Clips, server.Clips)
	result := server.Clone()
	result.Clips = merged

	if repairs == 0 {
		return result
	}

	e.logger.Info("pushing clip repairs to server",
		logging.DocumentID(local.ID),
		logging.Int("repairs", repairs))
	if _, err := e.backend.SaveDocument(ctx, result); err != nil {
		e.logger.Warn("repair save failed; keeping merged state locally",
			logging.DocumentID(local.ID),
			logging.Error(err))
	}
	return result
}

// fetchSettled retrieves the server document, retrying when the fetch fails
// or when the server still reports zero clips for a job that produced some.
// The write behind the terminal signal can lag the signal itself.
func (e *Engine) fetchSettled(ctx context.Context, local *storyboard.Document) *storyboard.Document {
	for attempt := 0; ; attempt++ {
		doc, err := e.backend.GetDocument(ctx, local.ID)
		switch {
		case err != nil:
			e.logger.Warn("verification fetch failed",
				logging.DocumentID(local.ID),
				logging.Int("attempt", attempt+1),
				logging.Error(err))
		case doc == nil:
			e.logger.Warn("verification fetch returned no document",
				logging.DocumentID(local.ID),
				logging.Int("attempt", attempt+1))
		case len(doc.Clips) == 0 && len(local.Clips) > 0:
			e.logger.Info("server document has no clips yet; assuming write lag",
				logging.DocumentID(local.ID),
				logging.Int("attempt", attempt+1))
		default:
			return doc
		}

		if attempt >= e.maxRetries {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.backoff):
		}
	}
}

// mergeClips walks every scene index up to the larger of the two lists.
// Server clips win for existence; a clip only local knows about was lost in
// transit and is pushed back, and a local artifact reference overrides a
// missing or different server one. Server-only clips are expected when local
// state is stale, e.g. a second browser tab, and are kept untouched.
func mergeClips(local, server []storyboard.Clip) ([]storyboard.Clip, int) {
	maxOrder := storyboard.MaxOrder(local)
	if serverMax := storyboard.MaxOrder(server); serverMax > maxOrder {
		maxOrder = serverMax
	}

	var merged []storyboard.Clip
	repairs := 0
	for order := 0; order <= maxOrder; order++ {
		localClip, haveLocal := storyboard.ClipAtOrder(local, order)
		serverClip, haveServer := storyboard.ClipAtOrder(server, order)
		switch {
		case haveLocal && !haveServer:
			merged = append(merged, localClip)
			repairs++
		case haveLocal && haveServer:
			if localClip.ArtifactID != "" && serverClip.ArtifactID != localClip.ArtifactID {
				serverClip.ArtifactID = localClip.ArtifactID
				repairs++
			}
			merged = append(merged, serverClip)
		case haveServer:
			merged = append(merged, serverClip)
		}
	}
	return merged, repairs
}
