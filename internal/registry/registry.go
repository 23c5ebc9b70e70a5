package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storysync/internal/artifactcache"
	"storysync/internal/logging"
)

// Status classifies a registry entry.
type Status string

const (
	StatusAvailable Status = "available"
	StatusLoading   Status = "loading"
	StatusFailed    Status = "failed"
	StatusNotFound  Status = "not_found"
)

// Metadata carries optional descriptive fields for an artifact.
type Metadata struct {
	Name       string
	Timestamp  time.Time
	Transcript string
}

// Entry is the cached view of one artifact.
type Entry struct {
	ArtifactID string
	Content    string
	Status     Status
	Metadata   Metadata
	UpdatedAt  time.Time
}

// ListItem is one row of the cached artifact listing.
type ListItem struct {
	ID        string
	Name      string
	Timestamp time.Time
}

// Registry is the process-wide artifact cache.
type Registry struct {
	minContent int
	disk       *artifactcache.Store
	logger     *slog.Logger

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]*inflight

	list     []ListItem
	listAt   time.Time
	hasList  bool
}

type inflight struct {
	done    chan struct{}
	content string
	err     error
}

// New constructs a registry. disk may be nil to run memory-only; minContent
// is the smallest payload treated as real content.
func New(minContent int, disk *artifactcache.Store, logger *slog.Logger) *Registry {
	if minContent <= 0 {
		minContent = 1
	}
	return &Registry{
		minContent: minContent,
		disk:       disk,
		logger:     logging.NewComponentLogger(logger, "registry"),
		entries:    make(map[string]Entry),
		inflight:   make(map[string]*inflight),
	}
}

// Get returns the entry for id, consulting the persistent cache on a memory
// miss. Absent artifacts report StatusNotFound.
func (r *Registry) Get(ctx context.Context, id string) Entry {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{Status: StatusNotFound}
	}

	r.mu.Lock()
	if entry, ok := r.entries[id]; ok {
		r.mu.Unlock()
		return entry
	}
	r.mu.Unlock()

	if r.disk != nil {
		row, err := r.disk.Get(ctx, id)
		if err != nil {
			r.logger.Warn("artifact cache read failed",
				logging.ArtifactID(id), logging.Error(err))
		} else if row != nil && len(row.Content) >= r.minContent {
			entry := Entry{
				ArtifactID: id,
				Content:    row.Content,
				Status:     StatusAvailable,
				Metadata:   Metadata{Name: row.Name, Timestamp: row.StoredAt, Transcript: row.Transcript},
				UpdatedAt:  row.StoredAt,
			}
			r.mu.Lock()
			r.entries[id] = entry
			r.mu.Unlock()
			return entry
		}
	}

	return Entry{ArtifactID: id, Status: StatusNotFound}
}

// Store records content for id. Content below the minimum size is kept for
// inspection but classified failed, never available.
func (r *Registry) Store(ctx context.Context, id, content string, meta *Metadata) Entry {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{Status: StatusNotFound}
	}

	entry := Entry{
		ArtifactID: id,
		Content:    content,
		Status:     StatusAvailable,
		UpdatedAt:  time.Now().UTC(),
	}
	if meta != nil {
		entry.Metadata = *meta
	}
	if len(content) < r.minContent {
		entry.Status = StatusFailed
		r.logger.Warn("artifact content below minimum size, treating as stub",
			logging.ArtifactID(id), logging.Int("size", len(content)))
	}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()

	if r.disk != nil && entry.Status == StatusAvailable {
		row := artifactcache.Row{
			ArtifactID: id,
			Content:    content,
			Name:       entry.Metadata.Name,
			Transcript: entry.Metadata.Transcript,
		}
		if err := r.disk.Put(ctx, row); err != nil {
			r.logger.Warn("artifact cache write failed",
				logging.ArtifactID(id), logging.Error(err))
		}
	}
	return entry
}

// MarkLoading flags an artifact as having a fetch outstanding.
func (r *Registry) MarkLoading(id string) {
	r.mark(id, StatusLoading)
}

// MarkFailed flags an artifact fetch as failed; callers may retry.
func (r *Registry) MarkFailed(id string) {
	r.mark(id, StatusFailed)
}

func (r *Registry) mark(id string, status Status) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entries[id]
	entry.ArtifactID = id
	entry.Status = status
	entry.UpdatedAt = time.Now().UTC()
	r.entries[id] = entry
}

// Clear evicts the given artifacts, or everything (including the list cache)
// when no ids are passed.
func (r *Registry) Clear(ctx context.Context, ids ...string) {
	r.mu.Lock()
	if len(ids) == 0 {
		r.entries = make(map[string]Entry)
		r.list = nil
		r.hasList = false
	} else {
		for _, id := range ids {
			delete(r.entries, strings.TrimSpace(id))
		}
	}
	r.mu.Unlock()

	if r.disk == nil {
		return
	}
	if len(ids) == 0 {
		if err := r.disk.Clear(ctx); err != nil {
			r.logger.Warn("artifact cache clear failed", logging.Error(err))
		}
		return
	}
	for _, id := range ids {
		if err := r.disk.Delete(ctx, id); err != nil {
			r.logger.Warn("artifact cache delete failed",
				logging.ArtifactID(id), logging.Error(err))
		}
	}
}

// TrackRequest coalesces duplicate fetches: the first caller for key runs
// fetch, concurrent callers block and receive the same result. The in-flight
// slot is removed when fetch settles.
func (r *Registry) TrackRequest(key string, fetch func() (string, error)) (string, error) {
	r.mu.Lock()
	if fl, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		<-fl.done
		return fl.content, fl.err
	}
	fl := &inflight{done: make(chan struct{})}
	r.inflight[key] = fl
	r.mu.Unlock()

	fl.content, fl.err = fetch()

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
	close(fl.done)

	return fl.content, fl.err
}

// StoreList caches an artifact enumeration result.
func (r *Registry) StoreList(items []ListItem) {
	copied := make([]ListItem, len(items))
	copy(copied, items)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = copied
	r.listAt = time.Now()
	r.hasList = true
}

// GetList returns the cached listing when it is younger than maxAge. The
// cache never expires proactively, only lazily at read time.
func (r *Registry) GetList(maxAge time.Duration) ([]ListItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasList || time.Since(r.listAt) > maxAge {
		return nil, false
	}
	copied := make([]ListItem, len(r.list))
	copy(copied, r.list)
	return copied, true
}
