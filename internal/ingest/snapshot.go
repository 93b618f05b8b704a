package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// snapshot is the pre-fetched existence view used in batch mode. It is
// updated in memory as artifacts are created so later files in the same
// run observe a consistent view; it is never re-queried mid-run.
type snapshot struct {
	photos       map[string]struct{}
	originals    map[string]struct{}
	thumbnails   map[string]struct{}
	defaultViews map[string]struct{}
	embeddings   map[string]struct{}
	facesChecked map[string]struct{}
	places       map[string]uuid.UUID
}

// fileState is the per-file slice of the existence view.
type fileState struct {
	hasPhoto       bool
	hasOriginal    bool
	hasThumbnail   bool
	hasDefaultView bool
	hasEmbedding   bool
	facesChecked   bool
	hasPlace       bool
}

// LoadSnapshot pre-fetches existence sets for a batch run. Without it the
// pipeline runs in single-file mode with live checks.
func (p *Pipeline) LoadSnapshot(ctx context.Context) error {
	snap := &snapshot{
		embeddings:   map[string]struct{}{},
		facesChecked: map[string]struct{}{},
	}
	var err error

	if snap.photos, err = p.catalog.AllPhotoIDs(ctx); err != nil {
		return fmt.Errorf("snapshot photos: %w", err)
	}
	if snap.places, err = p.catalog.PhotoPlaceIDs(ctx); err != nil {
		return fmt.Errorf("snapshot places: %w", err)
	}
	if p.embedder != nil {
		if snap.embeddings, err = p.catalog.PhotoIDsWithEmbedding(ctx); err != nil {
			return fmt.Errorf("snapshot embeddings: %w", err)
		}
	}
	if p.detector != nil {
		if snap.facesChecked, err = p.catalog.PhotoIDsWithFacesChecked(ctx); err != nil {
			return fmt.Errorf("snapshot faces: %w", err)
		}
	}
	if snap.originals, err = p.blobs.ListOriginals(ctx); err != nil {
		return fmt.Errorf("snapshot originals: %w", err)
	}
	if snap.thumbnails, err = p.blobs.ListThumbnails(ctx); err != nil {
		return fmt.Errorf("snapshot thumbnails: %w", err)
	}
	if snap.defaultViews, err = p.blobs.ListDefaultViews(ctx); err != nil {
		return fmt.Errorf("snapshot default views: %w", err)
	}

	p.snap = snap
	return nil
}

func (p *Pipeline) fileState(ctx context.Context, id string) (fileState, error) {
	if p.snap != nil {
		return fileState{
			hasPhoto:       contains(p.snap.photos, id),
			hasOriginal:    contains(p.snap.originals, id),
			hasThumbnail:   contains(p.snap.thumbnails, id),
			hasDefaultView: contains(p.snap.defaultViews, id),
			hasEmbedding:   contains(p.snap.embeddings, id),
			facesChecked:   contains(p.snap.facesChecked, id),
			hasPlace:       hasKey(p.snap.places, id),
		}, nil
	}

	// Single-file mode: live checks against durable state.
	var st fileState

	photo, err := p.catalog.GetPhoto(ctx, id)
	if err != nil {
		return st, err
	}
	if photo != nil {
		st.hasPhoto = true
		st.facesChecked = photo.FacesCheckedAt != nil
		st.hasPlace = photo.PlaceID != nil
	}

	if st.hasOriginal, err = p.blobs.ExistsOriginal(ctx, id); err != nil {
		return st, err
	}
	if st.hasThumbnail, err = p.blobs.ExistsThumbnail(ctx, id); err != nil {
		return st, err
	}
	if st.hasDefaultView, err = p.blobs.ExistsDefaultView(ctx, id); err != nil {
		return st, err
	}
	if p.embedder != nil {
		if st.hasEmbedding, err = p.catalog.HasEmbedding(ctx, id); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (p *Pipeline) markPhoto(id string) {
	if p.snap != nil {
		p.snap.photos[id] = struct{}{}
	}
}

func (p *Pipeline) markOriginal(id string) {
	if p.snap != nil {
		p.snap.originals[id] = struct{}{}
	}
}

func (p *Pipeline) markThumbnail(id string) {
	if p.snap != nil {
		p.snap.thumbnails[id] = struct{}{}
	}
}

func (p *Pipeline) markDefaultView(id string) {
	if p.snap != nil {
		p.snap.defaultViews[id] = struct{}{}
	}
}

func (p *Pipeline) markEmbedding(id string) {
	if p.snap != nil {
		p.snap.embeddings[id] = struct{}{}
	}
}

func (p *Pipeline) markFacesChecked(id string) {
	if p.snap != nil {
		p.snap.facesChecked[id] = struct{}{}
	}
}

func (p *Pipeline) markPlace(id string, placeID uuid.UUID) {
	if p.snap != nil {
		p.snap.places[id] = placeID
	}
}

func contains(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}

func hasKey(m map[string]uuid.UUID, id string) bool {
	_, ok := m[id]
	return ok
}
