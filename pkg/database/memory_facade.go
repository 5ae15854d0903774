// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/wildsight/antler/pkg/database/model"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/vectormath"
)

// MemoryFacade is an in-memory FacadeInterface for worker and handler
// tests, mirroring the row semantics of the SQL facades: compare-and-swap
// conflicts, nil-on-absent reads, inclusive burst-window bounds and
// cosine-ordered candidate search. Transaction serialises callers and
// rolls the whole store back when fn fails, which doubles as the row lock
// the SQL implementation takes. Queue rows live in the queue package's
// own store, so GetQueueTask returns nil here.
type MemoryFacade struct {
	mu   sync.Mutex
	txMu sync.Mutex

	locations  map[string]*model.Location
	images     map[string]*model.Image
	detections map[string]*model.Detection
	profiles   map[string]*model.Deer
}

// NewMemoryFacade builds an empty in-memory store.
func NewMemoryFacade() *MemoryFacade {
	return &MemoryFacade{
		locations:  make(map[string]*model.Location),
		images:     make(map[string]*model.Image),
		detections: make(map[string]*model.Detection),
		profiles:   make(map[string]*model.Deer),
	}
}

func (f *MemoryFacade) GetLocation() LocationFacadeInterface   { return &memoryLocations{f} }
func (f *MemoryFacade) GetImage() ImageFacadeInterface         { return &memoryImages{f} }
func (f *MemoryFacade) GetDetection() DetectionFacadeInterface { return &memoryDetections{f} }
func (f *MemoryFacade) GetDeer() DeerFacadeInterface           { return &memoryDeer{f} }
func (f *MemoryFacade) GetQueueTask() QueueTaskFacadeInterface { return nil }

// WithDB is a no-op: there is no handle to pin.
func (f *MemoryFacade) WithDB(db *gorm.DB) FacadeInterface { return f }

// Transaction runs fn against the shared store. Transactions serialise on
// one mutex and a failing fn restores the pre-transaction snapshot.
func (f *MemoryFacade) Transaction(ctx context.Context, fn func(tx FacadeInterface) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()

	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	locations  map[string]*model.Location
	images     map[string]*model.Image
	detections map[string]*model.Detection
	profiles   map[string]*model.Deer
}

func (f *MemoryFacade) snapshot() memorySnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := memorySnapshot{
		locations:  make(map[string]*model.Location, len(f.locations)),
		images:     make(map[string]*model.Image, len(f.images)),
		detections: make(map[string]*model.Detection, len(f.detections)),
		profiles:   make(map[string]*model.Deer, len(f.profiles)),
	}
	for id, l := range f.locations {
		snap.locations[id] = copyLocation(l)
	}
	for id, img := range f.images {
		snap.images[id] = copyImage(img)
	}
	for id, d := range f.detections {
		snap.detections[id] = copyDetection(d)
	}
	for id, p := range f.profiles {
		snap.profiles[id] = copyDeer(p)
	}
	return snap
}

func (f *MemoryFacade) restore(snap memorySnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = snap.locations
	f.images = snap.images
	f.detections = snap.detections
	f.profiles = snap.profiles
}

func copyLocation(l *model.Location) *model.Location {
	c := *l
	return &c
}

func copyImage(img *model.Image) *model.Image {
	c := *img
	return &c
}

func copyDetection(d *model.Detection) *model.Detection {
	c := *d
	if d.DeerID != nil {
		v := *d.DeerID
		c.DeerID = &v
	}
	if d.BurstGroupID != nil {
		v := *d.BurstGroupID
		c.BurstGroupID = &v
	}
	return &c
}

func copyDeer(d *model.Deer) *model.Deer {
	c := *d
	if d.EmbeddingAlt != nil {
		v := *d.EmbeddingAlt
		c.EmbeddingAlt = &v
	}
	return &c
}

// --- locations ---

type memoryLocations struct{ f *MemoryFacade }

func (v *memoryLocations) WithDB(db *gorm.DB) LocationFacadeInterface { return v }

func (v *memoryLocations) Create(ctx context.Context, loc *model.Location) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	if _, ok := v.f.locations[loc.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now()
	}
	v.f.locations[loc.ID] = copyLocation(loc)
	return nil
}

func (v *memoryLocations) Get(ctx context.Context, id string) (*model.Location, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	loc, ok := v.f.locations[id]
	if !ok {
		return nil, nil
	}
	return copyLocation(loc), nil
}

func (v *memoryLocations) GetByName(ctx context.Context, name string) (*model.Location, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	for _, loc := range v.f.locations {
		if loc.Name == name {
			return copyLocation(loc), nil
		}
	}
	return nil, nil
}

func (v *memoryLocations) List(ctx context.Context) ([]*model.Location, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	out := make([]*model.Location, 0, len(v.f.locations))
	for _, loc := range v.f.locations {
		out = append(out, copyLocation(loc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *memoryLocations) Delete(ctx context.Context, id string) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	for _, img := range v.f.images {
		if img.LocationID == id {
			return ErrLocationInUse
		}
	}
	delete(v.f.locations, id)
	return nil
}

// --- images ---

type memoryImages struct{ f *MemoryFacade }

func (v *memoryImages) WithDB(db *gorm.DB) ImageFacadeInterface { return v }

func (v *memoryImages) Create(ctx context.Context, img *model.Image) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	if _, ok := v.f.images[img.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	for _, existing := range v.f.images {
		if existing.LocationID == img.LocationID && existing.Filename == img.Filename {
			return gorm.ErrDuplicatedKey
		}
	}
	if img.ProcessingStatus == "" {
		img.ProcessingStatus = model.ImageStatusPending
	}
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now()
	}
	img.UpdatedAt = img.CreatedAt
	v.f.images[img.ID] = copyImage(img)
	return nil
}

func (v *memoryImages) Get(ctx context.Context, id string) (*model.Image, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	img, ok := v.f.images[id]
	if !ok {
		return nil, nil
	}
	return copyImage(img), nil
}

func (v *memoryImages) GetByLocationAndFilename(ctx context.Context, locationID, filename string) (*model.Image, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	for _, img := range v.f.images {
		if img.LocationID == locationID && img.Filename == filename {
			return copyImage(img), nil
		}
	}
	return nil, nil
}

func (v *memoryImages) UpsertImageStatus(ctx context.Context, id, from, to string) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	img, ok := v.f.images[id]
	if !ok || img.ProcessingStatus != from {
		return antlererrors.ErrStatusConflict
	}
	img.ProcessingStatus = to
	img.UpdatedAt = time.Now()
	return nil
}

func (v *memoryImages) MarkFailed(ctx context.Context, id, errorMessage string) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	img, ok := v.f.images[id]
	if !ok {
		return antlererrors.ErrStatusConflict
	}
	if img.ProcessingStatus != model.ImageStatusPending && img.ProcessingStatus != model.ImageStatusProcessing {
		return antlererrors.ErrStatusConflict
	}
	img.ProcessingStatus = model.ImageStatusFailed
	img.ErrorMessage = errorMessage
	img.UpdatedAt = time.Now()
	return nil
}

func (v *memoryImages) ResetForReprocess(ctx context.Context, id string) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	img, ok := v.f.images[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	img.ProcessingStatus = model.ImageStatusPending
	img.ErrorMessage = ""
	img.UpdatedAt = time.Now()
	return nil
}

func (v *memoryImages) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*model.Image, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var out []*model.Image
	for _, img := range v.f.images {
		if img.ProcessingStatus == status {
			out = append(out, copyImage(img))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
		if len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

func (v *memoryImages) CountByStatus(ctx context.Context) (map[string]int64, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	counts := make(map[string]int64)
	for _, img := range v.f.images {
		counts[img.ProcessingStatus]++
	}
	return counts, nil
}

// --- detections ---

type memoryDetections struct{ f *MemoryFacade }

func (v *memoryDetections) WithDB(db *gorm.DB) DetectionFacadeInterface { return v }

func (v *memoryDetections) BulkInsert(ctx context.Context, rows []*model.Detection) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	for _, row := range rows {
		if _, ok := v.f.detections[row.ID]; ok {
			return gorm.ErrDuplicatedKey
		}
	}
	now := time.Now()
	for _, row := range rows {
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		v.f.detections[row.ID] = copyDetection(row)
	}
	return nil
}

func (v *memoryDetections) Get(ctx context.Context, id string) (*model.Detection, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	d, ok := v.f.detections[id]
	if !ok {
		return nil, nil
	}
	return copyDetection(d), nil
}

func (v *memoryDetections) ListByImage(ctx context.Context, imageID string) ([]*model.Detection, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var out []*model.Detection
	for _, d := range v.f.detections {
		if d.ImageID == imageID {
			out = append(out, copyDetection(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *memoryDetections) BurstWindow(ctx context.Context, locationID string, center time.Time, delta time.Duration) ([]*model.Detection, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()

	lo, hi := center.Add(-delta), center.Add(delta)
	type member struct {
		det *model.Detection
		ts  time.Time
	}
	var members []member
	for _, d := range v.f.detections {
		if d.IsDuplicate || !model.IsDeerClass(d.Class) {
			continue
		}
		img, ok := v.f.images[d.ImageID]
		if !ok || img.LocationID != locationID {
			continue
		}
		if img.Timestamp.Before(lo) || img.Timestamp.After(hi) {
			continue
		}
		members = append(members, member{det: copyDetection(d), ts: img.Timestamp})
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].ts.Equal(members[j].ts) {
			return members[i].ts.Before(members[j].ts)
		}
		return members[i].det.ID < members[j].det.ID
	})
	out := make([]*model.Detection, len(members))
	for i, m := range members {
		out[i] = m.det
	}
	return out, nil
}

func (v *memoryDetections) AssignBurstGroup(ctx context.Context, ids []string, groupID string) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	for _, id := range ids {
		d, ok := v.f.detections[id]
		if !ok || d.BurstGroupID != nil {
			continue
		}
		g := groupID
		d.BurstGroupID = &g
	}
	return nil
}

func (v *memoryDetections) AssignDeer(ctx context.Context, detectionID, deerID string) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	d, ok := v.f.detections[detectionID]
	if !ok || d.DeerID != nil {
		return ErrAlreadyAssigned
	}
	id := deerID
	d.DeerID = &id
	return nil
}

func (v *memoryDetections) ListUnassigned(ctx context.Context, limit, offset int) ([]*model.Detection, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var out []*model.Detection
	for _, d := range v.f.detections {
		if !d.EligibleForReid() {
			continue
		}
		img, ok := v.f.images[d.ImageID]
		if !ok || img.ProcessingStatus != model.ImageStatusCompleted {
			continue
		}
		out = append(out, copyDetection(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
		if len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

func (v *memoryDetections) ListByDeer(ctx context.Context, deerID string, limit int) ([]*model.Detection, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var out []*model.Detection
	for _, d := range v.f.detections {
		if d.DeerID != nil && *d.DeerID == deerID && !d.IsDuplicate {
			out = append(out, copyDetection(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *memoryDetections) CountByDeer(ctx context.Context, deerID string) (int64, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var n int64
	for _, d := range v.f.detections {
		if d.DeerID != nil && *d.DeerID == deerID && !d.IsDuplicate {
			n++
		}
	}
	return n, nil
}

func (v *memoryDetections) ReassignDeer(ctx context.Context, fromDeerID, toDeerID string) (int64, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	var n int64
	for _, d := range v.f.detections {
		if d.DeerID != nil && *d.DeerID == fromDeerID {
			id := toDeerID
			d.DeerID = &id
			n++
		}
	}
	return n, nil
}

// --- deer profiles ---

type memoryDeer struct{ f *MemoryFacade }

func (v *memoryDeer) WithDB(db *gorm.DB) DeerFacadeInterface { return v }

func (v *memoryDeer) InsertProfile(ctx context.Context, deer *model.Deer) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	if _, ok := v.f.profiles[deer.ID]; ok {
		return gorm.ErrDuplicatedKey
	}
	now := time.Now()
	if deer.CreatedAt.IsZero() {
		deer.CreatedAt = now
	}
	if deer.UpdatedAt.IsZero() {
		deer.UpdatedAt = now
	}
	v.f.profiles[deer.ID] = copyDeer(deer)
	return nil
}

func (v *memoryDeer) Get(ctx context.Context, id string) (*model.Deer, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	d, ok := v.f.profiles[id]
	if !ok {
		return nil, nil
	}
	return copyDeer(d), nil
}

func (v *memoryDeer) NearestProfiles(ctx context.Context, vec pgvector.Vector, sexFilter string, k int) ([]*model.DeerCandidate, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()

	query := vec.Slice()
	var out []*model.DeerCandidate
	for _, d := range v.f.profiles {
		if sexFilter != "" && sexFilter != model.SexUnknown && d.Sex != sexFilter {
			continue
		}
		out = append(out, &model.DeerCandidate{
			Deer:       *copyDeer(d),
			Similarity: vectormath.Cosine(query, d.Embedding.Slice()),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (v *memoryDeer) LockProfileForUpdate(ctx context.Context, id string) (*model.Deer, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	d, ok := v.f.profiles[id]
	if !ok {
		return nil, nil
	}
	return copyDeer(d), nil
}

func (v *memoryDeer) UpdateProfile(ctx context.Context, id string, patch map[string]interface{}) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	d, ok := v.f.profiles[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for col, val := range patch {
		switch col {
		case "embedding":
			d.Embedding = val.(pgvector.Vector)
		case "embedding_alt":
			if val == nil {
				d.EmbeddingAlt = nil
			} else {
				vec := val.(pgvector.Vector)
				d.EmbeddingAlt = &vec
			}
		case "embedding_version":
			d.EmbeddingVersion = val.(string)
		case "sex":
			d.Sex = val.(string)
		}
	}
	d.UpdatedAt = time.Now()
	return nil
}

func (v *memoryDeer) RecordSighting(ctx context.Context, id string, ts time.Time) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	d, ok := v.f.profiles[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	d.SightingCount++
	if ts.Before(d.FirstSeen) {
		d.FirstSeen = ts
	}
	if ts.After(d.LastSeen) {
		d.LastSeen = ts
	}
	d.UpdatedAt = time.Now()
	return nil
}

func (v *memoryDeer) List(ctx context.Context, limit, offset int) ([]*model.Deer, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	out := make([]*model.Deer, 0, len(v.f.profiles))
	for _, d := range v.f.profiles {
		out = append(out, copyDeer(d))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
		if len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}

func (v *memoryDeer) Count(ctx context.Context) (int64, error) {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	return int64(len(v.f.profiles)), nil
}

func (v *memoryDeer) Delete(ctx context.Context, id string) error {
	v.f.mu.Lock()
	defer v.f.mu.Unlock()
	delete(v.f.profiles, id)
	return nil
}
