package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/model/rest"
)

func seedImage(t *testing.T, store *database.MemoryFacade, id, status string) {
	t.Helper()
	img := &model.Image{
		ID:               id,
		LocationID:       "loc-1",
		Path:             "/data/north-ridge/" + id + ".jpg",
		Filename:         id + ".jpg",
		Timestamp:        time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC),
		ProcessingStatus: status,
	}
	require.NoError(t, store.GetImage().Create(context.Background(), img))
}

func TestListImageDetections(t *testing.T) {
	engine, store, _ := newTestAPI(t, 3)
	ctx := context.Background()
	seedImage(t, store, "img-1", model.ImageStatusCompleted)

	dets := []*model.Detection{
		{ID: "det-1", ImageID: "img-1", BboxX: 1, BboxY: 1, BboxW: 10, BboxH: 10,
			Confidence: 0.9, Class: model.ClassDoe},
		{ID: "det-2", ImageID: "img-1", BboxX: 2, BboxY: 2, BboxW: 10, BboxH: 10,
			Confidence: 0.4, Class: model.ClassDoe, IsDuplicate: true},
		{ID: "det-3", ImageID: "img-other", BboxX: 3, BboxY: 3, BboxW: 10, BboxH: 10,
			Confidence: 0.7, Class: model.ClassOther},
	}
	require.NoError(t, store.GetDetection().BulkInsert(ctx, dets))

	w := perform(t, engine, http.MethodGet, "/api/v1/images/img-1/detections")
	env := decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)

	image := env.Data["image"].(map[string]interface{})
	assert.Equal(t, "img-1", image["id"])

	// duplicates stay visible here: the listing is the audit view
	detections := env.Data["detections"].([]interface{})
	require.Len(t, detections, 2)
	ids := []string{
		detections[0].(map[string]interface{})["id"].(string),
		detections[1].(map[string]interface{})["id"].(string),
	}
	assert.ElementsMatch(t, []string{"det-1", "det-2"}, ids)
}

func TestListImageDetectionsNotFound(t *testing.T) {
	engine, _, _ := newTestAPI(t, 3)

	w := perform(t, engine, http.MethodGet, "/api/v1/images/ghost/detections")
	env := decodeEnvelope(t, w)
	assert.Equal(t, errors.RequestDataNotExisted, env.Meta.Code)
}

func TestEnqueueImagePending(t *testing.T) {
	engine, store, q := newTestAPI(t, 3)
	seedImage(t, store, "img-1", model.ImageStatusPending)

	w := perform(t, engine, http.MethodPost, "/api/v1/images/img-1/enqueue")
	env := decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)
	assert.Equal(t, true, env.Data["enqueued"])
	assert.Equal(t, false, env.Data["reset"])

	assert.Equal(t, []string{"img-1"}, q.Items(model.QueueDetect, model.TaskStatusPending))
}

func TestEnqueueImageResetsTerminalStatus(t *testing.T) {
	engine, store, q := newTestAPI(t, 3)
	seedImage(t, store, "img-1", model.ImageStatusFailed)

	w := perform(t, engine, http.MethodPost, "/api/v1/images/img-1/enqueue")
	env := decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)
	assert.Equal(t, true, env.Data["reset"])

	img, err := store.GetImage().Get(context.Background(), "img-1")
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, model.ImageStatusPending, img.ProcessingStatus)
	assert.Equal(t, []string{"img-1"}, q.Items(model.QueueDetect, model.TaskStatusPending))
}

func TestEnqueueImageRejectsProcessing(t *testing.T) {
	engine, store, q := newTestAPI(t, 3)
	seedImage(t, store, "img-1", model.ImageStatusProcessing)

	w := perform(t, engine, http.MethodPost, "/api/v1/images/img-1/enqueue")
	env := decodeEnvelope(t, w)
	assert.Equal(t, errors.InvalidOperation, env.Meta.Code)
	assert.Empty(t, q.Items(model.QueueDetect, model.TaskStatusPending))
}

func TestEnqueueImageNotFound(t *testing.T) {
	engine, _, _ := newTestAPI(t, 3)

	w := perform(t, engine, http.MethodPost, "/api/v1/images/ghost/enqueue")
	env := decodeEnvelope(t, w)
	assert.Equal(t, errors.RequestDataNotExisted, env.Meta.Code)
}
