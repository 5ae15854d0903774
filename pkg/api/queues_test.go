package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/model/rest"
	"github.com/wildsight/antler/pkg/queue"
)

// killTask drives one queued item to the dead-letter state.
func killTask(t *testing.T, q *queue.MemoryQueue, queueName, itemID, reason string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, queueName, itemID))
	d, err := q.Reserve(ctx, queueName)
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, itemID, d.ItemID)
	require.NoError(t, q.Nack(ctx, d, reason))
}

func TestGetQueueStats(t *testing.T) {
	engine, _, q := newTestAPI(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, model.QueueDetect, "img-1"))
	require.NoError(t, q.Enqueue(ctx, model.QueueDetect, "img-2"))
	require.NoError(t, q.Enqueue(ctx, model.QueueReid, "det-1"))
	_, err := q.Reserve(ctx, model.QueueDetect)
	require.NoError(t, err)

	w := perform(t, engine, http.MethodGet, "/api/v1/queues/stats")
	env := decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)

	detect, ok := env.Data["detect"].(map[string]interface{})
	require.True(t, ok, "data: %v", env.Data)
	assert.Equal(t, float64(1), detect["pending"])
	assert.Equal(t, float64(1), detect["processing"])

	reid, ok := env.Data["reid"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), reid["pending"])
}

func TestListDeadTasks(t *testing.T) {
	// budget of one: the first failure parks the item
	engine, _, q := newTestAPI(t, 1)
	killTask(t, q, model.QueueReid, "det-9", "embedding dimension mismatch")

	w := perform(t, engine, http.MethodGet, "/api/v1/queues/reid/dead")
	env := decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)
	assert.Equal(t, float64(1), env.Data["total_count"])

	rows, ok := env.Data["rows"].([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "det-9", row["item_id"])
	assert.Equal(t, model.TaskStatusDead, row["status"])
	assert.Equal(t, "embedding dimension mismatch", row["error_message"])
}

func TestListDeadTasksPaginates(t *testing.T) {
	engine, _, q := newTestAPI(t, 1)
	killTask(t, q, model.QueueDetect, "img-1", "boom")
	killTask(t, q, model.QueueDetect, "img-2", "boom")
	killTask(t, q, model.QueueDetect, "img-3", "boom")

	w := perform(t, engine, http.MethodGet, "/api/v1/queues/detect/dead?page_num=2&page_size=2")
	env := decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)
	assert.Equal(t, float64(3), env.Data["total_count"])

	rows := env.Data["rows"].([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "img-3", rows[0].(map[string]interface{})["item_id"])
}

func TestListDeadTasksUnknownQueue(t *testing.T) {
	engine, _, _ := newTestAPI(t, 3)

	w := perform(t, engine, http.MethodGet, "/api/v1/queues/bogus/dead")
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, errors.RequestParameterInvalid, env.Meta.Code)
}

func TestListDeadTasksRejectsBadPagination(t *testing.T) {
	engine, _, _ := newTestAPI(t, 3)

	w := perform(t, engine, http.MethodGet, "/api/v1/queues/detect/dead?page_num=abc")
	env := decodeEnvelope(t, w)
	assert.Equal(t, errors.RequestParameterInvalid, env.Meta.Code)
}

func TestRequeueDeadTasks(t *testing.T) {
	engine, _, q := newTestAPI(t, 1)
	killTask(t, q, model.QueueReid, "det-1", "boom")
	killTask(t, q, model.QueueReid, "det-2", "boom")

	w := perform(t, engine, http.MethodPost, "/api/v1/queues/reid/dead/requeue")
	env := decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)
	assert.Equal(t, float64(2), env.Data["requeued"])

	assert.Equal(t, []string{"det-1", "det-2"}, q.Items(model.QueueReid, model.TaskStatusPending))

	// nothing dead anymore, second pass is a no-op
	w = perform(t, engine, http.MethodPost, "/api/v1/queues/reid/dead/requeue")
	env = decodeEnvelope(t, w)
	require.Equal(t, rest.CodeSuccess, env.Meta.Code)
	assert.Equal(t, float64(0), env.Data["requeued"])
}

func TestRequeueDeadTasksUnknownQueue(t *testing.T) {
	engine, _, _ := newTestAPI(t, 3)

	w := perform(t, engine, http.MethodPost, "/api/v1/queues/bogus/dead/requeue")
	env := decodeEnvelope(t, w)
	assert.Equal(t, errors.RequestParameterInvalid, env.Meta.Code)
}
