package postgres

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplayOf_Defaults(t *testing.T) {
	replay := replayOf(&IdempotencyRecord{Response: []byte(`{"id":1}`)})
	assert.Equal(t, http.StatusOK, replay.StatusCode)
	assert.Equal(t, "application/json", replay.ContentType)
	assert.Equal(t, []byte(`{"id":1}`), replay.Body)

	status := http.StatusCreated
	ct := "application/problem+json"
	replay = replayOf(&IdempotencyRecord{StatusCode: &status, ContentType: &ct})
	assert.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.Equal(t, ct, replay.ContentType)
}
