package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignShard(t *testing.T) {
	assert.Equal(t, 0, AssignShard(9, 3))
	assert.Equal(t, 2, AssignShard(11, 3))
	assert.Equal(t, 0, AssignShard(11, 0))
}

func TestIngestRequest_Document(t *testing.T) {
	req := IngestRequest{Title: "Fox", Body: "den", Links: []string{"Den"}, Prominence: 0.5, IdempotencyKey: "k"}
	doc := req.Document(42)
	assert.Equal(t, uint32(42), doc.DocNo)
	assert.Equal(t, "Fox", doc.Title)
	assert.Equal(t, []string{"Den"}, doc.Links)
	assert.Equal(t, 0.5, doc.Prominence)
}
