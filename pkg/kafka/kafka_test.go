package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Reason string `json:"reason"`
	Shard  int    `json:"shard"`
}

func TestEventMessage_RoundTrip(t *testing.T) {
	msg, err := Event{Key: "3", Value: sample{Reason: "indexed", Shard: 3}}.message()
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), msg.Key)
	assert.JSONEq(t, `{"reason":"indexed","shard":3}`, string(msg.Value))

	got, err := DecodeJSON[sample](msg.Value)
	require.NoError(t, err)
	assert.Equal(t, sample{Reason: "indexed", Shard: 3}, got)
}

func TestEventMessage_Unencodable(t *testing.T) {
	_, err := Event{Key: "k", Value: make(chan int)}.message()
	assert.ErrorContains(t, err, `marshaling event "k"`)

	_, err = DecodeJSON[sample]([]byte("{"))
	assert.ErrorContains(t, err, "decoding kafka message")
}
