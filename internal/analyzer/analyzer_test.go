package analyzer

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/wire"
)

const sampleVectors = `{"name":"paris","vector":[1,0,0]}
{"name":"france","vector":[0.9,0.1,0]}
{"name":"berlin","vector":[0,1,0]}

{"name":"germany","vector":[0.1,0.9,0]}
{"name":"tokyo","vector":[0,0,1]}
`

func sampleStore(t *testing.T) *VectorStore {
	t.Helper()
	vs, err := LoadVectors(strings.NewReader(sampleVectors))
	require.NoError(t, err)
	require.Equal(t, 5, vs.Len())
	return vs
}

func TestLoadVectors_Errors(t *testing.T) {
	_, err := LoadVectors(strings.NewReader("{\"name\":\"a\",\"vector\":[1,2]}\n{\"name\":\"b\",\"vector\":[1]}\n"))
	assert.ErrorContains(t, err, "dimension")

	_, err = LoadVectors(strings.NewReader("nope\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestVectorStore_Nearest(t *testing.T) {
	vs := sampleStore(t)
	paris, ok := vs.Lookup("Paris")
	require.True(t, ok)

	got := vs.Nearest(vs.Sum([]int{paris}), 2, map[int]struct{}{paris: {}})
	require.Len(t, got, 2)
	assert.Equal(t, "france", vs.Name(got[0].Index))
	assert.Equal(t, "germany", vs.Name(got[1].Index))
	assert.Greater(t, got[0].Similarity, got[1].Similarity)

	assert.Nil(t, vs.Nearest([]float64{0, 0, 0}, 3, nil))
}

func TestAnalyze(t *testing.T) {
	a := New(sampleStore(t))
	reply := a.Analyze("Paris hotels", 2)

	require.Len(t, reply.Terms, 2)
	assert.Equal(t, proto.AnalyzedTerm{Type: "stem", Value: "pari", Position: 1, Weight: 1}, reply.Terms[0])
	assert.Equal(t, "hotel", reply.Terms[1].Value)
	assert.Equal(t, uint32(2), reply.Terms[1].Position)

	require.Len(t, reply.Related, 2)
	assert.Equal(t, "france", reply.Related[0].Value)
	assert.Equal(t, uint32(1), reply.Related[0].Index)
}

func TestAnalyze_WithoutVectors(t *testing.T) {
	reply := New(nil).Analyze("Paris", 5)
	assert.Len(t, reply.Terms, 1)
	assert.Empty(t, reply.Related)
}

func TestHandler_UnknownParameter(t *testing.T) {
	h := NewHandler(New(nil))
	reply := h.ServeFrame(context.Background(), []byte{'Q', 'Z'})
	assert.Equal(t, "Eunknown parameter", string(reply))
}

func TestClient_OverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := wire.NewServer("analyzer", NewHandler(New(sampleStore(t))))
	go srv.ServeListener(ln)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client := NewClient(ln.Addr().String())

	reply, err := client.Analyze(ctx, "berlin", 1)
	require.NoError(t, err)
	require.Len(t, reply.Related, 1)
	assert.Equal(t, "germany", reply.Related[0].Value)

	terms, err := client.Resolve(ctx, "fox foxes the")
	require.NoError(t, err)
	assert.Equal(t, []proto.Term{
		{Type: "stem", Value: "fox", Length: 1, Weight: 1},
		{Type: "stem", Value: "the", Length: 1, Weight: 1},
	}, terms)
}

func TestClient_RemoteError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := wire.NewServer("analyzer", wire.HandlerFunc(func(context.Context, []byte) []byte {
		return []byte("Eoverloaded")
	}))
	go srv.ServeListener(ln)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = NewClient(ln.Addr().String()).Resolve(ctx, "x")
	require.Error(t, err)
	assert.True(t, apperrors.IsRemote(err))
	assert.Equal(t, "overloaded", err.Error())
}
