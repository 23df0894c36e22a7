package collab

import (
	"context"
	"errors"
	"net"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"restructure-engine/internal/model"
)

func serve(t *testing.T, c *client, h fasthttp.RequestHandler) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go (&fasthttp.Server{Handler: h}).Serve(ln) //nolint:errcheck
	t.Cleanup(func() { _ = ln.Close() })
	c.http.Dial = func(string) (net.Conn, error) { return ln.Dial() }
}

func TestHTTPSignerCreateSession(t *testing.T) {
	s := NewHTTPSigner("http://signer.local/")
	serve(t, &s.client, func(ctx *fasthttp.RequestCtx) {
		assert.Equal(t, "/v1/signing/sessions", string(ctx.Path()))
		var req sessionRequest
		require.NoError(t, json.Unmarshal(ctx.PostBody(), &req))
		assert.Equal(t, "C-1", req.ContractID)
		assert.Equal(t, model.StepDown, req.ScenarioType)
		ctx.SetBodyString(`{"session_id":"sess-1","signing_url":"https://sign.example/sess-1","document_id":"doc-1"}`)
	})

	got, err := s.CreateSession(context.Background(), "C-1", model.StepDown)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "doc-1", got.DocumentID)
}

func TestHTTPSignerFailures(t *testing.T) {
	tests := map[string]fasthttp.RequestHandler{
		"server error": func(ctx *fasthttp.RequestCtx) {
			ctx.SetStatusCode(fasthttp.StatusBadGateway)
		},
		"empty session": func(ctx *fasthttp.RequestCtx) {
			ctx.SetBodyString(`{}`)
		},
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			s := NewHTTPSigner("http://signer.local")
			serve(t, &s.client, h)
			_, err := s.CreateSession(context.Background(), "C-1", model.Defer)
			assert.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
		})
	}
}

func TestHTTPNotifier(t *testing.T) {
	n := NewHTTPNotifier("http://notify.local")
	serve(t, &n.client, func(ctx *fasthttp.RequestCtx) {
		var notice Notice
		require.NoError(t, json.Unmarshal(ctx.PostBody(), &notice))
		assert.Equal(t, model.ActionApplyChanges, notice.Event)
		ctx.SetBodyString(`{"whatsapp":true,"email":true,"push":false}`)
	})

	got, err := n.Notify(context.Background(), Notice{ContractID: "C-1", Event: model.ActionApplyChanges, State: model.StateApplied})
	require.NoError(t, err)
	assert.Equal(t, model.Notifications{WhatsApp: true, Email: true}, got)
}

func TestLocalSigner(t *testing.T) {
	got, err := LocalSigner{BaseURL: "https://sign.local/"}.CreateSession(context.Background(), "C-7", model.Recalendar)
	require.NoError(t, err)
	assert.NotEmpty(t, got.SessionID)
	assert.Equal(t, "https://sign.local/"+got.SessionID, got.SigningURL)
	assert.Equal(t, "C-7-recalendar", got.DocumentID)
}
