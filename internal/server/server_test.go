package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconstudio/internal/assets"
	"iconstudio/internal/docstore"
	"iconstudio/internal/genclient"
	"iconstudio/internal/layerir"
	"iconstudio/internal/patch"
	"iconstudio/internal/segmentation"
	"iconstudio/internal/studio"
)

func newTestServer(t *testing.T) (*httptest.Server, *genclient.FakeClient) {
	t.Helper()
	fake := genclient.NewFakeClient()
	quiet := log.New(io.Discard, "", 0)
	svc := studio.New(fake, docstore.NewMemory(), assets.NewMemoryStore(), studio.Config{PaddingPx: 24, Logger: quiet})
	srv := httptest.NewServer(NewMux(NewHandler(svc, quiet), quiet))
	t.Cleanup(srv.Close)
	return srv, fake
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createDoc(t *testing.T, base string) *layerir.Document {
	t.Helper()
	resp, body := do(t, http.MethodPost, base+"/api/documents", `{"brief":"A blue shield with a check mark.","intake":{"styleMode":"Filled"}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	doc, err := layerir.Load(body)
	require.NoError(t, err)
	return doc
}

type apiError struct {
	Error struct {
		Kind    string   `json:"kind"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
	Workflow *patch.Snapshot `json:"workflow"`
}

func decodeError(t *testing.T, body []byte) apiError {
	t.Helper()
	var e apiError
	require.NoError(t, json.Unmarshal(body, &e), string(body))
	return e
}

func TestBrief(t *testing.T) {
	srv, fake := newTestServer(t)
	resp, body := do(t, http.MethodPost, srv.URL+"/api/brief", `{"purpose":"settings","visualIdea":"gear"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct{ Brief string }
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.Brief)
	assert.Equal(t, 1, fake.Calls(genclient.PhaseBrief))

	resp, body = do(t, http.MethodPost, srv.URL+"/api/brief", `{"styleMode":"Dotted"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation", decodeError(t, body).Error.Kind)

	resp, _ = do(t, http.MethodPost, srv.URL+"/api/brief", `{"purpose":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocumentLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	doc := createDoc(t, srv.URL)
	require.Len(t, doc.Layers, 3)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/documents/"+doc.DocID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := layerir.Load(body)
	require.NoError(t, err)
	assert.Equal(t, doc.Head(), got.Head())

	resp, body = do(t, http.MethodGet, srv.URL+"/api/documents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), doc.DocID)

	resp, body = do(t, http.MethodPatch, srv.URL+"/api/documents/"+doc.DocID+"/layers/obj_1",
		`{"fields":{"style":{"tint":"#2563EB","opacity":0.5}},"notes":"softer badge"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got, err = layerir.Load(body)
	require.NoError(t, err)
	assert.Equal(t, "softer badge", got.Head().Notes)
	assert.Len(t, got.History.Versions, 2)

	resp, body = do(t, http.MethodPatch, srv.URL+"/api/documents/"+doc.DocID+"/layers/obj_1", `{"fields":{"segColor":"#0000FF"}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, decodeError(t, body).Error.Details)

	resp, body = do(t, http.MethodPost, srv.URL+"/api/documents/"+doc.DocID+"/layers/obj_2/patch", `{"change":"rounder mark"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Workflow patch.Snapshot  `json:"workflow"`
		Document json.RawMessage `json:"document"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, patch.StateCommitted, out.Workflow.State)
	assert.Equal(t, "v3", out.Workflow.Version)
	patched, err := layerir.Load(out.Document)
	require.NoError(t, err)
	assert.Equal(t, "v3", patched.Head().VersionID)
}

func TestPatchFailureReportsWorkflow(t *testing.T) {
	srv, fake := newTestServer(t)
	doc := createDoc(t, srv.URL)
	fake.FailPhase(genclient.PhasePatchBeauty, genclient.NewPermanentError(io.ErrUnexpectedEOF))

	resp, body := do(t, http.MethodPost, srv.URL+"/api/documents/"+doc.DocID+"/layers/obj_1/patch", `{"change":"bigger"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	e := decodeError(t, body)
	assert.Equal(t, "upstream", e.Error.Kind)
	require.NotNil(t, e.Workflow)
	assert.Equal(t, patch.StateFailed, e.Workflow.State)

	resp, body = do(t, http.MethodGet, srv.URL+"/api/documents/"+doc.DocID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := layerir.Load(body)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Head().VersionID)
}

func TestNotFoundAndPreview(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := do(t, http.MethodGet, srv.URL+"/api/documents/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, body).Error.Kind)

	doc := createDoc(t, srv.URL)
	resp, body = do(t, http.MethodGet, srv.URL+"/api/documents/"+doc.DocID+"/preview?size=48", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	w, h, err := segmentation.PNGSize(body)
	require.NoError(t, err)
	assert.Equal(t, [2]int{48, 48}, [2]int{w, h})

	resp, _ = do(t, http.MethodGet, srv.URL+"/api/documents/"+doc.DocID+"/preview?size=-1", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAssetLinks(t *testing.T) {
	srv, _ := newTestServer(t)
	doc := createDoc(t, srv.URL)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/documents/"+doc.DocID+"/assets", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var links studio.AssetLinks
	require.NoError(t, json.Unmarshal(body, &links))

	base := "/api/documents/" + doc.DocID + "/assets/"
	assert.Equal(t, base+doc.Assets.BeautyPNG, links.Beauty)
	assert.Equal(t, base+doc.Assets.SegPNG, links.Seg)
	assert.Contains(t, links.Files, doc.Assets.BeautyPNG)
	assert.Contains(t, links.Files, doc.Assets.SegPNG)
	for _, l := range doc.Layers {
		if obj, ok := l.(layerir.ObjectGroupLayer); ok {
			assert.Equal(t, base+obj.MaskRef, links.Masks[obj.ID])
			assert.Contains(t, links.Files, obj.MaskRef)
		}
	}
	require.NotEmpty(t, links.Masks)

	resp, body = do(t, http.MethodGet, srv.URL+links.Beauty, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	w, h, err := segmentation.PNGSize(body)
	require.NoError(t, err)
	assert.Equal(t, [2]int{doc.Canvas.Width, doc.Canvas.Height}, [2]int{w, h})

	resp, _ = do(t, http.MethodGet, srv.URL+base+"assets/other.png", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = do(t, http.MethodGet, srv.URL+"/api/documents/nope/assets", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/documents", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestEventsStream(t *testing.T) {
	srv, _ := newTestServer(t)
	doc := createDoc(t, srv.URL)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/documents/" + doc.DocID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var hello eventsWSOutbound
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "subscribed", hello.Type)

	resp, body := do(t, http.MethodPost, srv.URL+"/api/documents/"+doc.DocID+"/layers/obj_1/patch", `{"change":"outline only"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var states []patch.State
	for len(states) == 0 || states[len(states)-1] != patch.StateCommitted {
		var msg eventsWSOutbound
		require.NoError(t, conn.ReadJSON(&msg))
		require.NotNil(t, msg.Event)
		states = append(states, msg.Event.State)
	}
	assert.Equal(t, []patch.State{patch.StateRequested, patch.StateRendering, patch.StateMerging, patch.StateCommitted}, states)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/documents/nope/events", nil)
	assert.Error(t, err)
}

func TestErrorBodyForPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	h := NewHandler(nil, log.New(io.Discard, "", 0))
	h.writeError(rec, io.ErrUnexpectedEOF, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var e apiError
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&e))
	assert.Equal(t, "internal", e.Error.Kind)
}
