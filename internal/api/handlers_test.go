package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/odissey/internal/config"
	"github.com/Corphon/odissey/internal/services"
	"github.com/Corphon/odissey/internal/storage"
	"github.com/Corphon/odissey/internal/utils"
)

type fixedRand int

func (f fixedRand) IntN(n int) int { return int(f) % n }

type testServer struct {
	router  *gin.Engine
	handler *Handler
	store   *storage.SQLiteStore
	metrics *utils.MetricsCollector
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	collector := utils.NewMetricsCollector()
	metrics := utils.NewAPIMetrics(collector)
	hub := NewTranscriptHub(collector)
	t.Cleanup(hub.Shutdown)

	handler := NewHandler(
		services.NewUserService(store),
		services.NewWorldService(store),
		services.NewSessionService(store, services.NewNarrativeEngine(fixedRand(0)), nil),
		hub, metrics, true,
	)
	cfg := &config.Config{DebugMode: false, RateLimitPerMinute: rateLimit, CORSOrigins: []string{"*"}}
	return &testServer{router: NewRouter(handler, cfg), handler: handler, store: store, metrics: collector}
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

const mistyHollowWorld = `{"title":"Misty Hollow","artifacts":{"settings":["a misty hollow"],"characters":["a fox"],"rules":[],"events":[],"story_template":"x"}}`

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, env.RequestID)

	data := decodeData[map[string]string](t, env)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "Odissey Storytelling API", data["service"])
	assert.Equal(t, "0.1.0", data["version"])
	assert.NotEmpty(t, data["timestamp"])
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Not found", env.Error.Message)
}

func TestCreateUserDefaults(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodPost, "/users", `{"age": 30, "personality": {"brave": 0.8}}`)
	require.Equal(t, http.StatusOK, code)
	user := decodeData[services.CreateUserResult](t, env)
	assert.False(t, user.RouteToDemo)
	assert.True(t, strings.HasPrefix(user.Name, "User_"))

	code, env = ts.do(t, http.MethodPost, "/users", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[services.CreateUserResult](t, env).RouteToDemo)
	assert.EqualValues(t, 2, ts.metrics.GetCounterValue(utils.MetricUsersCreated))
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodPost, "/worlds", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorBadRequest, env.Error.Code)
}

func TestMistyHollowEndToEnd(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodPost, "/worlds", mistyHollowWorld)
	require.Equal(t, http.StatusOK, code)
	world := decodeData[services.CreateWorldResult](t, env)
	assert.Equal(t, "Misty Hollow", world.Title)

	code, env = ts.do(t, http.MethodPost, "/sessions",
		`{"user_id":"u-1","world_id":"`+world.WorldID+`","personality_snapshot":{"adventurous":0.9}}`)
	require.Equal(t, http.StatusOK, code)
	session := decodeData[services.CreateSessionResult](t, env)
	assert.Equal(t,
		"Welcome to Misty Hollow! You find yourself in a misty hollow. You notice a fox nearby. Your heart races with excitement for the adventure ahead. What would you like to do?",
		session.InitialMessage)
	assert.Equal(t, "Misty Hollow", session.WorldTitle)

	// 互动请求里的人格字段被忽略
	code, env = ts.do(t, http.MethodPost, "/sessions/"+session.SessionID+"/interact",
		`{"message":"I follow the fox","personality":{"brave":0.99}}`)
	require.Equal(t, http.StatusOK, code)
	turn := decodeData[services.TurnResult](t, env)
	assert.Equal(t, session.SessionID, turn.SessionID)
	assert.Equal(t, "Your action echoes through the world around you. Something stirs in response...", turn.NarratorResponse)

	code, env = ts.do(t, http.MethodGet, "/sessions/"+session.SessionID+"/transcript", "")
	require.Equal(t, http.StatusOK, code)
	transcript := decodeData[struct {
		Entries []map[string]interface{} `json:"entries"`
	}](t, env)
	require.Len(t, transcript.Entries, 3)
	assert.Equal(t, "narrator", transcript.Entries[0]["speaker"])
	assert.Equal(t, "user", transcript.Entries[1]["speaker"])
	assert.Equal(t, "basic_interaction", transcript.Entries[2]["system_prompt_used"])

	code, env = ts.do(t, http.MethodGet, "/worlds/"+world.WorldID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Misty Hollow", decodeData[map[string]interface{}](t, env)["title"])
}

func TestCreateSessionUnknownWorld(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodPost, "/sessions", `{"user_id":"u-1","world_id":"missing"}`)
	require.Equal(t, http.StatusOK, code)
	session := decodeData[services.CreateSessionResult](t, env)
	assert.Equal(t, "Welcome to your adventure!", session.InitialMessage)
	assert.Equal(t, "Unknown World", session.WorldTitle)
	assert.EqualValues(t, 1, ts.metrics.GetCounterValue(utils.MetricSessionsWithoutWorld))

	_, env = ts.do(t, http.MethodGet, "/sessions/"+session.SessionID+"/transcript", "")
	transcript := decodeData[struct {
		Entries []interface{} `json:"entries"`
	}](t, env)
	assert.Empty(t, transcript.Entries)
}

func TestInteractUnknownSession(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodPost, "/sessions/ghost/interact", `{"message":"hello?"}`)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorSessionNotFound, env.Error.Code)
	assert.Equal(t, "Session not found", env.Error.Message)
	assert.EqualValues(t, 1, ts.metrics.GetCounterValue(utils.MetricTurnsSessionNotFound))

	_, env = ts.do(t, http.MethodGet, "/sessions/ghost/transcript", "")
	transcript := decodeData[struct {
		Entries []map[string]interface{} `json:"entries"`
	}](t, env)
	require.Len(t, transcript.Entries, 1)
	assert.Equal(t, "user", transcript.Entries[0]["speaker"])
}

func TestListings(t *testing.T) {
	ts := newTestServer(t, 0)

	ts.do(t, http.MethodPost, "/worlds", `{"title":"Public One"}`)
	ts.do(t, http.MethodPost, "/worlds", `{"title":"Private One","privacy_flag":"private"}`)
	ts.do(t, http.MethodPost, "/worlds", `{"title":"Demo One","is_demo":true,"preview_content":"peek","target_personality":{"creative":0.9}}`)

	code, env := ts.do(t, http.MethodGet, "/worlds", "")
	require.Equal(t, http.StatusOK, code)
	worlds := decodeData[struct {
		Worlds []map[string]interface{} `json:"worlds"`
	}](t, env)
	require.Len(t, worlds.Worlds, 2)
	assert.Equal(t, "Demo One", worlds.Worlds[0]["title"])

	code, env = ts.do(t, http.MethodGet, "/demo-worlds", "")
	require.Equal(t, http.StatusOK, code)
	demos := decodeData[struct {
		DemoWorlds []map[string]interface{} `json:"demo_worlds"`
	}](t, env)
	require.Len(t, demos.DemoWorlds, 1)
	assert.Equal(t, "peek", demos.DemoWorlds[0]["preview_content"])
}

func TestStoreFailureIsInternalError(t *testing.T) {
	ts := newTestServer(t, 0)
	require.NoError(t, ts.store.Close())

	code, env := ts.do(t, http.MethodPost, "/sessions", `{"world_id":"w"}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorStoreFailure, env.Error.Code)
	assert.Equal(t, "Failed to create session", env.Error.Message)
	assert.EqualValues(t, 1, ts.metrics.GetCounterValue(utils.MetricStoreFailures))
}

func TestInteractRateLimit(t *testing.T) {
	ts := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		code, _ := ts.do(t, http.MethodPost, "/sessions/ghost/interact", `{"message":"x"}`)
		assert.Equal(t, http.StatusNotFound, code)
	}
	code, env := ts.do(t, http.MethodPost, "/sessions/ghost/interact", `{"message":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, ErrorRateLimitExceeded, env.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.do(t, http.MethodGet, "/", "")

	code, env := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	snap := decodeData[map[string]map[string]interface{}](t, env)
	assert.Contains(t, snap["counters"], utils.MetricRequestsTotal)
}

func TestLiveTranscriptFeed(t *testing.T) {
	ts := newTestServer(t, 0)
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	post := func(path, body string) envelope {
		resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var env envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		return env
	}

	world := decodeData[services.CreateWorldResult](t, post("/worlds", mistyHollowWorld))
	session := decodeData[services.CreateSessionResult](t, post("/sessions", `{"world_id":"`+world.WorldID+`"}`))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + session.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var welcome map[string]interface{}
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "connected", welcome["type"])
	require.Eventually(t, func() bool { return ts.handler.Transcripts.Subscribers(session.SessionID) == 1 },
		time.Second, 10*time.Millisecond)

	post("/sessions/"+session.SessionID+"/interact", `{"message":"hello fox"}`)

	var speakers []string
	for i := 0; i < 2; i++ {
		var msg struct {
			Type  string                 `json:"type"`
			Entry map[string]interface{} `json:"entry"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "chat_log", msg.Type)
		speakers = append(speakers, msg.Entry["speaker"].(string))
	}
	assert.Equal(t, []string{"user", "narrator"}, speakers)
}

func TestWorldArtifactsRoundTrip(t *testing.T) {
	ts := newTestServer(t, 0)

	code, env := ts.do(t, http.MethodPost, "/worlds",
		`{"title":"Echo Cave","artifacts":{"settings":["a cave"],"mood":"dark","extras":{"seed":7}}}`)
	require.Equal(t, http.StatusOK, code)
	created := decodeData[struct {
		WorldID   string                 `json:"world_id"`
		Artifacts map[string]interface{} `json:"artifacts"`
	}](t, env)
	assert.Equal(t, "dark", created.Artifacts["mood"])

	code, env = ts.do(t, http.MethodGet, "/worlds/"+created.WorldID, "")
	require.Equal(t, http.StatusOK, code)
	world := decodeData[struct {
		Artifacts json.RawMessage `json:"artifacts"`
	}](t, env)
	assert.JSONEq(t, `{
		"characters": [], "settings": ["a cave"], "rules": [], "events": [],
		"story_template": "basic_adventure",
		"mood": "dark",
		"extras": {"seed": 7}
	}`, string(world.Artifacts))
}
