package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/forgestudio/internal/backend"
	"github.com/GriffinCanCode/forgestudio/internal/domain/build"
	"github.com/GriffinCanCode/forgestudio/internal/testutil"
)

func dial(t *testing.T, session *build.Session) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/build/ws", NewHandler(session, nil, nil).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/build/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, sonic.Unmarshal(data, &msg))
	return msg
}

func TestInitialSnapshot(t *testing.T) {
	session := build.New(build.Options{})
	defer session.Close()

	conn := dial(t, session)
	msg := read(t, conn)
	assert.Equal(t, TypeBuild, msg["type"])
	assert.Equal(t, "IDLE", msg["phase"])
}

func TestPingAndUnknown(t *testing.T) {
	session := build.New(build.Options{})
	defer session.Close()

	conn := dial(t, session)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, TypePong, read(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	assert.Equal(t, TypeError, read(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, TypeError, read(t, conn)["type"])
}

func TestTriggerOverSocket(t *testing.T) {
	b := testutil.NewMockBackend(t, "ws1")
	b.On("StartBuild", mock.Anything).Return(&backend.BuildInfo{}, nil).Once()
	b.On("OpenLogStream", mock.Anything).Return(testutil.StreamOf("Compiling…", "EXIT 0"), nil).Once()

	session := build.New(build.Options{})
	session.Bind(b)
	defer session.Close()

	conn := dial(t, session)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trigger"}`)))

	var last map[string]interface{}
	for {
		last = read(t, conn)
		if last["phase"] == "SUCCEEDED" || last["phase"] == "FAILED" {
			break
		}
	}
	assert.Equal(t, "SUCCEEDED", last["phase"])
	assert.Equal(t, []interface{}{build.LineStarted, "Compiling…"}, last["log_lines"])
	assert.NotEmpty(t, last["preview_token"])
}

func TestSessionCloseEndsConnection(t *testing.T) {
	session := build.New(build.Options{})
	conn := dial(t, session)
	read(t, conn)

	session.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
