package chatws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staffsense/staffsense/plugin/assist"
	"github.com/staffsense/staffsense/plugin/forecastapi"
	"github.com/staffsense/staffsense/server/auth"
	storetest "github.com/staffsense/staffsense/store/test"
)

const testSecret = "test-secret"

type fakeBackend struct {
	forecast *forecastapi.ForecastResult
	options  *forecastapi.FilterOptions
}

func (f *fakeBackend) GetForecast(_ context.Context, _ url.Values) (*forecastapi.ForecastResult, error) {
	if f.forecast == nil {
		return &forecastapi.ForecastResult{}, nil
	}
	return f.forecast, nil
}

func (f *fakeBackend) GetFilterOptions(_ context.Context, _, _ string) (*forecastapi.FilterOptions, error) {
	if f.options == nil {
		return &forecastapi.FilterOptions{}, nil
	}
	return f.options, nil
}

func (f *fakeBackend) GetAvailableReports(_ context.Context) ([]forecastapi.AvailableReport, error) {
	return nil, nil
}

func (f *fakeBackend) UpdateCPH(_ context.Context, _ forecastapi.CPHUpdateRequest) (*forecastapi.CPHUpdateResult, error) {
	return &forecastapi.CPHUpdateResult{Updated: 1}, nil
}

func newTestChatServer(t *testing.T) (*httptest.Server, string) {
	ctx := context.Background()
	st := storetest.NewTestingStore(ctx, t)
	user := storetest.CreateTestingUser(ctx, t, st, "planner")

	token, err := auth.GenerateAccessToken(user.Username, user.ID, time.Now().Add(time.Hour), []byte(testSecret))
	require.NoError(t, err)

	backend := &fakeBackend{
		forecast: &forecastapi.ForecastResult{
			Rows:  []forecastapi.ForecastRow{{"platform": "Amisys", "fte": 12.0}},
			Total: 1,
		},
		options: &forecastapi.FilterOptions{Platforms: []string{"Amisys", "Facets"}},
	}
	assistant := assist.New(st, backend, nil, nil)

	e := echo.New()
	e.GET("/ws/chat", New(st, assistant, testSecret).Handle)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server, token
}

func dial(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) ServerFrame {
	var frame ServerFrame
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, ws.ReadJSON(&frame))
	return frame
}

// readUntil skips intermediate frames (typing, tool_result) until the wanted
// type arrives.
func readUntil(t *testing.T, ws *websocket.Conn, frameType string) ServerFrame {
	for i := 0; i < 10; i++ {
		frame := readFrame(t, ws)
		if frame.Type == frameType {
			return frame
		}
	}
	t.Fatalf("never received a %s frame", frameType)
	return ServerFrame{}
}

func TestHandleRejectsMissingToken(t *testing.T) {
	server, _ := newTestChatServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUserMessageRoundTrip(t *testing.T) {
	server, token := newTestChatServer(t)
	ws := dial(t, server, token)

	hello := readFrame(t, ws)
	assert.Equal(t, FrameSystem, hello.Type)
	assert.NotEmpty(t, hello.Timestamp)
	_, err := time.Parse(time.RFC3339, hello.Timestamp)
	assert.NoError(t, err)

	require.NoError(t, ws.WriteJSON(ClientFrame{
		Type: FrameUserMessage,
		Text: "Show me Amisys forecast data for March 2025",
	}))

	typing := readFrame(t, ws)
	assert.Equal(t, FrameTyping, typing.Type)

	response := readUntil(t, ws, FrameAssistantResponse)
	assert.Equal(t, "get_forecast_data", response.Category)
	assert.NotZero(t, response.ConversationID)
	assert.NotEmpty(t, response.Components)
}

func TestNewConversationFrame(t *testing.T) {
	server, token := newTestChatServer(t)
	ws := dial(t, server, token)
	readFrame(t, ws) // connect frame

	require.NoError(t, ws.WriteJSON(ClientFrame{
		Type: FrameUserMessage,
		Text: "Show me Amisys forecast data for March 2025",
	}))
	first := readUntil(t, ws, FrameAssistantResponse)

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameNewConversation}))
	fresh := readUntil(t, ws, FrameSystem)
	assert.NotZero(t, fresh.ConversationID)
	assert.NotEqual(t, first.ConversationID, fresh.ConversationID)
}

func TestUnknownFrameType(t *testing.T) {
	server, token := newTestChatServer(t)
	ws := dial(t, server, token)
	readFrame(t, ws)

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: "bogus"}))
	frame := readUntil(t, ws, FrameError)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "UNKNOWN_FRAME", frame.Error.Code)
}

func TestConfirmCPHWithoutPending(t *testing.T) {
	server, token := newTestChatServer(t)
	ws := dial(t, server, token)
	readFrame(t, ws)

	require.NoError(t, ws.WriteJSON(ClientFrame{Type: FrameConfirmCPHUpdate}))
	frame := readUntil(t, ws, FrameError)
	require.NotNil(t, frame.Error)
	assert.Equal(t, "NOTHING_PENDING", frame.Error.Code)
}
