package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/cricket/pkg/messaging"
)

func testClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(HTTPClientOptions{
		BaseURL:        srv.URL,
		OrganizationID: "00Dtest",
		DeploymentName: "Web_Deployment",
		Token:          func() string { return "tok-1" },
	})
	require.NoError(t, err)
	return c
}

func TestHTTPClient_TokenAndBearer(t *testing.T) {
	var sawAuth string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		require.Equal(t, "/authorization/unauthenticated/access-token", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "00Dtest", body["orgId"])
		_ = json.NewEncoder(w).Encode(messaging.TokenResponse{AccessToken: "jwt-1", LastEventID: "5"})
	})

	resp, err := c.GetUnauthenticatedAccessToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "jwt-1", resp.AccessToken)
	require.Equal(t, "5", resp.LastEventID)
	require.Equal(t, "Bearer tok-1", sawAuth)
}

func TestHTTPClient_ErrorCarriesStatus(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
	})

	_, err := c.GetContinuityJWT(context.Background())
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, StatusOf(err))
	require.True(t, IsAuthError(err))
	require.Contains(t, err.Error(), "token expired")
}

func TestHTTPClient_ListConversationEntries(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversation/c-1/entries", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversationEntries": []map[string]any{
				{"conversationId": "c-1", "identifier": "e-2", "entryType": "Message"},
				{"conversationId": "c-1", "identifier": "e-1", "entryType": "Message"},
			},
		})
	})

	entries, err := c.ListConversationEntries(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "e-2", entries[0].Identifier)
}

func TestHTTPClient_SendTextMessageOmitsRoutingAttributesOnPlainSend(t *testing.T) {
	var got map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	})

	err := c.SendTextMessage(context.Background(), SendMessageRequest{
		ConversationID: "c-1",
		Text:           "hello",
		MessageID:      "m-1",
		Language:       "en",
	})
	require.NoError(t, err)
	_, hasAttrs := got["routingAttributes"]
	require.False(t, hasAttrs)
	require.Equal(t, false, got["isNewMessagingSession"])
}

func TestHTTPClient_NetworkErrorHasNoStatus(t *testing.T) {
	c, err := NewHTTPClient(HTTPClientOptions{
		BaseURL: "http://127.0.0.1:1",
		Token:   func() string { return "" },
	})
	require.NoError(t, err)
	_, err = c.ListConversations(context.Background())
	require.Error(t, err)
	require.Equal(t, 0, StatusOf(err))
	require.False(t, IsAuthError(err))
}
