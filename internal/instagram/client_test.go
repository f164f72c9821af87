package instagram

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSurfacesEmbeddedErrorOn200(t *testing.T) {
	fg := newFakeGraph(t)
	fg.json("GET /me/accounts", map[string]any{
		"error": map[string]any{"message": "Invalid OAuth access token.", "type": "OAuthException", "code": 190},
	})

	_, err := fg.client().Pages(context.Background(), "tok")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Invalid OAuth access token.", apiErr.Error())
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, http.StatusOK, apiErr.Status)
}

func TestClientNon2xxWithoutBody(t *testing.T) {
	fg := newFakeGraph(t)
	fg.handle("GET /me/accounts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := fg.client().Pages(context.Background(), "tok")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "502")
}

func TestCreateContainerSendsForm(t *testing.T) {
	fg := newFakeGraph(t)
	fg.json("POST /1784/media", map[string]string{"id": "c-1"})

	id, err := fg.client().CreateContainer(context.Background(), "1784", "page-tok", "https://x.test/a.png", "hello")
	require.NoError(t, err)
	assert.Equal(t, "c-1", id)

	form := fg.lastForm("POST /1784/media")
	assert.Equal(t, "https://x.test/a.png", form["image_url"])
	assert.Equal(t, "hello", form["caption"])
	assert.Equal(t, "IMAGE", form["media_type"])
	assert.Equal(t, "page-tok", form["access_token"])
}

func TestEndpointJoinsVersion(t *testing.T) {
	c := NewClient(Options{BaseURL: "https://graph.example.com/", Version: "/v19.0/"})
	assert.Equal(t, "https://graph.example.com/v19.0/me/accounts", c.Endpoint("/me/accounts"))
}

func TestClientTreatsNonObjectErrorMemberAsFailure(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"string", `{"error":"Unsupported request"}`, "Unsupported request"},
		{"number", `{"error":100}`, "100"},
		{"array", `{"error":["bad","worse"]}`, `["bad","worse"]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fg := newFakeGraph(t)
			fg.handle("POST /1784/media_publish", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := fg.client().PublishContainer(context.Background(), "1784", "tok", "c-1")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "err = %v", err)
			assert.Equal(t, tc.want, apiErr.Error())
			assert.Equal(t, http.StatusOK, apiErr.Status)
		})
	}
}

func TestDecodeAPIErrorIgnoresNullAndAbsentMember(t *testing.T) {
	assert.Nil(t, decodeAPIError(http.StatusOK, []byte(`{"id":"1","error":null}`)))
	assert.Nil(t, decodeAPIError(http.StatusOK, []byte(`{"data":[]}`)))
	assert.Nil(t, decodeAPIError(http.StatusOK, nil))
}
