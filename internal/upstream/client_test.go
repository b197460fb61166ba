package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildPayload(t *testing.T) {
	p := BuildPayload("sora-2", "a cat surfing", "16:9", false)
	assert.Equal(t, "sora-2-text-to-video", p.Model)
	assert.Equal(t, "a cat surfing", p.Prompt)
	assert.Equal(t, "landscape", p.AspectRatio)
	assert.Equal(t, "10", p.NFrames)
	assert.True(t, p.RemoveWatermark)

	p = BuildPayload("sora-2-pro", "a dog skating", "9:16", true)
	assert.Equal(t, "sora-2-text-to-video", p.Model)
	assert.Equal(t, "portrait", p.AspectRatio)
	assert.Equal(t, "15", p.NFrames)

	// Unknown ratios fall back to landscape.
	p = BuildPayload("sora-2", "x", "4:3", false)
	assert.Equal(t, "landscape", p.AspectRatio)
}

func TestAccepted(t *testing.T) {
	r := &AcceptResponse{Code: 0}
	r.Data.TaskID = "abc"
	assert.True(t, r.Accepted())

	r.Data.TaskID = ""
	assert.False(t, r.Accepted())

	r.Code = 1001
	r.Data.TaskID = "abc"
	assert.False(t, r.Accepted())
}

func TestGenerate(t *testing.T) {
	var gotAuth, gotPath string
	var gotPayload GenerationPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"code":    0,
			"message": "success",
			"data":    map[string]any{"taskId": "task-123"},
		})
	}))
	defer server.Close()

	c := New(server.URL, 5*time.Second, 5*time.Second)
	payload := BuildPayload("sora-2", "hello", "9:16", false)

	accept, err := c.Generate(context.Background(), payload, "secret-key")
	assert.NoError(t, err)
	assert.True(t, accept.Accepted())
	assert.Equal(t, "task-123", accept.Data.TaskID)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "/api/v1/video/sora-pro", gotPath)
	assert.Equal(t, "portrait", gotPayload.AspectRatio)
}

func TestCheckResultPassesPayloadThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/video-generations/check-result", r.URL.Path)

		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "task-123", req["taskId"])

		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"status":   "failed",
				"videoUrl": "",
				"extra":    "opaque-field",
			},
		})
	}))
	defer server.Close()

	c := New(server.URL, 5*time.Second, 5*time.Second)
	payload, status, err := c.CheckResult(context.Background(), "task-123", "secret-key")
	assert.NoError(t, err)
	assert.Equal(t, "failed", status)

	data := payload["data"].(map[string]any)
	assert.Equal(t, "opaque-field", data["extra"])
}

func TestCheckResultWithoutStatusField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer server.Close()

	c := New(server.URL, 5*time.Second, 5*time.Second)
	_, status, err := c.CheckResult(context.Background(), "task-123", "k")
	assert.NoError(t, err)
	assert.Equal(t, "", status)
}

func TestNonOKStatusIsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(server.URL, 5*time.Second, 5*time.Second)
	_, err := c.Generate(context.Background(), GenerationPayload{}, "k")

	var httpErr *HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestTimeoutSurfacesAsErrTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := New(server.URL, 20*time.Millisecond, 20*time.Millisecond)
	_, err := c.Generate(context.Background(), GenerationPayload{}, "k")
	assert.ErrorIs(t, err, ErrTimeout)
}
