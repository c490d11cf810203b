package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/kiakiraki/location-sync/db"
	"github.com/kiakiraki/location-sync/service"
)

// APIToken is the static bearer token the test service is started with.
const APIToken = "test-api-token"

// TestService is a test service for the API.
type TestService struct {
	s   *service.Service
	t   *testing.T
	url string
	c   *http.Client
}

// NewTestService creates a new test service backed by a throwaway MongoDB
// container.
func NewTestService(t *testing.T) *TestService {
	ctx := context.Background()

	// Start MongoDB container
	container, err := db.StartMongoContainer(ctx)
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to start MongoDB container"))
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	// Get MongoDB connection string
	mongoURI, err := container.Endpoint(ctx, "mongodb")
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to get MongoDB connection string"))

	s, err := service.New(mongoURI, APIToken, true)
	qt.Assert(t, err, qt.IsNil)
	port := 20000 + rand.New(rand.NewSource(time.Now().UnixNano())).Intn(8192)
	qt.Assert(t, s.Start("127.0.0.1", port), qt.IsNil)
	time.Sleep(time.Second * 1) // Wait for HTTP server to start
	return &TestService{
		s:   s,
		t:   t,
		url: fmt.Sprintf("http://localhost:%d", port),
		c:   http.DefaultClient,
	}
}

// Request sends a request to the service and returns the response body and
// status code. The body is expected to be a JSON object or null. If token is
// not empty, it will be sent as a Bearer token.
func (s *TestService) Request(method, token string, jsonBody any, urlPath ...string) ([]byte, int) {
	return s.request(method, token, "", "", nil, jsonBody, urlPath...)
}

// RequestQuery is Request with query parameters attached.
func (s *TestService) RequestQuery(method, token string, query url.Values, jsonBody any, urlPath ...string) ([]byte, int) {
	return s.request(method, token, "", "", query, jsonBody, urlPath...)
}

// RequestBasic is Request authenticating with HTTP basic auth instead of a
// bearer token, the way the tracker app does.
func (s *TestService) RequestBasic(method, user, password string, jsonBody any, urlPath ...string) ([]byte, int) {
	return s.request(method, "", user, password, nil, jsonBody, urlPath...)
}

func (s *TestService) request(method, token, user, password string, query url.Values,
	jsonBody any, urlPath ...string,
) ([]byte, int) {
	body, err := json.Marshal(jsonBody)
	qt.Assert(s.t, err, qt.IsNil)
	u, err := url.Parse(s.url)
	qt.Assert(s.t, err, qt.IsNil)
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequest(method, u.String(), bytes.NewReader(body))
	qt.Assert(s.t, err, qt.IsNil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if user != "" || password != "" {
		req.SetBasicAuth(user, password)
	}
	resp, err := s.c.Do(req)
	if err != nil {
		s.t.Logf("http error: %v", err)
		return nil, 0
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	qt.Assert(s.t, err, qt.IsNil)
	return data, resp.StatusCode
}
