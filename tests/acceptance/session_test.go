package acceptance

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/cache"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/middleware"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/routes"
	"github.com/kendall-kelly/pouch-store-api/services"
	"github.com/kendall-kelly/pouch-store-api/tests/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// apiResponse is the envelope every endpoint answers with
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// startServer serves the full route table over a fresh database
func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	services.BcryptCost = bcrypt.MinCost

	testutil.NewTestDB(t)
	cfg := testutil.TestConfig()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(routes.CORS(cfg))
	require.NoError(t, routes.Register(router.Group("/api/v1"), cfg, cache.NewMemoryStore(0)))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// session is one browser: a cookie jar for the csrf cookie and the bearer token from sign in
type session struct {
	t           *testing.T
	baseURL     string
	client      *http.Client
	accessToken string
	user        models.User
}

func newSession(t *testing.T, server *httptest.Server) *session {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &session{t: t, baseURL: server.URL, client: &http.Client{Jar: jar}}
}

func (s *session) csrfToken() string {
	base, err := url.Parse(s.baseURL)
	require.NoError(s.t, err)
	for _, cookie := range s.client.Jar.Cookies(base) {
		if cookie.Name == middleware.CSRFCookieName {
			return cookie.Value
		}
	}
	return ""
}

func (s *session) send(method, path string, body io.Reader, contentType string) (int, apiResponse) {
	s.t.Helper()

	req, err := http.NewRequest(method, s.baseURL+path, body)
	require.NoError(s.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if s.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.accessToken)
	}
	if token := s.csrfToken(); token != "" {
		req.Header.Set(middleware.CSRFHeaderName, token)
	}

	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	var envelope apiResponse
	require.NoError(s.t, json.Unmarshal(raw, &envelope), string(raw))
	return resp.StatusCode, envelope
}

// call sends body as JSON and returns the status and the response envelope
func (s *session) call(method, path string, body interface{}) (int, apiResponse) {
	s.t.Helper()

	if body == nil {
		return s.send(method, path, nil, "")
	}
	payload, err := json.Marshal(body)
	require.NoError(s.t, err)
	return s.send(method, path, bytes.NewReader(payload), "application/json")
}

// mustCall requires the expected status and decodes data into out when out is not nil
func (s *session) mustCall(expected int, method, path string, body, out interface{}) {
	s.t.Helper()

	status, envelope := s.call(method, path, body)
	require.Equal(s.t, expected, status, "%s %s: %s %s", method, path, envelope.Error.Code, envelope.Error.Message)
	if out != nil {
		require.NoError(s.t, json.Unmarshal(envelope.Data, out))
	}
}

type authData struct {
	User   models.User `json:"user"`
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
}

func (s *session) register(email, referralCode string) authData {
	s.t.Helper()

	var data authData
	s.mustCall(http.StatusCreated, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":         email,
		"password":      testutil.TestPassword,
		"name":          email,
		"referral_code": referralCode,
	}, &data)
	s.accessToken = data.Tokens.AccessToken
	s.user = data.User
	return data
}

func (s *session) login(email string) authData {
	s.t.Helper()

	var data authData
	s.mustCall(http.StatusOK, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": testutil.TestPassword,
	}, &data)
	s.accessToken = data.Tokens.AccessToken
	s.user = data.User
	return data
}

// signInAs registers email, grants role in the database and signs in again so the token carries it
func signInAs(t *testing.T, server *httptest.Server, email string, role models.UserRole) *session {
	s := newSession(t, server)
	s.register(email, "")
	require.NoError(t, config.GetDB().Model(&models.User{}).Where("id = ?", s.user.ID).Update("role", role).Error)
	s.login(email)
	return s
}
