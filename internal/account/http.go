package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "https://beam.pro/api/v1/"
	maxBodyBytes   = 1 << 20
)

// HTTPService talks to the REST API. Login sets a session cookie that the
// join call reuses, so one HTTPService serves one robot.
type HTTPService struct {
	baseURL *url.URL
	client  *http.Client
}

// NewHTTPService creates a service rooted at baseURL. An empty baseURL uses DefaultBaseURL.
func NewHTTPService(baseURL string, timeout time.Duration) (*HTTPService, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("account: base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &HTTPService{
		baseURL: u,
		client:  &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

func (s *HTTPService) build(endpoint string) string {
	return s.baseURL.ResolveReference(&url.URL{Path: strings.TrimLeft(endpoint, "/")}).String()
}

// ResolveIdentity logs in with username/password, or looks up the current
// user for a token, and returns the channel id.
func (s *HTTPService) ResolveIdentity(ctx context.Context, creds Credentials) (Identity, error) {
	if err := creds.Validate(); err != nil {
		return Identity{}, err
	}
	var (
		req *http.Request
		err error
	)
	if creds.HasToken() {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, s.build("users/current"), nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(creds.Token))
		}
	} else {
		form := url.Values{}
		form.Set("username", creds.Username)
		form.Set("password", creds.Password)
		if creds.Code != "" {
			form.Set("code", creds.Code)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.build("users/login"), strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	body, err := s.do(req)
	if err != nil {
		return Identity{}, err
	}
	id, ok := channelID(body)
	if !ok {
		return Identity{}, fmt.Errorf("%w: login response has no channel id%s", ErrInvalidAuthentication, messageSuffix(body))
	}
	name, _ := body["username"].(string)
	log.Debug().Uint32("channel_id", id).Str("user", name).Msg("account: identity resolved")
	return Identity{ChannelID: id, Username: name}, nil
}

// JoinSession fetches the robot endpoint for channelID.
func (s *HTTPService) JoinSession(ctx context.Context, channelID uint32, creds Credentials) (JoinInfo, error) {
	endpoint := fmt.Sprintf("interactive/%d/robot", channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.build(endpoint), nil)
	if err != nil {
		return JoinInfo{}, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if creds.HasToken() {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(creds.Token))
	}
	body, err := s.do(req)
	if err != nil {
		return JoinInfo{}, err
	}
	addr, _ := body["address"].(string)
	key, _ := body["key"].(string)
	if addr == "" || key == "" {
		return JoinInfo{}, fmt.Errorf("%w: join response missing address or key%s", ErrInvalidAuthentication, messageSuffix(body))
	}
	return JoinInfo{Address: addr, Key: key}, nil
}

// do runs req and decodes a JSON object body. Transport failures and 5xx
// responses are ErrConnectionFailed; 401/403 and non-object bodies are
// ErrInvalidAuthentication.
func (s *HTTPService) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrConnectionFailed, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConnectionFailed, req.URL.Path, err)
	}
	var body map[string]any
	jsonErr := json.Unmarshal(raw, &body)

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned %d%s", ErrConnectionFailed, req.URL.Path, resp.StatusCode, messageSuffix(body))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned %d%s", ErrInvalidAuthentication, req.URL.Path, resp.StatusCode, messageSuffix(body))
	case jsonErr != nil || body == nil:
		return nil, fmt.Errorf("%w: %s returned a non-object body", ErrInvalidAuthentication, req.URL.Path)
	}
	return body, nil
}

func channelID(body map[string]any) (uint32, bool) {
	channel, ok := body["channel"].(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := channel["id"].(type) {
	case float64:
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return 0, false
		}
		return uint32(v), true
	case string:
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return 0, false
		}
		return uint32(n), true
	default:
		return 0, false
	}
}

func messageSuffix(body map[string]any) string {
	if msg, ok := body["message"].(string); ok && msg != "" {
		return ": " + msg
	}
	return ""
}

// IsRetryable reports whether err is a transient account failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) && !errors.Is(err, ErrInvalidAuthentication)
}
