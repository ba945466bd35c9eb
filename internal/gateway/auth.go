package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrLoginRejected is returned when the login endpoint answers with a
// success status other than 200.
var ErrLoginRejected = errors.New("gateway: login rejected")

// LoginResult is a successful login. Token is empty when the server did not
// return one.
type LoginResult struct {
	Token string
	Via   string
}

// Login methods reported in LoginResult.Via.
const (
	LoginViaBasic = "basic"
	LoginViaForm  = "form"
)

// AuthService performs operator login. It never attaches bearer tokens.
type AuthService struct {
	basicURL string
	formURL  string
	http     *http.Client
	observer Observer
}

// NewAuthService creates a login service for the basic-auth URL and the
// form-login fallback URL.
func NewAuthService(basicURL, formURL string, opts ...Option) *AuthService {
	c := NewClient("", opts...)
	return &AuthService{
		basicURL: basicURL,
		formURL:  formURL,
		http:     c.http,
		observer: c.observer,
	}
}

// Login tries HTTP basic auth first and falls back to a form POST on any
// failure. The fallback's error is returned when both fail.
func (a *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	res, basicErr := a.basicLogin(ctx, username, password)
	if basicErr == nil {
		return res, nil
	}
	if errors.Is(basicErr, ErrLoginRejected) {
		return LoginResult{}, basicErr
	}

	res, formErr := a.formLogin(ctx, username, password)
	if formErr != nil {
		return LoginResult{}, fmt.Errorf("login failed: %w", formErr)
	}
	return res, nil
}

func (a *AuthService) basicLogin(ctx context.Context, username, password string) (LoginResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.basicURL, nil)
	if err != nil {
		return LoginResult{}, err
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Accept", "application/json")
	return a.send(req, LoginViaBasic)
}

func (a *AuthService) formLogin(ctx context.Context, username, password string) (LoginResult, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.formURL, strings.NewReader(form.Encode()))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return a.send(req, LoginViaForm)
}

func (a *AuthService) send(req *http.Request, via string) (LoginResult, error) {
	start := time.Now()
	res, err := a.http.Do(req)
	if err != nil {
		a.observe(req, 0, start)
		return LoginResult{}, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer res.Body.Close()
	a.observe(req, res.StatusCode, start)

	data, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: res.StatusCode,
			Status:     res.Status,
		}
		apiErr.Message, apiErr.ValidationErrors = parseErrorBody(data)
		return LoginResult{}, apiErr
	}
	if res.StatusCode != http.StatusOK {
		return LoginResult{}, fmt.Errorf("%w: %s", ErrLoginRejected, res.Status)
	}

	var payload struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(data, &payload)
	return LoginResult{Token: payload.Token, Via: via}, nil
}

func (a *AuthService) observe(req *http.Request, status int, start time.Time) {
	if a.observer == nil {
		return
	}
	a.observer.ObserveRequest(req.Method, req.URL.Path, status, time.Since(start))
}
