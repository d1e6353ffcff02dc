package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/showdown"
	"github.com/luciancaetano/showdown/internal/protocol"
)

const maxBody = 1 << 20

// Config configures a Client.
type Config struct {
	// ActionURL is the fully expanded action endpoint.
	ActionURL string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// Rate and Burst limit requests; a zero Rate disables the limit.
	Rate   rate.Limit
	Burst  int
	Logger zerolog.Logger
}

// Client talks to the HTTP side of a Showdown server. It implements
// showdown.Authenticator.
type Client struct {
	actionURL string
	http      *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
}

var _ showdown.Authenticator = (*Client)(nil)

// New returns a Client for cfg.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.Rate, burst)
	}

	return &Client{
		actionURL: cfg.ActionURL,
		http:      httpClient,
		limiter:   limiter,
		log:       cfg.Logger.With().Str("component", "action").Logger(),
	}
}

// Login exchanges the account credentials and the connection's challenge
// for an assertion to send with "/trn".
func (c *Client) Login(ctx context.Context, name, password, challengeKeyID, challenge string) (showdown.LoginResult, error) {
	switch {
	case challengeKeyID == "" || challenge == "":
		return showdown.LoginResult{}, &showdown.AuthError{User: name, Reason: showdown.ErrMsgNoChallenge}
	case name == "":
		return showdown.LoginResult{}, &showdown.AuthError{Reason: showdown.ErrMsgNoUsername}
	case password == "":
		return showdown.LoginResult{}, &showdown.AuthError{User: name, Reason: showdown.ErrMsgNoPassword}
	}

	c.log.Info().Str("user", name).Msg("logging in")

	body, err := c.post(ctx, url.Values{
		"act":            {"login"},
		"name":           {name},
		"pass":           {password},
		"challenge":      {challenge},
		"challengekeyid": {challengeKeyID},
	})
	if err != nil {
		return showdown.LoginResult{}, &showdown.AuthError{User: name, Reason: showdown.ErrMsgInvalidLogin, Err: err}
	}

	doc, err := protocol.DecodeAction(body)
	if err != nil {
		return showdown.LoginResult{}, &showdown.AuthError{User: name, Reason: showdown.ErrMsgInvalidLogin, Err: err}
	}

	var result showdown.LoginResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return showdown.LoginResult{}, &showdown.AuthError{User: name, Reason: showdown.ErrMsgInvalidLogin, Err: err}
	}
	result.Raw = doc

	if !result.ActionSuccess {
		return result, &showdown.AuthError{User: name, Reason: showdown.ErrMsgLoginFailed}
	}
	// The server reports some refusals as a successful action carrying an
	// assertion of the form ";;reason".
	if reason, refused := strings.CutPrefix(result.Assertion, ";;"); refused {
		return result, &showdown.AuthError{User: name, Reason: showdown.ErrMsgLoginFailed + ": " + reason}
	}
	if result.Assertion == "" {
		return result, &showdown.AuthError{User: name, Reason: showdown.ErrMsgNoAssertion}
	}

	c.log.Info().Str("user", name).Msg("login succeeded")
	return result, nil
}

// UploadReplay posts the data of a "savereplay" query response.
func (c *Client) UploadReplay(ctx context.Context, data map[string]any) error {
	form := url.Values{}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := formValue(data[k])
		if err != nil {
			return fmt.Errorf("replay field %s: %w", k, err)
		}
		form.Set(k, v)
	}
	form.Set("act", "uploadreplay")

	body, err := c.post(ctx, form)
	if err != nil {
		return fmt.Errorf("upload replay: %w", err)
	}

	c.log.Info().Str("battle", form.Get("id")).Str("outcome", strings.TrimSpace(body)).Msg("replay uploaded")
	return nil
}

// ResolveHost fetches a server info document and returns "host:port".
func (c *Client) ResolveHost(ctx context.Context, serverInfoURL string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("server info request: %w", err)
	}

	c.log.Info().Str("url", serverInfoURL).Msg("requesting server host")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &showdown.TransportError{Op: "server info", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server info at %s unavailable: %s", serverInfoURL, resp.Status)
	}

	var info struct {
		Host string      `json:"host"`
		Port json.Number `json:"port"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&info); err != nil {
		return "", &showdown.ProtocolError{Reason: "malformed server info", Input: serverInfoURL, Err: err}
	}
	if info.Host == "" || info.Port == "" {
		return "", &showdown.ProtocolError{Reason: "server info without host or port", Input: serverInfoURL}
	}
	return info.Host + ":" + info.Port.String(), nil
}

func (c *Client) post(ctx context.Context, form url.Values) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.actionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &showdown.TransportError{Op: "action " + form.Get("act"), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", &showdown.TransportError{Op: "action " + form.Get("act"), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("action %s: %s", form.Get("act"), resp.Status)
	}
	return string(data), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func formValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
