package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shopaura/storefront/internal/config"
	inErrors "github.com/shopaura/storefront/internal/errors"
	"github.com/shopaura/storefront/internal/log"
)

// TokenProvider returns the current session bearer token, empty when the
// buyer is not logged in.
type TokenProvider func() string

// Client is the typed transport for the buyer API. Session credentials ride
// every request; mutating verbs carry a client-generated Idempotency-Key so a
// retried submission cannot double-apply server-side.
type Client struct {
	baseUrl          string
	http             *http.Client
	token            TokenProvider
	onSessionExpired func(context.Context)
}

func New(cfg config.Api, token TokenProvider, onSessionExpired func(context.Context)) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseUrl: strings.TrimRight(cfg.BaseUrl, "/"),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		token:            token,
		onSessionExpired: onSessionExpired,
	}
}

func (cl *Client) Get(c context.Context, path string, out any) error {
	return cl.do(c, http.MethodGet, path, "", nil, out)
}

func (cl *Client) Post(c context.Context, path string, body any, out any) error {
	return cl.do(c, http.MethodPost, path, uuid.NewString(), body, out)
}

// PostWithKey lets a caller pin the idempotency key for one logical attempt
// so its own retry shares the key instead of minting a fresh one.
func (cl *Client) PostWithKey(c context.Context, path string, key string, body any, out any) error {
	return cl.do(c, http.MethodPost, path, key, body, out)
}

func (cl *Client) Put(c context.Context, path string, body any, out any) error {
	return cl.do(c, http.MethodPut, path, uuid.NewString(), body, out)
}

func (cl *Client) Delete(c context.Context, path string, out any) error {
	return cl.do(c, http.MethodDelete, path, uuid.NewString(), nil, out)
}

type envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	RedirectTo string `json:"redirectTo"`
}

func (cl *Client) do(c context.Context, method, path, idemKey string, body, out any) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Client do").
		Str(log.KeyRequestMethod, method).
		Str(log.KeyRequestURL, cl.baseUrl+path).
		Logger()

	var reqBody io.Reader
	if body != nil {
		buf := bytes.Buffer{}
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			err = fmt.Errorf("failed encoding request body with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		reqBody = &buf
	}

	req, err := http.NewRequestWithContext(c, method, cl.baseUrl+path, reqBody)
	if err != nil {
		err = fmt.Errorf("failed creating request with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := cl.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := cl.http.Do(req)
	if err != nil {
		err = fmt.Errorf("failed executing request: %v with error=%w", err, inErrors.ErrNetwork)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return cl.mapError(c, resp, logger)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("failed decoding response body with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	return nil
}

func (cl *Client) mapError(c context.Context, resp *http.Response, logger zerolog.Logger) error {
	logger = logger.With().Int(log.KeyStatusCode, resp.StatusCode).Logger()

	env := envelope{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		logger.Warn().Msgf("failed decoding error envelope with error=%s", err.Error())
	}

	apiErr := &inErrors.APIError{
		StatusCode: resp.StatusCode,
		Message:    env.Message,
		RedirectTo: env.RedirectTo,
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Err = inErrors.ErrSessionExpired
		if cl.onSessionExpired != nil {
			cl.onSessionExpired(c)
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Err = inErrors.ErrRateLimited
	case resp.StatusCode >= http.StatusInternalServerError:
		apiErr.Err = inErrors.ErrServer
	case resp.StatusCode == http.StatusForbidden:
		// role mismatch, the redirect hint routes to the other portal
	default:
		apiErr.Err = inErrors.ErrValidation
	}

	logger.Error().Err(apiErr).Msg(apiErr.Error())
	return apiErr
}
