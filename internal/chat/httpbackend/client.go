// Package httpbackend implements chat.Backend over the pulsechat REST API
// and WebSocket push.
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vedran77/pulsechat/internal/chat"
	"github.com/vedran77/pulsechat/internal/domain"
	"github.com/vedran77/pulsechat/internal/observability"
	"github.com/vedran77/pulsechat/internal/service"
)

const apiPrefix = "/api/v1"

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to one pulsechat server on behalf of one user.
type Client struct {
	baseURL    string
	http       *http.Client
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger

	token  string
	userID uuid.UUID
}

var _ chat.Backend = (*Client)(nil)

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       httpClient,
		newBackOff: defaultBackOff,
		logger:     observability.Component("httpbackend"),
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 3)
}

// SetBackOff replaces the retry policy for idempotent requests.
func (c *Client) SetBackOff(fn func() backoff.BackOff) {
	c.newBackOff = fn
}

// UserID is the logged-in user, or uuid.Nil.
func (c *Client) UserID() uuid.UUID { return c.userID }

// SetToken authenticates the client with an existing access token.
func (c *Client) SetToken(token string, userID uuid.UUID) {
	c.token = token
	c.userID = userID
}

func (c *Client) Register(ctx context.Context, input service.RegisterInput) (*domain.User, error) {
	var resp service.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", input, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken, resp.User.ID)
	return resp.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	var resp service.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", service.LoginInput{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken, resp.User.ID)
	return resp.User, nil
}

func (c *Client) InsertChannel(ctx context.Context, name string, creatorID uuid.UUID, isPrivate bool) (*domain.Channel, error) {
	if creatorID != c.userID {
		return nil, fmt.Errorf("create channel as %s: %w", creatorID, chat.ErrNotAuthorized)
	}
	var ch domain.Channel
	err := c.do(ctx, http.MethodPost, "/channels", service.CreateChannelInput{Name: name, IsPrivate: isPrivate}, &ch)
	if apiErr := asAPIError(err); apiErr != nil && apiErr.Status == http.StatusConflict {
		return nil, chat.ErrDuplicateChannel
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) InsertMembership(ctx context.Context, channelID, userID uuid.UUID) error {
	body := map[string]string{"user_id": userID.String()}
	return mapNotFound(c.do(ctx, http.MethodPost, "/channels/"+channelID.String()+"/members", body, nil))
}

func (c *Client) FindChannel(ctx context.Context, name string, isPrivate bool) (*domain.Channel, error) {
	q := url.Values{"name": {name}, "private": {strconv.FormatBool(isPrivate)}}
	var ch domain.Channel
	err := c.get(ctx, "/channels/lookup?"+q.Encode(), &ch)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) ListMembers(ctx context.Context, channelID uuid.UUID) ([]domain.ChannelMember, error) {
	var members []domain.ChannelMember
	if err := c.get(ctx, "/channels/"+channelID.String()+"/members", &members); err != nil {
		return nil, mapNotFound(err)
	}
	return members, nil
}

func (c *Client) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	var channels []domain.Channel
	if err := c.get(ctx, "/channels", &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

type messagePage struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

func (c *Client) QueryMessages(ctx context.Context, channelID uuid.UUID, limit int, before *chat.Cursor) ([]domain.Message, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if before != nil {
		q.Set("before", before.CreatedAt.UTC().Format(time.RFC3339Nano))
		if before.ID != uuid.Nil {
			q.Set("before_id", before.ID.String())
		}
	}
	var page messagePage
	if err := c.get(ctx, "/channels/"+channelID.String()+"/messages?"+q.Encode(), &page); err != nil {
		return nil, mapNotFound(err)
	}
	return page.Messages, nil
}

func (c *Client) InsertMessage(ctx context.Context, channelID, senderID uuid.UUID, content, clientID string) (*domain.Message, error) {
	if senderID != c.userID {
		return nil, fmt.Errorf("send as %s: %w", senderID, chat.ErrNotAuthorized)
	}
	var msg domain.Message
	input := service.SendMessageInput{Content: content, ClientID: clientID}
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID.String()+"/messages", input, &msg); err != nil {
		return nil, mapNotFound(err)
	}
	return &msg, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID, requesterID uuid.UUID) error {
	if requesterID != c.userID {
		return chat.ErrNotAuthorized
	}
	err := c.do(ctx, http.MethodDelete, "/channels/"+channelID.String(), nil, nil)
	if isStatus(err, http.StatusForbidden) {
		return chat.ErrNotAuthorized
	}
	return mapNotFound(err)
}

func (c *Client) LookupUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := c.get(ctx, "/users/"+userID.String(), &u)
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// get retries transport failures and 5xx responses.
func (c *Client) get(ctx context.Context, path string, out any) error {
	op := func() error {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if apiErr := asAPIError(err); apiErr != nil && apiErr.Status < 500 {
			return backoff.Permanent(err)
		}
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Str("path", path).Dur("wait", wait).Msg("retrying request")
	}
	return backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

func isStatus(err error, status int) bool {
	apiErr := asAPIError(err)
	return apiErr != nil && apiErr.Status == status
}

func mapNotFound(err error) error {
	if isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %v", chat.ErrChannelNotFound, err)
	}
	return err
}
