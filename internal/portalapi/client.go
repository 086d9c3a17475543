package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"portal/internal"
	"portal/internal/config"
)

const maxAttempts = 5

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type usersPage struct {
	Users    []internal.User `json:"users"`
	NextPage *int            `json:"nextPage"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.PortalTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.PortalRateLimitRPS),
	}
}

func (c *Client) FindUserByUsername(ctx context.Context, username string) (*internal.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, nil
	}
	body, err := c.do(ctx, http.MethodGet, "users", map[string]string{"username": username}, nil)
	if err != nil {
		return nil, err
	}
	var users []internal.User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (c *Client) CreateAssignment(ctx context.Context, fields internal.AssignmentFields) (*internal.Assignment, error) {
	if fields.Status == "" {
		fields.Status = internal.StatusAssigned
	}
	body, err := c.do(ctx, http.MethodPost, "assignments", nil, fields)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 || string(bytes.TrimSpace(body)) == "null" {
		return nil, nil
	}
	var created internal.Assignment
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("decode assignment: %w", err)
	}
	return &created, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]internal.User, error) {
	all := make([]internal.User, 0)
	seen := map[int]struct{}{}
	page := 1

	for {
		body, err := c.do(ctx, http.MethodGet, "users", map[string]string{"page": strconv.Itoa(page)}, nil)
		if err != nil {
			return nil, err
		}
		var payload usersPage
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode users page %d: %w", page, err)
		}
		all = append(all, payload.Users...)

		if payload.NextPage == nil || len(payload.Users) == 0 {
			break
		}
		seen[page] = struct{}{}
		if _, ok := seen[*payload.NextPage]; ok {
			break
		}
		page = *payload.NextPage
	}

	return all, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, params map[string]string, payload any) ([]byte, error) {
	if strings.TrimSpace(c.cfg.PortalAPIToken) == "" {
		return nil, errors.New("missing PORTAL_API_TOKEN")
	}

	baseURL := strings.TrimRight(c.cfg.PortalAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var reqBody []byte
	if payload != nil {
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.PortalAPIToken)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The portal may have committed a POST before the connection broke.
			if method != http.MethodGet || attempt == maxAttempts {
				return nil, err
			}
			lastErr = err
			if err := sleepCtx(ctx, backoff(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			if method != http.MethodGet {
				return nil, readErr
			}
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(method, resp.StatusCode) && attempt < maxAttempts {
				lastErr = fmt.Errorf("portal status %d", resp.StatusCode)
				if err := sleepCtx(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("portal api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, fmt.Errorf("decode portal response: %w", err)
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("portal api unsuccessful: %s", apiResp.Message)
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("portal request failed")
	}
	return nil, lastErr
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isRetryableStatus only lets a write through again on 429, where the portal
// rejected the request before handling it.
func isRetryableStatus(method string, status int) bool {
	if method != http.MethodGet {
		return status == http.StatusTooManyRequests
	}
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
