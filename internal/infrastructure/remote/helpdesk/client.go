package helpdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maksimrudenko/ticket-triage/internal/core/domain"
	"github.com/maksimrudenko/ticket-triage/internal/core/ports"
)

// Client talks to the remote helpdesk's paginated ticket API. Detail calls
// are paced by a shared limiter so the enrichment pass stays under the
// remote's steady-state rate limit.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	detailRate *rate.Limiter
}

type Options struct {
	PageSize          int
	DetailCallsPerSec float64
	Timeout           time.Duration
}

func New(baseURL, apiKey string, options Options) *Client {
	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = 30
	}
	callsPerSec := options.DetailCallsPerSec
	if callsPerSec <= 0 {
		callsPerSec = 2
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		detailRate: rate.NewLimiter(rate.Limit(callsPerSec), 1),
	}
}

type remoteTicket struct {
	ID          int64     `json:"id"`
	Subject     string    `json:"subject"`
	Description string    `json:"description_text"`
	Status      string    `json:"status"`
	Priority    string    `json:"priority"`
	GroupID     int64     `json:"group_id"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listResponse struct {
	Tickets  []remoteTicket `json:"tickets"`
	NextPage string         `json:"next_page"`
	Total    int            `json:"total"`
}

// ListPage fetches one page of tickets updated since the given time. The
// cursor is the remote page token; an empty cursor means the first page.
func (c *Client) ListPage(ctx context.Context, accountID, cursor string, since time.Time) (*ports.TicketPage, error) {
	query := url.Values{}
	query.Set("updated_since", since.UTC().Format(time.RFC3339))
	query.Set("per_page", strconv.Itoa(c.pageSize))
	if cursor != "" {
		query.Set("page", cursor)
	}

	var payload listResponse
	if err := c.getJSON(ctx, "/tickets?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	page := &ports.TicketPage{
		NextCursor:    payload.NextPage,
		ReportedTotal: payload.Total,
	}
	for _, rt := range payload.Tickets {
		page.Tickets = append(page.Tickets, c.normalize(accountID, rt))
	}
	return page, nil
}

type detailResponse struct {
	Conversations []struct {
		FromName  string    `json:"from_name"`
		BodyText  string    `json:"body_text"`
		Private   bool      `json:"private"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"conversations"`
	GroupName     string `json:"group_name"`
	RequesterName string `json:"requester_name"`
	AssigneeName  string `json:"assignee_name"`
}

func (c *Client) GetDetail(ctx context.Context, accountID, externalID string) (*ports.TicketDetail, error) {
	if err := c.detailRate.Wait(ctx); err != nil {
		return nil, err
	}

	var payload detailResponse
	if err := c.getJSON(ctx, "/tickets/"+url.PathEscape(externalID)+"?include=conversations", &payload); err != nil {
		return nil, err
	}

	detail := &ports.TicketDetail{
		Group:     payload.GroupName,
		Requester: payload.RequesterName,
		Assignee:  payload.AssigneeName,
	}
	for _, conv := range payload.Conversations {
		detail.Conversation = append(detail.Conversation, domain.ConversationEntry{
			Author:    conv.FromName,
			Body:      conv.BodyText,
			Private:   conv.Private,
			CreatedAt: conv.CreatedAt,
		})
	}
	return detail, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create helpdesk request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, "X")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrRemoteFatal, "helpdesk request", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp)}
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.WrapError(domain.ErrRemoteFatal, "helpdesk request",
			fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.WrapError(domain.ErrRemoteFatal, "decode helpdesk response", err)
	}
	return nil
}

func parseRetryAfter(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (c *Client) normalize(accountID string, rt remoteTicket) domain.Ticket {
	externalID := strconv.FormatInt(rt.ID, 10)
	return domain.Ticket{
		ExternalID:      externalID,
		AccountID:       accountID,
		Subject:         rt.Subject,
		Description:     rt.Description,
		Status:          normalizeStatus(rt.Status),
		Priority:        normalizePriority(rt.Priority),
		Group:           strconv.FormatInt(rt.GroupID, 10),
		Tags:            rt.Tags,
		Source:          "helpdesk",
		SourceURL:       c.baseURL + "/tickets/" + externalID,
		RemoteCreatedAt: rt.CreatedAt,
		RemoteUpdatedAt: rt.UpdatedAt,
	}
}

func normalizeStatus(raw string) domain.TicketStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "2":
		return domain.TicketStatusOpen
	case "pending", "3":
		return domain.TicketStatusPending
	case "resolved", "4":
		return domain.TicketStatusResolved
	case "closed", "5":
		return domain.TicketStatusClosed
	default:
		return domain.TicketStatusOpen
	}
}

func normalizePriority(raw string) domain.TicketPriority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low", "1":
		return domain.TicketPriorityLow
	case "medium", "2":
		return domain.TicketPriorityMedium
	case "high", "3":
		return domain.TicketPriorityHigh
	case "urgent", "4":
		return domain.TicketPriorityUrgent
	default:
		return domain.TicketPriorityMedium
	}
}
