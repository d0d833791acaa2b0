package syncagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"repairhub-backend/internal/model"
)

// ErrNotConnected indicates the hub could not be reached. Reads fall
// back to the local cache; mutating calls are refused outright — this
// system does not queue offline writes for later replay.
var ErrNotConnected = errors.New("hub is not reachable")

// ErrNotFound indicates the hub does not know the requested record.
var ErrNotFound = errors.New("record not found on hub")

// StatusError is returned for hub responses outside 2xx that do not map
// to a sentinel error.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hub returned status %d: %s", e.Code, e.Body)
}

// LockState mirrors the hub's advisory lock wire shape.
type LockState struct {
	Locked     bool       `json:"locked"`
	Device     *string    `json:"device"`
	AcquiredAt *time.Time `json:"acquiredAt"`
}

// HeldBy returns the holding device name, or "" when unlocked.
func (s LockState) HeldBy() string {
	if !s.Locked || s.Device == nil {
		return ""
	}
	return *s.Device
}

// HubClient is a thin JSON client for the hub coordinator API. It is
// safe for concurrent use.
type HubClient struct {
	baseURL string
	device  string
	client  *http.Client
}

// NewHubClient creates a client bound to the hub at baseURL. device is
// this client's stable identity string, used in all lock calls.
func NewHubClient(baseURL, device string, timeout time.Duration) *HubClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		device:  device,
		client:  &http.Client{Timeout: timeout},
	}
}

// Device returns the client's identity string.
func (c *HubClient) Device() string {
	return c.device
}

// ListTickets pulls the ticket set, optionally restricted to records
// updated at or after since.
func (c *HubClient) ListTickets(ctx context.Context, since *time.Time) ([]model.Ticket, error) {
	path := "/api/tickets"
	if since != nil {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	}
	var tickets []model.Ticket
	if err := c.do(ctx, http.MethodGet, path, nil, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicket fetches a single ticket.
func (c *HubClient) GetTicket(ctx context.Context, id int64) (*model.Ticket, error) {
	var ticket model.Ticket
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tickets/%d", id), nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// NextReceiptNumber asks the hub to allocate the next receipt number.
func (c *HubClient) NextReceiptNumber(ctx context.Context) (int64, error) {
	var resp struct {
		Number int64 `json:"number"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/tickets/next-receipt-number", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Number, nil
}

// CreateTicket submits a new ticket to the hub and returns the stored
// record with its assigned id and receipt number.
func (c *HubClient) CreateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	var created model.Ticket
	if err := c.do(ctx, http.MethodPost, "/api/tickets", t, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTicket saves ticket edits on the hub.
func (c *HubClient) UpdateTicket(ctx context.Context, t *model.Ticket) (*model.Ticket, error) {
	var updated model.Ticket
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/tickets/%d", t.ID), t, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTicket removes the ticket on the hub.
func (c *HubClient) DeleteTicket(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tickets/%d", id), nil, nil)
}

// GetLock reports the ticket's advisory lock state.
func (c *HubClient) GetLock(ctx context.Context, ticketID int64) (LockState, error) {
	var state LockState
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/tickets/%d/lock", ticketID), nil, &state)
	return state, err
}

// AcquireLock takes or refreshes the advisory lock for this device. A
// lock held elsewhere is reported in the returned state, not as an
// error.
func (c *HubClient) AcquireLock(ctx context.Context, ticketID int64) (LockState, error) {
	var state LockState
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/lock", ticketID),
		map[string]string{"device": c.device}, &state)
	return state, err
}

// ReleaseLock releases the advisory lock. The hub treats a release by a
// non-holder as a no-op, so this is always safe to call.
func (c *HubClient) ReleaseLock(ctx context.Context, ticketID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tickets/%d/lock", ticketID),
		map[string]string{"device": c.device}, nil)
}

// ListParts lists warehouse parts, optionally only the available ones.
func (c *HubClient) ListParts(ctx context.Context, onlyAvailable bool) ([]model.Part, error) {
	path := "/api/parts"
	if onlyAvailable {
		path += "?available=true"
	}
	var parts []model.Part
	if err := c.do(ctx, http.MethodGet, path, nil, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

// AttachPart sells a warehouse part on the ticket at the given price
// (nil uses the part's default price).
func (c *HubClient) AttachPart(ctx context.Context, ticketID, partID int64, price *float64) (*model.Ticket, error) {
	body := map[string]any{"part_id": partID}
	if price != nil {
		body["price"] = *price
	}
	var ticket model.Ticket
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/parts", ticketID), body, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// DetachPart takes the part back off the ticket.
func (c *HubClient) DetachPart(ctx context.Context, ticketID, partID int64) (*model.Ticket, error) {
	var ticket model.Ticket
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tickets/%d/parts/%d", ticketID, partID), nil, &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (c *HubClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode hub response: %w", err)
		}
	}
	return nil
}
