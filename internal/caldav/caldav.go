// Package caldav is the gateway to the clinic's CalDAV calendar. It
// discovers the configured calendar lazily, queries events by time range or
// patient name, writes bookings as hand-serialized iCalendar objects, and
// deletes them by location or UID.
package caldav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	caldavproto "github.com/emersion/go-webdav/caldav"

	"github.com/clinicbot/margot/internal/models"
)

var (
	// ErrNotFound indicates the requested event does not exist.
	ErrNotFound = errors.New("calendar event not found")
	// ErrNotConnected indicates the calendar backend is unreachable or the
	// configured calendar could not be discovered.
	ErrNotConnected = errors.New("calendar not connected")
)

// Opts holds configuration options for the calendar client.
type Opts struct {
	// Endpoint is the CalDAV server base URL.
	Endpoint string
	// Username and Password are the basic-auth credentials.
	Username string
	Password string
	// CalendarName selects which of the principal's calendars to use.
	CalendarName string
	// Location is the clinic's timezone, used to render event times.
	Location *time.Location
}

// Option configures calendar client Opts.
type Option func(*Opts)

// WithEndpoint sets the CalDAV server URL.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) { o.Endpoint = endpoint }
}

// WithCredentials sets the basic-auth username and password.
func WithCredentials(username, password string) Option {
	return func(o *Opts) {
		o.Username = username
		o.Password = password
	}
}

// WithCalendarName selects the calendar by display name.
func WithCalendarName(name string) Option {
	return func(o *Opts) { o.CalendarName = name }
}

// WithLocation sets the timezone events are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// Client talks to one calendar on a CalDAV server. Connection state is
// established lazily before the first operation and re-checked on every
// call; a failed discovery surfaces as ErrNotConnected.
type Client struct {
	httpClient webdav.HTTPClient
	dav        *caldavproto.Client
	endpoint   *url.URL
	opts       Opts

	mu           sync.Mutex
	calendarPath string
}

// NewClient creates a calendar client. No network traffic happens until the
// first operation.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Location: time.UTC}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("calendar client requires an endpoint")
	}
	if cfg.CalendarName == "" {
		return nil, fmt.Errorf("calendar client requires a calendar name")
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar endpoint %q: %w", cfg.Endpoint, err)
	}

	httpClient := webdav.HTTPClientWithBasicAuth(nil, cfg.Username, cfg.Password)
	dav, err := caldavproto.NewClient(httpClient, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	slog.Info("Calendar client created", "endpoint", cfg.Endpoint, "calendar", cfg.CalendarName, "timezone", cfg.Location.String())
	return &Client{
		httpClient: httpClient,
		dav:        dav,
		endpoint:   endpoint,
		opts:       cfg,
	}, nil
}

// ensureConnected discovers the configured calendar if it has not been
// found yet. Discovery failures wrap ErrNotConnected so callers can treat
// every connectivity problem uniformly.
func (c *Client) ensureConnected(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calendarPath != "" {
		return c.calendarPath, nil
	}

	principal, err := c.dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		slog.Error("Client.ensureConnected: principal discovery failed", "error", err, "endpoint", c.opts.Endpoint)
		return "", fmt.Errorf("%w: principal discovery failed: %v", ErrNotConnected, err)
	}
	homeSet, err := c.dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		slog.Error("Client.ensureConnected: calendar home set discovery failed", "error", err)
		return "", fmt.Errorf("%w: home set discovery failed: %v", ErrNotConnected, err)
	}
	calendars, err := c.dav.FindCalendars(ctx, homeSet)
	if err != nil {
		slog.Error("Client.ensureConnected: calendar listing failed", "error", err)
		return "", fmt.Errorf("%w: calendar listing failed: %v", ErrNotConnected, err)
	}
	for _, cal := range calendars {
		if cal.Name == c.opts.CalendarName {
			c.calendarPath = cal.Path
			slog.Info("Client.ensureConnected: calendar discovered", "calendar", cal.Name, "path", cal.Path)
			return c.calendarPath, nil
		}
	}
	slog.Error("Client.ensureConnected: configured calendar not found", "calendar", c.opts.CalendarName, "available", len(calendars))
	return "", fmt.Errorf("%w: calendar %q not found on server", ErrNotConnected, c.opts.CalendarName)
}

// forget drops the cached calendar path so the next operation rediscovers.
func (c *Client) forget() {
	c.mu.Lock()
	c.calendarPath = ""
	c.mu.Unlock()
}

// decodeObject extracts calendar events from one fetched object. Events
// missing DTSTART are skipped entirely; a missing or unparsable DTEND
// leaves End at its zero value so callers can apply their busy-by-default
// policy.
func (c *Client) decodeObject(obj caldavproto.CalendarObject) []models.CalendarEvent {
	if obj.Data == nil {
		return nil
	}
	var out []models.CalendarEvent
	for _, ev := range obj.Data.Events() {
		start, err := ev.DateTimeStart(c.opts.Location)
		if err != nil || start.IsZero() {
			slog.Warn("Client.decodeObject: event without usable DTSTART skipped", "path", obj.Path, "error", err)
			continue
		}
		decoded := models.CalendarEvent{
			Identifier: obj.Path,
			Start:      start,
		}
		// DateTimeEnd synthesizes an end from DTSTART when both DTEND and
		// DURATION are absent; only decode an end the event actually carries.
		if ev.Props.Get(ical.PropDateTimeEnd) != nil || ev.Props.Get(ical.PropDuration) != nil {
			if end, err := ev.DateTimeEnd(c.opts.Location); err == nil {
				decoded.End = end
			}
		}
		if summary, err := ev.Props.Text(ical.PropSummary); err == nil {
			decoded.Summary = summary
		}
		if desc, err := ev.Props.Text(ical.PropDescription); err == nil {
			decoded.Description = desc
		}
		out = append(out, decoded)
	}
	return out
}

// query runs a VEVENT time-range REPORT against the calendar.
func (c *Client) query(ctx context.Context, start, end time.Time) ([]caldavproto.CalendarObject, error) {
	path, err := c.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}
	objs, err := c.dav.QueryCalendar(ctx, path, &caldavproto.CalendarQuery{
		CompFilter: caldavproto.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldavproto.CompFilter{{
				Name:  ical.CompEvent,
				Start: start.UTC(),
				End:   end.UTC(),
			}},
		},
	})
	if err != nil {
		c.forget()
		slog.Error("Client.query: calendar query failed", "error", err, "start", start, "end", end)
		return nil, fmt.Errorf("calendar query failed: %w", err)
	}
	return objs, nil
}

// Search returns the events overlapping [start, end) per the server's
// time-range semantics, in no particular order.
func (c *Client) Search(ctx context.Context, start, end time.Time) ([]models.CalendarEvent, error) {
	objs, err := c.query(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var events []models.CalendarEvent
	for _, obj := range objs {
		events = append(events, c.decodeObject(obj)...)
	}
	slog.Debug("Client.Search: events found", "count", len(events), "start", start, "end", end)
	return events, nil
}

// CreateEvent writes the draft as a new calendar object and returns its
// location path. The If-None-Match precondition makes the server refuse an
// overwrite if the generated name somehow already exists.
func (c *Client) CreateEvent(ctx context.Context, draft EventDraft) (string, error) {
	calPath, err := c.ensureConnected(ctx)
	if err != nil {
		return "", err
	}
	if draft.Start.IsZero() || draft.End.IsZero() {
		return "", fmt.Errorf("event draft requires start and end times")
	}

	now := time.Now()
	uid := NewEventUID(now)
	body := EncodeEvent(draft, uid, now, c.opts.Location)

	objPath := strings.TrimSuffix(calPath, "/") + "/" + uid + ".ics"
	target := c.endpoint.ResolveReference(&url.URL{Path: objPath})

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to build event request: %w", err)
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	req.Header.Set("If-None-Match", "*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.forget()
		slog.Error("Client.CreateEvent: event write failed", "error", err, "uid", uid)
		return "", fmt.Errorf("failed to write calendar event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Client.CreateEvent: server rejected event", "status", resp.StatusCode, "uid", uid)
		return "", fmt.Errorf("calendar server rejected event: status %d", resp.StatusCode)
	}

	slog.Info("Client.CreateEvent: event created", "uid", uid, "path", objPath, "start", draft.Start, "end", draft.End)
	return objPath, nil
}

// findByUIDWindow bounds the UID scan: appointments live in the near
// future, with a little slack into the past.
const (
	uidScanPast   = 31 * 24 * time.Hour
	uidScanFuture = 366 * 24 * time.Hour
)

// FindByIdentifier resolves an event by location path or UID. Returns
// ErrNotFound when nothing matches.
func (c *Client) FindByIdentifier(ctx context.Context, identifier string) (*models.CalendarEvent, error) {
	if identifier == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}
	if strings.Contains(identifier, "/") {
		return c.findByPath(ctx, identifier)
	}
	return c.findByUID(ctx, identifier)
}

func (c *Client) findByPath(ctx context.Context, path string) (*models.CalendarEvent, error) {
	if _, err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	obj, err := c.dav.GetCalendarObject(ctx, path)
	if err != nil {
		slog.Warn("Client.findByPath: object fetch failed", "error", err, "path", path)
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	events := c.decodeObject(*obj)
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: object at %s holds no usable event", ErrNotFound, path)
	}
	return &events[0], nil
}

func (c *Client) findByUID(ctx context.Context, uid string) (*models.CalendarEvent, error) {
	now := time.Now()
	objs, err := c.query(ctx, now.Add(-uidScanPast), now.Add(uidScanFuture))
	if err != nil {
		return nil, err
	}
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			prop := ev.Props.Get(ical.PropUID)
			if prop == nil || prop.Value != uid {
				continue
			}
			events := c.decodeObject(obj)
			if len(events) == 0 {
				return nil, fmt.Errorf("%w: event %s has no usable times", ErrNotFound, uid)
			}
			return &events[0], nil
		}
	}
	return nil, fmt.Errorf("%w: no event with uid %s", ErrNotFound, uid)
}

// DeleteEvent removes an event by location path or UID. Returns ErrNotFound
// when the event does not exist.
func (c *Client) DeleteEvent(ctx context.Context, identifier string) error {
	event, err := c.FindByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if err := c.dav.RemoveAll(ctx, event.Identifier); err != nil {
		c.forget()
		slog.Error("Client.DeleteEvent: removal failed", "error", err, "path", event.Identifier)
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	slog.Info("Client.DeleteEvent: event deleted", "path", event.Identifier, "summary", event.Summary)
	return nil
}

// FindByText returns events in [start, end) whose summary contains the
// patient name, case-insensitively, ordered by start time. Events without a
// resolvable end time are excluded: an event with no end cannot be safely
// matched against an appointment.
func (c *Client) FindByText(ctx context.Context, patientName string, start, end time.Time) ([]models.CalendarEvent, error) {
	events, err := c.Search(ctx, start, end)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(patientName)
	var matched []models.CalendarEvent
	for _, ev := range events {
		if !ev.HasEnd() {
			slog.Warn("Client.FindByText: event without end excluded", "path", ev.Identifier, "summary", ev.Summary)
			continue
		}
		if strings.Contains(strings.ToLower(ev.Summary), needle) {
			matched = append(matched, ev)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Start.Before(matched[j].Start) })
	slog.Info("Client.FindByText: search finished", "patient", patientName, "matches", len(matched))
	return matched, nil
}
