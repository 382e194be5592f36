package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

const localDateTimeLayout = "2006-01-02T15:04:05"

// GoogleClient implements Client on the Google Calendar v3 API.
type GoogleClient struct {
	svc     *gcal.Service
	loc     *time.Location
	timeout time.Duration
	logger  *logging.Logger
}

// GoogleConfig configures the Google Calendar client.
type GoogleConfig struct {
	CredentialsJSON string
	CredentialsFile string
	Location        *time.Location
	Timeout         time.Duration
}

// NewGoogleClient authenticates with service account credentials.
func NewGoogleClient(ctx context.Context, cfg GoogleConfig, logger *logging.Logger) (*GoogleClient, error) {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []option.ClientOption{option.WithScopes(gcal.CalendarScope)}
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, errors.New("calendar: google credentials are required")
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create google service: %w", err)
	}
	return newGoogleClientWithService(svc, cfg, logger), nil
}

// NewGoogleClientWithHTTP builds a client on a pre-authenticated HTTP client
// and explicit endpoint, used against fakes.
func NewGoogleClientWithHTTP(ctx context.Context, httpClient *http.Client, endpoint string, cfg GoogleConfig, logger *logging.Logger) (*GoogleClient, error) {
	if logger == nil {
		logger = logging.Default()
	}
	svc, err := gcal.NewService(ctx, option.WithHTTPClient(httpClient), option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("calendar: create google service: %w", err)
	}
	return newGoogleClientWithService(svc, cfg, logger), nil
}

func newGoogleClientWithService(svc *gcal.Service, cfg GoogleConfig, logger *logging.Logger) *GoogleClient {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GoogleClient{svc: svc, loc: loc, timeout: timeout, logger: logger}
}

var _ Client = (*GoogleClient)(nil)

func (c *GoogleClient) FreeBusy(ctx context.Context, calendarRef string, from, to time.Time) ([]Interval, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: c.loc.String(),
		Items:    []*gcal.FreeBusyRequestItem{{Id: calendarRef}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy query: %w", err)
	}

	cal, ok := resp.Calendars[calendarRef]
	if !ok {
		return nil, fmt.Errorf("calendar: freebusy response missing calendar %s", calendarRef)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("calendar: freebusy error for %s: %s", calendarRef, cal.Errors[0].Reason)
	}

	intervals := make([]Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse busy end: %w", err)
		}
		intervals = append(intervals, Interval{Start: start, End: end})
	}
	return intervals, nil
}

func (c *GoogleClient) CreateEvent(ctx context.Context, calendarRef string, ev Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created, err := c.svc.Events.Insert(calendarRef, c.toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	c.logger.Debug("calendar event created", "calendar", calendarRef, "event_id", created.Id)
	return created.Id, nil
}

func (c *GoogleClient) PatchEvent(ctx context.Context, calendarRef, eventRef string, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.svc.Events.Patch(calendarRef, eventRef, c.toGoogleEvent(ev)).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return ErrEventNotFound
		}
		return fmt.Errorf("calendar: patch event: %w", err)
	}
	return nil
}

func (c *GoogleClient) DeleteEvent(ctx context.Context, calendarRef, eventRef string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.svc.Events.Delete(calendarRef, eventRef).Context(ctx).Do(); err != nil {
		if isNotFound(err) {
			return ErrEventNotFound
		}
		return fmt.Errorf("calendar: delete event: %w", err)
	}
	return nil
}

func (c *GoogleClient) toGoogleEvent(ev Event) *gcal.Event {
	tz := c.loc.String()
	return &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.In(c.loc).Format(localDateTimeLayout),
			TimeZone: tz,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.In(c.loc).Format(localDateTimeLayout),
			TimeZone: tz,
		},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: 30},
				{Method: "email", Minutes: 60},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
	}
	return false
}
