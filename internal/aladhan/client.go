package aladhan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	appLog "athand/internal/log"
	"athand/internal/model"
)

// Client fetches monthly prayer timetables from the Al Adhan calendar API.
// It owns the decode-into-domain-model step: the raw response is turned into
// a sorted model.MonthTimeline here. Caching is not this type's job; the
// scheduler composes the month cache in front of it.
type Client struct {
	client  *http.Client
	baseURL string
	method  int
	school  int
}

// NewClient creates a new Client against the given base URL
// (e.g. "https://api.aladhan.com"). method and school are the Al Adhan
// calculation parameters; zero values defer to the source's defaults.
func NewClient(baseURL string, method, school int) *Client {
	if baseURL == "" {
		baseURL = "https://api.aladhan.com"
	}
	return &Client{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: baseURL,
		method:  method,
		school:  school,
	}
}

// calendarResponse is the wire shape of the Al Adhan monthly calendar
// endpoint: one data element per day of the month.
type calendarResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   []struct {
		// Timings keys are event-kind names; with iso8601=true the values
		// are full ISO-8601 datetime strings.
		Timings map[string]string `json:"timings"`
		Date    struct {
			Readable  string `json:"readable"`
			Timestamp string `json:"timestamp"` // unix seconds as decimal string
		} `json:"date"`
	} `json:"data"`
}

// FetchMonth issues one calendar request for (address, key) and decodes the
// response into a MonthTimeline.
//
// Per-entry decode is deliberately lenient: a timing with an unrecognized
// kind or an unparseable timestamp is dropped and the rest of the month
// survives. Transport and decode failures, by contrast, fail the whole
// month with model.ErrInvalidData.
func (c *Client) FetchMonth(ctx context.Context, address string, key model.MonthKey) (model.MonthTimeline, error) {
	if !key.Valid() {
		return model.MonthTimeline{}, model.NewFetchError(model.ErrInvalidDate,
			fmt.Errorf("month out of range: %d", key.Month))
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("month", strconv.Itoa(key.Month))
	q.Set("year", strconv.Itoa(key.Year))
	q.Set("iso8601", "true")
	if c.method > 0 {
		q.Set("method", strconv.Itoa(c.method))
	}
	if c.school > 0 {
		q.Set("school", strconv.Itoa(c.school))
	}

	reqURL := c.baseURL + "/v1/calendarByAddress?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.MonthTimeline{}, model.NewFetchError(model.ErrInvalidData, err)
	}

	appLog.Info("calendar fetch start", "year", key.Year, "month", key.Month)

	resp, err := c.client.Do(req)
	if err != nil {
		return model.MonthTimeline{}, model.NewFetchError(model.ErrInvalidData, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.MonthTimeline{}, model.NewFetchError(model.ErrInvalidData, errors.New(resp.Status))
	}

	var body calendarResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.MonthTimeline{}, model.NewFetchError(model.ErrInvalidData, err)
	}

	events := make([]model.Event, 0, len(body.Data)*5)
	dropped := 0
	for _, day := range body.Data {
		for rawKind, rawTime := range day.Timings {
			kind, ok := model.ParseEventKind(rawKind)
			if !ok {
				dropped++
				continue
			}
			t, perr := time.Parse(time.RFC3339, rawTime)
			if perr != nil {
				dropped++
				continue
			}
			events = append(events, model.Event{Kind: kind, Time: t})
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})

	appLog.Info("calendar fetch success",
		"year", key.Year,
		"month", key.Month,
		"event_count", len(events),
		"dropped", dropped,
	)

	return model.MonthTimeline{
		StartOfMonth: startOfMonth(key, events),
		Events:       events,
	}, nil
}

// startOfMonth computes midnight on day 1 of the keyed month, in the zone
// the source returned the events in (UTC when the month came back empty).
func startOfMonth(key model.MonthKey, events []model.Event) time.Time {
	loc := time.UTC
	if len(events) > 0 {
		loc = events[0].Time.Location()
	}
	return time.Date(key.Year, time.Month(key.Month), 1, 0, 0, 0, 0, loc)
}
