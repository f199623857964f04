package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client talks to a Server over HTTP.
type Client struct {
	BaseURL    string
	Channel    string
	HTTPClient *http.Client
}

// NewClient returns a client for channelName on the bridge at baseURL.
func NewClient(baseURL, channelName string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Channel:    channelName,
		HTTPClient: http.DefaultClient,
	}
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.BaseURL + "/v1/channels/" + url.PathEscape(c.Channel) + "/" + strings.Join(escaped, "/")
}

// Invoke calls method with args and returns the decoded reply. []byte values
// in args are sent as base64 strings by encoding/json.
func (c *Client) Invoke(ctx context.Context, method string, args map[string]any) (Reply, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return Reply{}, fmt.Errorf("encode arguments: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("methods", method), bytes.NewReader(body))
	if err != nil {
		return Reply{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("invoke %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotImplemented {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Reply{}, fmt.Errorf("invoke %s: %s: %s", method, resp.Status, strings.TrimSpace(string(msg)))
	}

	var reply Reply
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}

// Listen streams notifications to fn until ctx is cancelled or the server
// closes the stream.
func (c *Client) Listen(ctx context.Context, fn func(Event)) error {
	resp, err := c.openEvents(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	err = readEvents(resp.Body, c.Channel, fn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Subscribe opens the event stream and returns once the server has accepted
// it, so no notification sent after Subscribe returns is missed. The channel
// closes when ctx is done or the stream ends.
func (c *Client) Subscribe(ctx context.Context) (<-chan Event, error) {
	resp, err := c.openEvents(ctx)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		readEvents(resp.Body, c.Channel, func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return events, nil
}

func (c *Client) openEvents(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("events"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe: %s", resp.Status)
	}
	return resp, nil
}

// readEvents parses a server-sent event stream.
func readEvents(r io.Reader, channelName string, fn func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	ev := Event{Channel: channelName}
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if ev.Method != "" {
				if data.Len() > 0 {
					var args any
					if err := json.Unmarshal([]byte(data.String()), &args); err != nil {
						return fmt.Errorf("decode event %s: %w", ev.ID, err)
					}
					ev.Arguments = args
				}
				fn(ev)
			}
			ev = Event{Channel: channelName}
			data.Reset()
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Method = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
	return scanner.Err()
}
