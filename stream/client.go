package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client runs tools against a WebSocket streaming endpoint.
type Client struct {
	HTTPClient *http.Client
	URL        string
	Logger     *zap.SugaredLogger
}

// Run streams a scan, calling fn for every event in order.
// It returns nil once the server closes the stream normally.
// If fn returns an error the connection is closed, which cancels the scan on the server.
func (c *Client) Run(ctx context.Context, toolID, target string, fn func(Event) error) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}
	q := u.Query()
	q.Set("tool", toolID)
	q.Set("args", target)
	u.RawQuery = q.Encode()

	c.Logger.Debugw("dialing WebSocket for run", "URL", u.String())
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		c.Logger.Debugf("dial error: %s", err)
		return fmt.Errorf("establishing WebSocket conn to run: %w", err)
	}
	conn.SetReadLimit(readLimit)
	defer conn.Close(websocket.StatusInternalError, "")

	for {
		var ev Event
		err := wsjson.Read(ctx, conn, &ev)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading event: %w", err)
		}
		err = fn(ev)
		if err != nil {
			conn.Close(websocket.StatusGoingAway, "")
			return err
		}
	}
}
