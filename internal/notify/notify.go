package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	serviceName = "org.freedesktop.Notifications"
	objectPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyCall  = "org.freedesktop.Notifications.Notify"

	appName       = "pilot-availability"
	appIcon       = "x-office-calendar"
	expireDefault = int32(5000)
)

// Client posts desktop notifications on the session bus. A nil Client
// drops every notification.
type Client struct {
	conn *dbus.Conn
}

func New(ctx context.Context) (*Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Send(ctx context.Context, summary, body string) error {
	if c == nil || c.conn == nil {
		return nil
	}

	obj := c.conn.Object(serviceName, objectPath)
	call := obj.CallWithContext(ctx, notifyCall, 0, args(summary, body)...)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}
	return nil
}

// args follows the Notify signature (susssasa{sv}i).
func args(summary, body string) []any {
	return []any{
		appName,
		uint32(0),
		appIcon,
		strings.TrimSpace(summary),
		strings.TrimSpace(body),
		[]string{},
		map[string]dbus.Variant{
			"urgency": dbus.MakeVariant(byte(1)),
		},
		expireDefault,
	}
}
