package control

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Client sends edits to the running daemon.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// Dial connects to the daemon. It returns ErrNoDaemon when there is no
// session bus or nobody owns BusName.
func Dial(ctx context.Context) (*Client, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDaemon, err)
	}

	var owned bool
	err = conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, BusName).Store(&owned)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("look up %s: %w", BusName, err)
	}
	if !owned {
		_ = conn.Close()
		return nil, ErrNoDaemon
	}
	return &Client{conn: conn, obj: conn.Object(BusName, ObjectPath)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args []any, out ...any) error {
	call := c.obj.CallWithContext(ctx, Interface+"."+method, 0, args...)
	return fromDBus(call.Store(out...))
}

func (c *Client) CreatePlaylist(ctx context.Context, title string) (id, created string, err error) {
	err = c.call(ctx, "CreatePlaylist", []any{title}, &id, &created)
	return id, created, err
}

func (c *Client) AddTrack(ctx context.Context, playlistID, ref string) (title string, added bool, err error) {
	err = c.call(ctx, "AddTrack", []any{playlistID, ref}, &title, &added)
	return title, added, err
}

func (c *Client) RemoveTrack(ctx context.Context, playlistID, ref string) (title string, removed bool, err error) {
	err = c.call(ctx, "RemoveTrack", []any{playlistID, ref}, &title, &removed)
	return title, removed, err
}

func (c *Client) RenamePlaylist(ctx context.Context, playlistID, title string) error {
	return c.call(ctx, "RenamePlaylist", []any{playlistID, title})
}

func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	return c.call(ctx, "DeletePlaylist", []any{playlistID})
}

var (
	_ Editor = (*Client)(nil)
	_ Editor = (*Service)(nil)
)
