package wameow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/wagate/backend/internal/engine"
)

// Client adapts one whatsmeow client to the engine.Client contract.
type Client struct {
	wc          *whatsmeow.Client
	container   *sqlstore.Container
	sessionName string
	lockPath    string

	onQR     func(engine.QREvent)
	onStatus func(status string)

	mu           sync.Mutex
	interfaceFns []func(engine.InterfaceEvent)
	lastMode     string
	qrAttempts   int

	closeOnce sync.Once

	log zerolog.Logger
}

var _ engine.Client = (*Client)(nil)

func (c *Client) IsConnected() bool {
	return c.wc.IsConnected()
}

func (c *Client) IsAuthenticated() bool {
	return c.wc.IsLoggedIn()
}

// ConnectionState is the liveness probe: it succeeds while the underlying
// socket is up, whether or not the session has paired yet.
func (c *Client) ConnectionState(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch {
	case c.wc.IsLoggedIn():
		return "CONNECTED", nil
	case c.wc.IsConnected():
		return "PAIRING", nil
	default:
		return "", errors.New("socket is disconnected")
	}
}

func (c *Client) WID(ctx context.Context) (string, error) {
	if c.wc.Store.ID == nil {
		return "", engine.ErrNotAuthenticated
	}
	return c.wc.Store.ID.String(), nil
}

func (c *Client) SendText(ctx context.Context, to, message string) (engine.SendReceipt, error) {
	if !c.wc.IsLoggedIn() {
		return engine.SendReceipt{}, engine.ErrNotAuthenticated
	}

	jid, err := composeJID(to)
	if err != nil {
		return engine.SendReceipt{}, err
	}

	resp, err := c.wc.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(message),
	})
	if err != nil {
		return engine.SendReceipt{}, fmt.Errorf("sending message: %w", err)
	}
	return engine.SendReceipt{MessageID: string(resp.ID), Timestamp: resp.Timestamp}, nil
}

func (c *Client) ListChats(ctx context.Context, filter engine.ChatFilter) ([]engine.Chat, error) {
	if !c.wc.IsLoggedIn() {
		return nil, engine.ErrNotAuthenticated
	}

	var chats []engine.Chat

	groups, err := c.wc.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	for _, g := range groups {
		chats = append(chats, engine.Chat{
			JID:     g.JID.String(),
			Name:    g.Name,
			IsGroup: true,
		})
	}

	if filter.OnlyGroups {
		return chats, nil
	}

	contacts, err := c.wc.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	for jid, info := range contacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		chats = append(chats, engine.Chat{
			JID:  jid.String(),
			Name: name,
		})
	}

	return chats, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if c.wc.Store.ID == nil {
		return engine.ErrNotAuthenticated
	}
	if err := c.wc.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Close disconnects the client, closes the device store and releases the
// profile lock marker. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wc.Disconnect()
		if cerr := c.container.Close(); cerr != nil {
			err = fmt.Errorf("closing session store: %w", cerr)
		}
		if rerr := os.Remove(c.lockPath); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = fmt.Errorf("removing lock marker: %w", rerr)
		}
	})
	return err
}

// OnInterfaceChange registers an interface-mode listener. The last observed
// mode is replayed immediately so a listener registered after the interface
// already reached MAIN still sees it.
func (c *Client) OnInterfaceChange(fn func(engine.InterfaceEvent)) {
	c.mu.Lock()
	c.interfaceFns = append(c.interfaceFns, fn)
	last := c.lastMode
	c.mu.Unlock()

	if last != "" {
		fn(engine.InterfaceEvent{Mode: last})
	}
}

func (c *Client) emitInterface(mode, displayInfo string) {
	c.mu.Lock()
	c.lastMode = mode
	fns := make([]func(engine.InterfaceEvent), len(c.interfaceFns))
	copy(fns, c.interfaceFns)
	c.mu.Unlock()

	evt := engine.InterfaceEvent{Mode: mode, DisplayInfo: displayInfo}
	for _, fn := range fns {
		fn(evt)
	}
}

func (c *Client) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.log.Info().Msg("connected")
		c.onStatus(engine.StatusAuthenticated)
		c.onStatus(engine.StatusInChat)
		c.emitInterface(engine.ModeSyncing, "synchronizing history")
	case *events.OfflineSyncCompleted:
		c.log.Debug().Msg("offline sync completed")
		c.onStatus(engine.StatusReady)
		c.emitInterface(engine.ModeMain, "interface loaded")
	case *events.LoggedOut:
		c.log.Warn().Str("reason", e.Reason.String()).Msg("logged out remotely")
		c.onStatus(engine.StatusNotLogged)
	case *events.StreamReplaced:
		c.log.Warn().Msg("stream replaced by another connection")
		c.onStatus(engine.StatusError)
	case *events.ConnectFailure:
		c.log.Error().Str("reason", e.Reason.String()).Msg("connect failure")
		c.onStatus(engine.StatusInitError)
	case *events.Disconnected:
		c.log.Warn().Msg("transport disconnected")
	}
}

// consumeQR drains the pairing channel, turning each code into a QR event
// (PNG plus terminal rendering) until pairing finishes one way or the other.
func (c *Client) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			c.mu.Lock()
			c.qrAttempts++
			attempt := c.qrAttempts
			c.mu.Unlock()

			png, err := qrcode.Encode(item.Code, qrcode.Medium, 256)
			if err != nil {
				c.log.Error().Err(err).Msg("QR encode failed")
				continue
			}
			var ascii string
			if q, err := qrcode.New(item.Code, qrcode.Medium); err == nil {
				ascii = q.ToSmallString(false)
			}
			c.onQR(engine.QREvent{
				Image:       png,
				ASCII:       ascii,
				Attempt:     attempt,
				Code:        item.Code,
				SessionName: c.sessionName,
			})
		case whatsmeow.QRChannelSuccess.Event:
			c.log.Info().Msg("QR scan succeeded")
			c.onStatus(engine.StatusQRReadSuccess)
		case whatsmeow.QRChannelTimeout.Event, "error":
			c.log.Warn().Str("event", item.Event).Msg("QR pairing failed")
			c.onStatus(engine.StatusQRReadError)
		}
	}
}

// composeJID turns a bare phone number or full JID string into a types.JID.
func composeJID(id string) (types.JID, error) {
	id = strings.TrimSpace(strings.TrimPrefix(id, "+"))
	if id == "" {
		return types.EmptyJID, errors.New("recipient is required")
	}
	if strings.ContainsRune(id, '@') {
		jid, err := types.ParseJID(id)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("invalid JID %q: %w", id, err)
		}
		return jid, nil
	}
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return types.NewJID(id, types.GroupServer), nil
	}
	return types.NewJID(id, types.DefaultUserServer), nil
}
