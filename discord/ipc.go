package discord

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus-crane/earshot/presence"
)

type opcode uint32

const (
	opHandshake opcode = 0
	opFrame     opcode = 1
	opClose     opcode = 2
	opPing      opcode = 3
	opPong      opcode = 4
)

// maxFrameSize guards against a corrupt header asking us to allocate gigabytes.
const maxFrameSize = 64 * 1024

// DefaultTimeout bounds each exchange with Discord. A client that stops
// answering is treated as a broken connection.
const DefaultTimeout = 5 * time.Second

// ErrConnectionBroken wraps every failure to read from or write to the
// socket. The poll loop treats it as a signal to reconnect.
var ErrConnectionBroken = errors.New("discord connection broken")

// Dialer opens a fresh connection to the local Discord client.
type Dialer func() (io.ReadWriteCloser, error)

// Client speaks the Discord RPC protocol over a local socket. Calls are
// serialised so a command and its response are never interleaved.
type Client struct {
	ClientID string
	Timeout  time.Duration

	dial Dialer
	conn io.ReadWriteCloser
	mu   sync.Mutex
}

type handshake struct {
	V        int    `json:"v"`
	ClientID string `json:"client_id"`
}

type command struct {
	Cmd   string `json:"cmd"`
	Args  any    `json:"args"`
	Nonce string `json:"nonce"`
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *Activity `json:"activity"`
}

type response struct {
	Cmd   string          `json:"cmd"`
	Evt   *string         `json:"evt"`
	Nonce *string         `json:"nonce"`
	Data  json.RawMessage `json:"data"`
}

type errorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Activity is the wire shape of a rich presence.
type Activity struct {
	Type       int         `json:"type"`
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
}

// Timestamps are unix seconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

// NewActivity maps a presence payload onto the wire format. Assets are only
// sent when there is an image to show.
func NewActivity(p *presence.Payload) *Activity {
	a := &Activity{
		Type:    int(p.Type),
		Details: p.Details,
		State:   p.State,
	}
	if p.Start != nil || p.End != nil {
		a.Timestamps = &Timestamps{}
		if p.Start != nil {
			a.Timestamps.Start = p.Start.Unix()
		}
		if p.End != nil {
			a.Timestamps.End = p.End.Unix()
		}
	}
	if p.LargeImage != "" {
		a.Assets = &Assets{LargeImage: p.LargeImage, LargeText: p.LargeText}
	}
	return a
}

func NewClient(clientID string, dial Dialer) *Client {
	if dial == nil {
		dial = dialIPC
	}
	return &Client{ClientID: clientID, Timeout: DefaultTimeout, dial: dial}
}

// Connect dials the local Discord client and completes the handshake.
func Connect(clientID string) (*Client, error) {
	c := NewClient(clientID, nil)
	if err := c.Open(); err != nil {
		return nil, err
	}
	return c, nil
}

// Open dials and handshakes. Any existing connection is dropped first.
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionBroken, err)
	}
	c.conn = conn
	c.armDeadline()

	if err := c.writeFrame(opHandshake, handshake{V: 1, ClientID: c.ClientID}); err != nil {
		c.closeLocked()
		return fmt.Errorf("handshake failed: %w", err)
	}
	res, err := c.readResponse()
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("handshake failed: %w", err)
	}
	if res.Evt == nil || *res.Evt != "READY" {
		c.closeLocked()
		return fmt.Errorf("handshake failed: expected READY, got %q", res.Cmd)
	}
	slog.Info("Connected to Discord", slog.String("client_id", c.ClientID))
	return nil
}

// Reconnect is Open under a name that reads better at the call site.
func (c *Client) Reconnect() error {
	return c.Open()
}

// SetActivity publishes the payload. A nil payload clears the presence.
func (c *Client) SetActivity(p *presence.Payload) error {
	if p == nil {
		return c.ClearActivity()
	}
	return c.send(NewActivity(p))
}

func (c *Client) ClearActivity() error {
	return c.send(nil)
}

func (c *Client) send(activity *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("%w: not connected", ErrConnectionBroken)
	}
	c.armDeadline()

	nonce := uuid.NewString()
	cmd := command{
		Cmd:   "SET_ACTIVITY",
		Args:  activityArgs{PID: os.Getpid(), Activity: activity},
		Nonce: nonce,
	}
	if err := c.writeFrame(opFrame, cmd); err != nil {
		return err
	}
	res, err := c.readResponse()
	if err != nil {
		return err
	}
	if res.Evt != nil && *res.Evt == "ERROR" {
		var e errorData
		_ = json.Unmarshal(res.Data, &e)
		return fmt.Errorf("discord rejected %s (code %d): %s", res.Cmd, e.Code, e.Message)
	}
	if res.Nonce != nil && *res.Nonce != nonce {
		slog.Debug("Discord response nonce mismatch",
			slog.String("want", nonce),
			slog.String("got", *res.Nonce))
	}
	return nil
}

// Close says goodbye and drops the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.armDeadline()
	_ = c.writeFrame(opClose, struct{}{})
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// armDeadline bounds the next exchange on sockets that support deadlines.
// Unix sockets and npipe connections both do.
func (c *Client) armDeadline() {
	conn, ok := c.conn.(interface{ SetDeadline(time.Time) error })
	if !ok || c.Timeout <= 0 {
		return
	}
	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		slog.Debug("Failed to set Discord socket deadline", slog.String("error", err.Error()))
	}
}

func (c *Client) writeFrame(op opcode, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.writeBytes(op, data)
}

func (c *Client) writeBytes(op opcode, data []byte) error {
	frame := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(op))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(data)))
	copy(frame[8:], data)
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionBroken, err)
	}
	return nil
}

func (c *Client) readFrame() (opcode, []byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrConnectionBroken, err)
	}
	op := opcode(binary.LittleEndian.Uint32(header[0:4]))
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes", ErrConnectionBroken, length)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrConnectionBroken, err)
	}
	return op, body, nil
}

// readResponse returns the next command frame, answering pings on the way.
func (c *Client) readResponse() (response, error) {
	for {
		op, body, err := c.readFrame()
		if err != nil {
			return response{}, err
		}
		switch op {
		case opPing:
			if err := c.writeBytes(opPong, body); err != nil {
				return response{}, err
			}
		case opPong:
		case opClose:
			var e errorData
			_ = json.Unmarshal(body, &e)
			return response{}, fmt.Errorf("%w: closed by discord (code %d): %s", ErrConnectionBroken, e.Code, e.Message)
		case opFrame:
			var res response
			if err := json.Unmarshal(body, &res); err != nil {
				return response{}, fmt.Errorf("unreadable response from discord: %w", err)
			}
			return res, nil
		default:
			return response{}, fmt.Errorf("%w: unexpected opcode %d", ErrConnectionBroken, op)
		}
	}
}
