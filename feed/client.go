package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ichikitsu-lab/OrderingSystem/hub"
	"github.com/ichikitsu-lab/OrderingSystem/models"
	"github.com/ichikitsu-lab/OrderingSystem/utils"
)

// Connection states yang dilaporkan ke UI.
const (
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
)

// Sink menerima event feed; di produksi ini reconciler.
type Sink interface {
	HandleEvent(ev models.ChangeEvent)
	RequestResync()
}

type Publisher interface {
	Publish(event string, data interface{})
}

// Client memegang langganan websocket ke change feed remote. Event satu
// entity datang berurutan sesuai commit order server dan diteruskan ke
// sink tanpa buffering tambahan.
//
// Saat koneksi putus, delivery berhenti (state RECONNECTING) dan setiap
// kali tersambung kembali sink diminta resync penuh dulu; event yang
// hilang selama putus tidak bisa diambil ulang dari feed murni.
type Client struct {
	url   string
	token string
	sink  Sink
	pub   Publisher

	dialer     *websocket.Dialer
	maxBackoff time.Duration

	mu    sync.Mutex
	conn  *websocket.Conn
	state string

	stop chan struct{}
	done chan struct{}
}

func NewClient(url, token string, sink Sink, pub Publisher) *Client {
	return &Client{
		url:        url,
		token:      token,
		sink:       sink,
		pub:        pub,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		maxBackoff: 30 * time.Second,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (c *Client) Start() {
	go c.run()
}

func (c *Client) Stop() {
	close(c.stop)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

// State mengembalikan state koneksi terakhir yang dilaporkan.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(state string) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if !changed {
		return
	}
	utils.InfoLogger.Printf("Change feed %s", state)
	if c.pub != nil {
		c.pub.Publish(hub.EventConnectionState, map[string]string{"state": state})
	}
}

func (c *Client) run() {
	defer close(c.done)

	backoff := time.Second
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		header := http.Header{}
		if c.token != "" {
			header.Set("Authorization", "Bearer "+c.token)
		}
		conn, _, err := c.dialer.Dial(c.url, header)
		if err != nil {
			c.setState(StateReconnecting)
			utils.ErrorLogger.Printf("Change feed dial failed: %v (retry in %s)", err, backoff)
			select {
			case <-c.stop:
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = time.Second

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.setState(StateConnected)
		// Event boleh langsung mengalir setelah resync diminta: engine
		// menahan penerapannya sampai snapshot selesai, jadi snapshot yang
		// lebih tua tidak bisa menimpa event yang datang duluan.
		c.sink.RequestResync()
		c.readLoop(conn)

		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-c.stop:
			return
		default:
			c.setState(StateReconnecting)
		}
	}
}

// wireMessage adalah amplop yang dikirim server feed.
type wireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.stop:
			default:
				utils.ErrorLogger.Printf("Change feed read error: %v", err)
			}
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			utils.ErrorLogger.Printf("Dropping malformed feed message: %v", err)
			continue
		}

		switch msg.Event {
		case "change":
			var ev models.ChangeEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				utils.ErrorLogger.Printf("Dropping malformed change event: %v", err)
				continue
			}
			c.sink.HandleEvent(ev)
		case "ping":
			// keep-alive dari server, tidak diteruskan
		default:
			utils.InfoLogger.Debugf("Ignoring feed event %q", msg.Event)
		}
	}
}
