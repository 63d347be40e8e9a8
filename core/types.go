package core

// types.go centralises shared struct declarations referenced across the p2p,
// store and accounting layers, kept in one place the way the rest of this
// package groups cross-cutting data shapes.

import (
	"context"
	"net"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	host "github.com/libp2p/go-libp2p/core/host"
	"golang.org/x/time/rate"
)

//---------------------------------------------------------------------
// P2P identity & wire types
//---------------------------------------------------------------------

type NodeID string

// PeerState is the lifecycle state of a known peer.
type PeerState uint8

const (
	Discovered PeerState = iota
	Handshaking
	Authenticated
	Healthy
	Throttled
	Banned
)

func (s PeerState) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Handshaking:
		return "handshaking"
	case Authenticated:
		return "authenticated"
	case Healthy:
		return "healthy"
	case Throttled:
		return "throttled"
	case Banned:
		return "banned"
	default:
		return "unknown"
	}
}

// Peer tracks one remote node's connection, reputation and rate-limit state.
type Peer struct {
	ID      NodeID
	Addr    string
	Latency time.Duration
	Conn    net.Conn

	State      PeerState
	Reputation int // clamped to [-100, 100]

	gossipLimiter *rate.Limiter
	queryLimiter  *rate.Limiter

	FirstSeen time.Time
	LastSeen  time.Time
}

// Message is a decoded pubsub message delivered to a topic subscriber.
type Message struct {
	From  NodeID
	Topic string
	Data  []byte
}

// InboundMsg is a decoded protocol-level message delivered to a direct
// stream or topic subscriber, carrying routing metadata alongside payload.
type InboundMsg struct {
	PeerID  string `json:"peer_id"`
	Code    byte   `json:"code"`
	Payload []byte `json:"payload"`
	Topic   string `json:"topic,omitempty"`
	Ts      int64  `json:"ts"`
}

// Config configures a Node's libp2p transport and discovery behaviour.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string
	EnableMDNS     bool
}

// Node wraps a libp2p host plus its GossipSub router and known-peer table.
type Node struct {
	host      host.Host
	pubsub    *pubsub.PubSub
	topics    map[string]*pubsub.Topic
	subs      map[string]*pubsub.Subscription
	topicLock sync.RWMutex
	subLock   sync.RWMutex
	peerLock  sync.RWMutex
	peers     map[NodeID]*Peer
	nat       *NATManager
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       Config
}

//---------------------------------------------------------------------
// Peer management abstraction
//---------------------------------------------------------------------

type PeerInfo struct {
	ID         NodeID    `json:"id"`
	RTT        float64   `json:"rtt_ms"`
	Reputation int       `json:"reputation"`
	State      PeerState `json:"state"`
	Updated    int64     `json:"updated_unix"`
}

type PeerManager interface {
	Peers() []PeerInfo
	Connect(addr string) error
	Disconnect(id NodeID) error
	Sample(n int) []string
	SendAsync(peerID, proto string, code byte, payload []byte) error
	Subscribe(proto string) <-chan InboundMsg
	Unsubscribe(proto string)
}

//---------------------------------------------------------------------
// Gossip topics
//---------------------------------------------------------------------

const (
	TopicGrainsPut  = "grains.put"
	TopicGrainsAck  = "grains.ack"
	TopicQueryKNN   = "query.knn"
	TopicQueryResp  = "query.resp"
	mDNSServiceName = "synapsenet-peer-discovery"
)
