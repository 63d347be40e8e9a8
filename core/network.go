package core

import (
	"context"
	"fmt"
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Rate limits applied per peer: gossip (grain puts, acks) is bursty but
// cheap to validate, query traffic triggers a local ANN search and is
// throttled tighter.
const (
	gossipRateLimit  = 50 // events/sec
	gossipBurst      = 100
	queryRateLimit   = 10 // events/sec
	queryBurst       = 20
	reputationDecayT = time.Minute
)

// NewNode creates and bootstraps a SynapseNet P2P node: a libp2p host with a
// GossipSub router, mDNS discovery, and a peer table tracking reputation and
// rate-limit state. Core data types (NodeID, Peer, Message, Config) live in
// types.go.
func NewNode(cfg Config) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("network: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("network: create pubsub: %w", err)
	}

	n := &Node{
		host:   h,
		pubsub: ps,
		topics: make(map[string]*pubsub.Topic),
		subs:   make(map[string]*pubsub.Subscription),
		peers:  make(map[NodeID]*Peer),
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
	}

	natMgr, err := NewNATManager()
	if err == nil {
		if port, err := parsePort(cfg.ListenAddr); err == nil {
			if err := natMgr.Map(port); err != nil {
				logrus.Warnf("network: NAT map failed: %v", err)
			}
		}
		n.nat = natMgr
	} else {
		logrus.Debugf("network: NAT discovery unavailable: %v", err)
	}

	if err := n.DialSeed(cfg.BootstrapPeers); err != nil {
		logrus.Warnf("network: dial seed warning: %v", err)
	}

	if cfg.EnableMDNS {
		tag := cfg.DiscoveryTag
		if tag == "" {
			tag = mDNSServiceName
		}
		mdns.NewMdnsService(h, tag, n)
	}

	return n, nil
}

var _ mdns.Notifee = (*Node)(nil)

func newPeer(id NodeID, addr string) *Peer {
	now := time.Now()
	return &Peer{
		ID:            id,
		Addr:          addr,
		State:         Discovered,
		gossipLimiter: rate.NewLimiter(rate.Limit(gossipRateLimit), gossipBurst),
		queryLimiter:  rate.NewLimiter(rate.Limit(queryRateLimit), queryBurst),
		FirstSeen:     now,
		LastSeen:      now,
	}
}

// HandlePeerFound implements mdns.Notifee: connect to a discovered peer,
// ignoring self-discovery and peers already known.
func (n *Node) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}

	id := NodeID(info.ID.String())
	n.peerLock.RLock()
	_, exists := n.peers[id]
	n.peerLock.RUnlock()
	if exists {
		return
	}

	if err := n.host.Connect(n.ctx, info); err != nil {
		logrus.Warnf("network: connect to discovered peer %s: %v", id, err)
		return
	}

	p := newPeer(id, info.String())
	p.State = Authenticated
	n.peerLock.Lock()
	n.peers[id] = p
	n.peerLock.Unlock()
	logrus.Infof("network: connected to peer %s via mDNS", id)
}

// DialSeed connects to a list of bootstrap peer multiaddresses.
func (n *Node) DialSeed(seeds []string) error {
	var errs []string
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid addr %s: %v", addr, err))
			continue
		}
		if err := n.host.Connect(n.ctx, *pi); err != nil {
			errs = append(errs, fmt.Sprintf("connect %s: %v", addr, err))
			continue
		}
		id := NodeID(pi.ID.String())
		p := newPeer(id, addr)
		p.State = Authenticated
		n.peerLock.Lock()
		n.peers[id] = p
		n.peerLock.Unlock()
		logrus.Infof("network: bootstrapped to %s", addr)
	}
	if len(errs) > 0 {
		return fmt.Errorf("network: dial errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// AllowGossip reports whether id may publish another gossip event right
// now, and denies banned or rate-limited peers.
func (n *Node) AllowGossip(id NodeID) bool {
	n.peerLock.RLock()
	p, ok := n.peers[id]
	n.peerLock.RUnlock()
	if !ok || p.State == Banned {
		return false
	}
	return p.gossipLimiter.Allow()
}

// AllowQuery reports whether id may issue another KNN query right now.
func (n *Node) AllowQuery(id NodeID) bool {
	n.peerLock.RLock()
	p, ok := n.peers[id]
	n.peerLock.RUnlock()
	if !ok || p.State == Banned {
		return false
	}
	return p.queryLimiter.Allow()
}

// AdjustReputation moves id's reputation by delta, clamped to [-100, 100],
// demoting to Throttled below zero and to Banned at or below -5: a single
// signature failure (-5) is enough to ban outright.
func (n *Node) AdjustReputation(id NodeID, delta int) {
	n.peerLock.Lock()
	defer n.peerLock.Unlock()
	p, ok := n.peers[id]
	if !ok {
		return
	}
	p.Reputation += delta
	if p.Reputation > 100 {
		p.Reputation = 100
	}
	if p.Reputation < -100 {
		p.Reputation = -100
	}
	p.LastSeen = time.Now()
	switch {
	case p.Reputation <= -5:
		p.State = Banned
	case p.Reputation < 0:
		p.State = Throttled
	case p.State == Throttled || p.State == Discovered:
		p.State = Healthy
	}
}

// Broadcast publishes data on topic, joining it lazily on first use.
func (n *Node) Broadcast(topic string, data []byte) error {
	n.topicLock.Lock()
	t, ok := n.topics[topic]
	if !ok {
		var err error
		t, err = n.pubsub.Join(topic)
		if err != nil {
			n.topicLock.Unlock()
			return fmt.Errorf("network: join topic %s: %w", topic, err)
		}
		n.topics[topic] = t
	}
	n.topicLock.Unlock()
	if err := t.Publish(n.ctx, data); err != nil {
		return fmt.Errorf("network: publish topic %s: %w", topic, err)
	}
	return nil
}

// PublishEnvelope encodes env as JSON and broadcasts it on topic.
func (n *Node) PublishEnvelope(topic string, env GossipEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("network: encode envelope: %w", err)
	}
	return n.Broadcast(topic, data)
}

// Subscribe listens for raw messages on a topic.
func (n *Node) Subscribe(topic string) (<-chan Message, error) {
	n.subLock.Lock()
	sub, ok := n.subs[topic]
	if !ok {
		var err error
		sub, err = n.pubsub.Subscribe(topic)
		if err != nil {
			n.subLock.Unlock()
			return nil, fmt.Errorf("network: subscribe topic %s: %w", topic, err)
		}
		n.subs[topic] = sub
	}
	n.subLock.Unlock()
	out := make(chan Message)
	go func() {
		for {
			msg, err := sub.Next(n.ctx)
			if err != nil {
				logrus.Debugf("network: subscription %s closed: %v", topic, err)
				close(out)
				return
			}
			out <- Message{From: NodeID(msg.GetFrom().String()), Topic: topic, Data: msg.Data}
		}
	}()
	return out, nil
}

// EnvelopeMessage pairs a decoded GossipEnvelope with the peer id whose
// pubsub message carried it. Call sites that only care about payload
// content (query fan-out) can ignore From; call sites that move reputation
// per sender (grain ingest) need it.
type EnvelopeMessage struct {
	From     NodeID
	Envelope GossipEnvelope
}

// SubscribeEnvelopes decodes GossipEnvelope payloads off a Subscribe
// channel, tagging each with its sender. A malformed envelope costs the
// sender reputation and is dropped before reaching the caller.
func (n *Node) SubscribeEnvelopes(topic string) (<-chan EnvelopeMessage, error) {
	raw, err := n.Subscribe(topic)
	if err != nil {
		return nil, err
	}
	out := make(chan EnvelopeMessage)
	go func() {
		defer close(out)
		for msg := range raw {
			var env GossipEnvelope
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				logrus.Debugf("network: dropping malformed envelope on %s from %s: %v", topic, msg.From, err)
				n.AdjustReputation(msg.From, -5)
				continue
			}
			out <- EnvelopeMessage{From: msg.From, Envelope: env}
		}
	}()
	return out, nil
}

// Context returns the node's lifecycle context, cancelled on Close, for
// callers that run background loops tied to the node's lifetime.
func (n *Node) Context() context.Context { return n.ctx }

// ListenAndServe blocks until the node's context is cancelled.
func (n *Node) ListenAndServe() {
	<-n.ctx.Done()
	logrus.Info("network: node shutting down")
}

// Close tears down the node, closing its host and context.
func (n *Node) Close() error {
	n.cancel()
	if n.nat != nil {
		_ = n.nat.Unmap()
	}
	return n.host.Close()
}

// Peers returns a snapshot of the current peer table.
func (n *Node) Peers() []*Peer {
	n.peerLock.RLock()
	defer n.peerLock.RUnlock()
	list := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		list = append(list, p)
	}
	return list
}

// Dialer manages plain TCP outbound connections, used by ConnPool for
// direct streams outside of libp2p's own transport.
type Dialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration
}

func NewDialer(timeout, keepAlive time.Duration) *Dialer {
	return &Dialer{Timeout: timeout, KeepAlive: keepAlive}
}

// Dial connects to a remote TCP address.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialer: connect to %s: %w", address, err)
	}
	return conn, nil
}
