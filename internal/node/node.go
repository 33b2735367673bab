// Package node runs the libp2p host that backs the marketplace DHT.
package node

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/routing"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/libp2p/go-libp2p/p2p/transport/websocket"
	"github.com/multiformats/go-multiaddr"

	"github.com/neroshop/neroshop-server/internal/codec"
	"github.com/neroshop/neroshop-server/internal/config"
	"github.com/neroshop/neroshop-server/internal/dht"
)

var log = logging.Logger("node")

const (
	// Version is hashed into the discovery rendezvous.
	Version = "neroshop/1.0.0"

	// MDNSServiceName is the mDNS service peers on the LAN look for.
	MDNSServiceName = "neroshop-mdns"

	lowWater = 100
)

// Node is a marketplace peer: a libp2p host with a Kademlia DHT that
// validates marketplace records and a GossipSub router.
type Node struct {
	host   host.Host
	dht    *kaddht.IpfsDHT
	pubsub *pubsub.PubSub
	config *config.Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a node. Networking starts with Start.
func New(ctx context.Context, cfg *config.Config) (*Node, error) {
	nodeCtx, cancel := context.WithCancel(ctx)
	n := &Node{
		config: cfg,
		ctx:    nodeCtx,
		cancel: cancel,
	}
	if err := n.init(); err != nil {
		cancel()
		return nil, err
	}
	return n, nil
}

func (n *Node) init() error {
	privKey, err := loadOrCreateKey(filepath.Join(n.config.Storage.Path, "keys"))
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(n.config.Network.Listen))
	for _, addr := range n.config.Network.Listen {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return fmt.Errorf("invalid listen address %s: %w", addr, err)
		}
		listenAddrs = append(listenAddrs, ma)
	}

	high := n.config.Network.MaxConns
	if high < lowWater {
		high = lowWater
	}
	connMgr, err := connmgr.NewConnManager(lowWater, high)
	if err != nil {
		return fmt.Errorf("failed to create connection manager: %w", err)
	}

	namespace := n.config.Network.Namespace
	var dhtRouting *kaddht.IpfsDHT
	n.host, err = libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(websocket.New),
		libp2p.Security(libp2ptls.ID, libp2ptls.New),
		libp2p.Security(noise.ID, noise.New),
		libp2p.ConnectionManager(connMgr),
		libp2p.Routing(func(h host.Host) (routing.PeerRouting, error) {
			var err error
			dhtRouting, err = kaddht.New(n.ctx, h,
				kaddht.Mode(kaddht.ModeAutoServer),
				kaddht.ProtocolPrefix(protocol.ID(n.config.Network.ProtocolPrefix)),
				kaddht.NamespacedValidator(namespace, dht.NewValidator(codec.MetadataStrings()...)),
			)
			return dhtRouting, err
		}),
		libp2p.NATPortMap(),
	)
	if err != nil {
		return fmt.Errorf("failed to create libp2p host: %w", err)
	}
	n.dht = dhtRouting

	n.pubsub, err = pubsub.NewGossipSub(n.ctx, n.host)
	if err != nil {
		n.host.Close()
		return fmt.Errorf("failed to create pubsub: %w", err)
	}

	log.Infof("Node %s listening on %v", n.host.ID(), n.host.Addrs())
	return nil
}

// loadOrCreateKey reads the Ed25519 identity from dir, creating it on first run.
func loadOrCreateKey(dir string) (crypto.PrivKey, error) {
	keyPath := filepath.Join(dir, "node.key")
	if keyData, err := os.ReadFile(keyPath); err == nil {
		privKey, err := crypto.UnmarshalPrivateKey(keyData)
		if err == nil {
			log.Infof("Loaded existing node identity from %s", keyPath)
			return privKey, nil
		}
		log.Warnf("Failed to unmarshal existing key, generating new one: %v", err)
	}

	privKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	keyData, err := crypto.MarshalPrivateKey(privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(keyPath, keyData, 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	log.Infof("Generated and saved new node identity to %s", keyPath)
	return privKey, nil
}

// Start bootstraps the DHT, dials the configured bootstrap peers and begins
// peer discovery.
func (n *Node) Start(ctx context.Context) error {
	if err := n.dht.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap DHT: %w", err)
	}

	for _, info := range parseBootstrap(n.config.Network.Bootstrap) {
		n.wg.Add(1)
		go func(pi peer.AddrInfo) {
			defer n.wg.Done()
			if err := n.host.Connect(ctx, pi); err != nil {
				log.Warnf("Failed to connect to bootstrap peer %s: %v", pi.ID, err)
			} else {
				log.Infof("Connected to bootstrap peer %s", pi.ID)
			}
		}(info)
	}

	if n.config.Network.EnableMDNS {
		n.wg.Add(1)
		go n.runMDNS()
	}

	n.wg.Add(1)
	go n.runDHTDiscovery()
	return nil
}

// parseBootstrap returns the addresses that carry a peer ID. Others are skipped.
func parseBootstrap(addrs []string) []peer.AddrInfo {
	var out []peer.AddrInfo
	for _, addr := range addrs {
		info, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.Warnf("Skipping bootstrap address %s: %v", addr, err)
			continue
		}
		out = append(out, *info)
	}
	return out
}

// Stop shuts the node down.
func (n *Node) Stop() error {
	n.cancel()
	n.wg.Wait()
	if err := n.dht.Close(); err != nil {
		log.Warnf("Error closing DHT: %v", err)
	}
	if err := n.host.Close(); err != nil {
		return fmt.Errorf("failed to close host: %w", err)
	}
	return nil
}

// PeerID returns the node's peer ID.
func (n *Node) PeerID() peer.ID {
	return n.host.ID()
}

// ListenAddrs returns the node's listen addresses.
func (n *Node) ListenAddrs() []multiaddr.Multiaddr {
	return n.host.Addrs()
}

// Peers returns the number of connected peers.
func (n *Node) Peers() int {
	return len(n.host.Network().Peers())
}

// Host returns the libp2p host.
func (n *Node) Host() host.Host {
	return n.host
}

// DHT returns the Kademlia DHT.
func (n *Node) DHT() *kaddht.IpfsDHT {
	return n.dht
}

// PubSub returns the GossipSub router.
func (n *Node) PubSub() *pubsub.PubSub {
	return n.pubsub
}

// DHTClient returns the marketplace view of the DHT.
func (n *Node) DHTClient() *dht.RoutingClient {
	return dht.NewRoutingClient(n.dht, n.config.Network.Namespace)
}
