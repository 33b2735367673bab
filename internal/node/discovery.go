package node

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	mh "github.com/multiformats/go-multihash"
)

const (
	announceInterval  = 30 * time.Second
	discoveryInterval = 60 * time.Second
)

type mdnsNotifee struct {
	host host.Host
	ctx  context.Context
}

// HandlePeerFound implements mdns.Notifee.
func (m *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == m.host.ID() {
		return
	}
	log.Debugf("mDNS discovered peer: %s", pi.ID)
	if err := m.host.Connect(m.ctx, pi); err != nil {
		log.Debugf("Failed to connect to mDNS peer %s: %v", pi.ID, err)
	} else {
		log.Infof("Connected to mDNS peer: %s", pi.ID)
	}
}

func (n *Node) runMDNS() {
	defer n.wg.Done()

	svc := mdns.NewMdnsService(n.host, MDNSServiceName, &mdnsNotifee{host: n.host, ctx: n.ctx})
	if err := svc.Start(); err != nil {
		log.Warnf("Failed to start mDNS service: %v", err)
		return
	}
	defer svc.Close()

	log.Infof("mDNS discovery started with service name: %s", MDNSServiceName)
	<-n.ctx.Done()
}

// RendezvousCID is the content ID every marketplace node provides so peers
// can find each other through the DHT.
func RendezvousCID(version string) (cid.Cid, error) {
	hash := sha256.Sum256([]byte(version))
	digest, err := mh.Encode(hash[:], mh.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}

func (n *Node) runDHTDiscovery() {
	defer n.wg.Done()

	rendezvous, err := RendezvousCID(Version)
	if err != nil {
		log.Errorf("Failed to create rendezvous CID: %v", err)
		return
	}
	hash := sha256.Sum256([]byte(Version))
	log.Infof("DHT discovery namespace: %s...", hex.EncodeToString(hash[:8]))

	announce := time.NewTicker(announceInterval)
	defer announce.Stop()
	discover := time.NewTicker(discoveryInterval)
	defer discover.Stop()

	n.announce(rendezvous)
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-announce.C:
			n.announce(rendezvous)
		case <-discover.C:
			n.discoverPeers(rendezvous)
		}
	}
}

func (n *Node) announce(rendezvous cid.Cid) {
	ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
	defer cancel()
	if err := n.dht.Provide(ctx, rendezvous, true); err != nil {
		log.Debugf("DHT announce failed: %v", err)
	}
}

func (n *Node) discoverPeers(rendezvous cid.Cid) {
	ctx, cancel := context.WithTimeout(n.ctx, 30*time.Second)
	defer cancel()

	for pi := range n.dht.FindProvidersAsync(ctx, rendezvous, 20) {
		if pi.ID == n.host.ID() || n.host.Network().Connectedness(pi.ID) == network.Connected {
			continue
		}
		go func(pi peer.AddrInfo) {
			connectCtx, connectCancel := context.WithTimeout(n.ctx, 10*time.Second)
			defer connectCancel()
			if err := n.host.Connect(connectCtx, pi); err != nil {
				log.Debugf("Failed to connect to discovered peer %s: %v", pi.ID, err)
			} else {
				log.Infof("Connected to discovered peer: %s", pi.ID)
			}
		}(pi)
	}
}
