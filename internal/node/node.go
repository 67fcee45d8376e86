// Package node serves the local wallets to peers: pull, push and score
// requests arriving over the peer protocol.
package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"zoldnode/internal/crypto"
	"zoldnode/internal/debuglog"
	"zoldnode/internal/metrics"
	"zoldnode/internal/proto"
	"zoldnode/internal/score"
	"zoldnode/internal/wallet"
	"zoldnode/internal/wallets"
)

const (
	defaultWalletsDir = "wallets"
	debugInterval     = 10 * time.Second
)

type Node struct {
	ID      [32]byte
	Signer  *crypto.RSASigner
	Wallets *wallets.Dir
	Network string
	Metrics *metrics.Metrics

	score score.Score
}

type Options struct {
	WalletsDir string
	WalletExt  string
	// Network is the name written into new wallet headers and required of
	// pushed wallets. Empty accepts any network.
	Network    string
	Passphrase string
	Score      score.Score
	Metrics    *metrics.Metrics
}

// NewNode opens the node home, generating a keypair on first start.
func NewNode(home string, opts Options) (*Node, error) {
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, err
	}
	signer, err := crypto.LoadOrCreateSigner(home, opts.Passphrase)
	if err != nil {
		return nil, err
	}
	path := opts.WalletsDir
	if path == "" {
		path = filepath.Join(home, defaultWalletsDir)
	}
	dir, err := wallets.Open(path, wallets.Options{Ext: opts.WalletExt})
	if err != nil {
		return nil, err
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	n := &Node{
		ID:      DeriveNodeID([]byte(signer.PublicKey())),
		Signer:  signer,
		Wallets: dir,
		Network: opts.Network,
		Metrics: m,
		score:   opts.Score,
	}
	debuglog.Debugf("node %s wallets=%s", n.Name(), dir.Path())
	return n, nil
}

func DeriveNodeID(pub []byte) [32]byte {
	var id [32]byte
	copy(id[:], crypto.KDF("zold:nodeid:v1", pub))
	return id
}

// Name is the short node id used in logs.
func (n *Node) Name() string {
	return hex.EncodeToString(n.ID[:8])
}

func (n *Node) Score() score.Score {
	return n.score
}

// Receive merges an incoming copy into the local wallet, creating the file
// when the wallet is new here.
func (n *Node) Receive(w wallet.Wallet) (wallet.Wallet, error) {
	if n.Network != "" && w.Network != n.Network {
		return wallet.Wallet{}, fmt.Errorf("%w: network %q, serving %q", proto.ErrBadMessage, w.Network, n.Network)
	}
	return n.Wallets.Merge(w)
}

// Handle is the network.Handler for peer requests. Protocol errors become
// error responses; only encoding failures are returned as errors.
func (n *Node) Handle(ctx context.Context, peer string, payload []byte) ([]byte, error) {
	req, err := proto.DecodeRequest(payload)
	if err != nil {
		n.Metrics.IncDrop("bad_request")
		debuglog.RateLimitedf("bad_request:"+peer, debugInterval, "node: bad request from %s: %v", peer, err)
		return proto.EncodeResponse(proto.ErrorResponse("", proto.CodeBadRequest, err.Error()))
	}
	n.Metrics.IncRequest(req.Type)
	resp := n.dispatch(ctx, req)
	if resp.Type == proto.TypeError {
		debuglog.Debugf("node: %s %s from %s: %s", req.Type, req.ID, peer, resp.Error)
	}
	return proto.EncodeResponse(resp)
}

func (n *Node) dispatch(ctx context.Context, req proto.Request) proto.Response {
	if err := ctx.Err(); err != nil {
		return proto.ErrorResponse(req.RequestID, proto.CodeInternal, err.Error())
	}
	ok := proto.Response{Type: req.Type + "_ok", RequestID: req.RequestID}
	switch req.Type {
	case proto.TypeScore:
		ok.Suffixes = n.score.Suffixes()
		return ok
	case proto.TypePull:
		id, err := req.WalletID()
		if err != nil {
			return proto.ErrorResponse(req.RequestID, proto.CodeBadRequest, err.Error())
		}
		w, err := n.Wallets.Load(id)
		if errors.Is(err, wallets.ErrNotFound) {
			return proto.ErrorResponse(req.RequestID, proto.CodeNotFound, err.Error())
		}
		if err != nil {
			return proto.ErrorResponse(req.RequestID, proto.CodeInternal, err.Error())
		}
		text, err := wallet.Marshal(w)
		if err != nil {
			return proto.ErrorResponse(req.RequestID, proto.CodeInternal, err.Error())
		}
		ok.Wallet = text
		return ok
	case proto.TypePush:
		w, err := wallet.Unmarshal(req.Wallet)
		if err != nil {
			return proto.ErrorResponse(req.RequestID, proto.CodeBadRequest, err.Error())
		}
		if req.ID != "" && req.ID != proto.FormatWalletID(w.ID) {
			return proto.ErrorResponse(req.RequestID, proto.CodeBadRequest,
				fmt.Sprintf("push for %s carries wallet %016x", req.ID, w.ID))
		}
		merged, err := n.Receive(w)
		switch {
		case errors.Is(err, proto.ErrBadMessage), errors.Is(err, wallet.ErrIDMismatch):
			return proto.ErrorResponse(req.RequestID, proto.CodeBadRequest, err.Error())
		case err != nil:
			return proto.ErrorResponse(req.RequestID, proto.CodeInternal, err.Error())
		}
		debuglog.Debugf("node: wallet %016x now has %d txns", merged.ID, merged.Ledger.Len())
		return ok
	}
	return proto.ErrorResponse(req.RequestID, proto.CodeBadRequest, "unknown request type")
}
