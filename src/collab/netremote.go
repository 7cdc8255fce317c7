// NetRemoteNode is a minimal gob-over-net.Conn RemoteNode fake: it
// dials a peer, ships one gob-encoded request, and decodes one
// gob-encoded response. It stands in for the real cross-node RPC
// transport the naming resolver depends on for "//node/path" lookups,
// the way fs.Bdev_req_t's AckCh stands in for a real disk controller
// interrupt — a channel-shaped ack in place of hardware.
package collab

import (
	"context"
	"encoding/gob"
	"errors"
	"net"

	"defs"
	"uid"
	"ustr"
)

// NetRequest is the wire request NetRemoteNode sends.
type NetRequest struct {
	Node string
	Path string
}

// NetResponse is the wire response NetRemoteNode expects.
type NetResponse struct {
	UIDHi uint32
	UIDLo uint32
	Err   string
}

// NetRemoteNode resolves remote paths over a single dialed
// connection per request.
type NetRemoteNode struct {
	dial func(ctx context.Context) (net.Conn, error)
}

// NewNetRemoteNode builds a NetRemoteNode that dials addr over TCP for
// each resolution.
func NewNetRemoteNode(addr string) *NetRemoteNode {
	return &NetRemoteNode{
		dial: func(ctx context.Context) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// NewNetRemoteNodeConn builds a NetRemoteNode over an already-dialed
// connection factory, for tests using net.Pipe.
func NewNetRemoteNodeConn(dial func(ctx context.Context) (net.Conn, error)) *NetRemoteNode {
	return &NetRemoteNode{dial: dial}
}

// ResolveRemote implements naming.RemoteNode / collab.RemoteNode.
func (n *NetRemoteNode) ResolveRemote(ctx context.Context, node string, path ustr.Ustr) (uid.UID, error) {
	conn, err := n.dial(ctx)
	if err != nil {
		return uid.Nil, defs.EFault
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	enc := gob.NewEncoder(conn)
	if err := enc.Encode(NetRequest{Node: node, Path: path.String()}); err != nil {
		return uid.Nil, defs.EFault
	}
	var resp NetResponse
	if err := gob.NewDecoder(conn).Decode(&resp); err != nil {
		return uid.Nil, defs.EFault
	}
	if resp.Err != "" {
		return uid.Nil, errors.New(resp.Err)
	}
	return uid.UID{Hi: resp.UIDHi, Lo: resp.UIDLo}, nil
}

// ServeNetRemoteNode accepts one connection from ln, decodes its
// NetRequest, resolves it via resolve, and replies with a
// NetResponse. It is the test-side counterpart to NetRemoteNode, not
// a production server loop.
func ServeNetRemoteNode(ln net.Listener, resolve func(node, path string) (uid.UID, error)) error {
	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()

	var req NetRequest
	if err := gob.NewDecoder(conn).Decode(&req); err != nil {
		return err
	}
	u, err := resolve(req.Node, req.Path)
	resp := NetResponse{UIDHi: u.Hi, UIDLo: u.Lo}
	if err != nil {
		resp.Err = err.Error()
	}
	return gob.NewEncoder(conn).Encode(resp)
}
