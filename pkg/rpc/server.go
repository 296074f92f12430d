package rpc

import (
	"bufio"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/oceanweave/portod/pkg/credential"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Server listens on a unix stream socket and serves one Dispatch call
// per connection per request, sequentially, matching spec.md §5's
// single-threaded-at-the-RPC-layer scheduling model. Each accepted
// connection is served on its own goroutine so one slow client can't
// stall others queued at accept, but every Dispatch call runs under
// dispatchMu, so requests from different connections never interleave
// mutations of the container holder.
type Server struct {
	Dispatcher *Dispatcher
	SocketPath string

	listener   *net.UnixListener
	dispatchMu sync.Mutex
}

// Listen binds the unix socket, removing any stale socket file left
// behind by a previous run first.
func (s *Server) Listen() error {
	if err := os.Remove(s.SocketPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove stale socket %s", s.SocketPath)
	}
	addr, err := net.ResolveUnixAddr("unix", s.SocketPath)
	if err != nil {
		return errors.Wrap(err, "resolve socket address")
	}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.SocketPath)
	}
	s.listener = l
	return nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			return errors.Wrap(err, "accept")
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	cred, err := peerCredential(conn)
	if err != nil {
		log.WithError(err).Warn("rpc: failed to read peer credential, closing connection")
		return
	}

	r := bufio.NewReader(conn)
	for {
		payload, err := readFrame(r)
		if err != nil {
			return
		}
		req, err := DecodeRequest(payload)
		if err != nil {
			rsp := &Response{}
			setError(rsp, err)
			s.reply(conn, rsp)
			continue
		}

		s.dispatchMu.Lock()
		rsp, sendReply := s.Dispatcher.Dispatch(req, cred)
		s.dispatchMu.Unlock()
		if !sendReply {
			continue
		}
		if err := s.reply(conn, rsp); err != nil {
			log.WithError(err).Warn("rpc: failed to write response")
			return
		}
	}
}

func (s *Server) reply(conn *net.UnixConn, rsp *Response) error {
	payload, err := EncodeResponse(rsp)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	return writeFrame(conn, payload)
}

// peerCredential reads SO_PEERCRED off conn's raw file descriptor.
// Grounded on moby-moby/api/server/authn_unix.go's
// syscall.GetsockoptUcred call — simplified since we hold the
// *net.UnixConn directly via SyscallConn rather than needing moby's
// reflection walk through an http.ResponseWriter.
func peerCredential(conn *net.UnixConn) (credential.Credential, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return credential.Credential{}, errors.Wrap(err, "get raw conn")
	}

	var ucred *syscall.Ucred
	var sockoptErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockoptErr = syscall.GetsockoptUcred(int(fd), syscall.SOL_SOCKET, syscall.SO_PEERCRED)
	})
	if err != nil {
		return credential.Credential{}, errors.Wrap(err, "control raw conn")
	}
	if sockoptErr != nil {
		return credential.Credential{}, errors.Wrap(sockoptErr, "getsockopt SO_PEERCRED")
	}
	return credential.Credential{Uid: ucred.Uid, Gid: ucred.Gid}, nil
}
