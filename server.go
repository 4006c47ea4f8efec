// Package tinywebd implements a small event-driven HTTP/1.1 server: an
// epoll reactor, a bounded worker pool, a min-heap idle-connection timer,
// and a DB-backed login/register flow, serving static files via a shared
// mmap cache.
package tinywebd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/tinywebd/internal/constants"
	"github.com/ehrlich-b/tinywebd/internal/dbpool"
	"github.com/ehrlich-b/tinywebd/internal/filecache"
	"github.com/ehrlich-b/tinywebd/internal/httpio"
	"github.com/ehrlich-b/tinywebd/internal/interfaces"
	"github.com/ehrlich-b/tinywebd/internal/logging"
	"github.com/ehrlich-b/tinywebd/internal/queue"
	"github.com/ehrlich-b/tinywebd/internal/reactor"
	"github.com/ehrlich-b/tinywebd/internal/timer"
)

// Server is one event loop: a listening socket, a reactor multiplexing it
// and its accepted connections, a worker pool running the per-connection
// read/process/write steps, and an idle-connection timer.
type Server struct {
	cfg      Config
	listenFd int
	srcDir   string
	isClose  bool

	listenEvent uint32
	connEvent   uint32

	timer   *timer.Heap
	pool    *queue.Pool
	react   *reactor.Reactor
	db      *dbpool.Pool
	cache   *filecache.Cache
	log     *logging.Logger
	metrics *Metrics
	observer interfaces.Observer

	mu      sync.Mutex
	clients map[int]*httpio.Conn
}

// NewServer constructs a Server: it opens the database pool, resolves the
// event trigger mode, and binds/listens the socket, but does not yet accept
// connections (call Start for that).
func NewServer(cfg Config) (*Server, error) {
	srcDir := cfg.SrcDir
	if srcDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, WrapError("newServer.getwd", err)
		}
		srcDir = filepath.Join(cwd, "resources") + string(os.PathSeparator)
	}

	var log *logging.Logger
	if cfg.OpenLog {
		log = logging.NewLogger(&logging.Config{
			Level:     cfg.LogLevel,
			Dir:       cfg.LogDir,
			Suffix:    ".log",
			Async:     true,
			QueueSize: cfg.LogQueueSize,
		})
	} else {
		log = logging.NewLogger(&logging.Config{Level: cfg.LogLevel, Output: discard{}})
	}

	db, err := dbpool.Open(cfg.DBDriver, cfg.DBDSN, cfg.DBPoolSize)
	if err != nil {
		return nil, WrapError("newServer.dbpool", err)
	}

	react, err := reactor.New(constants.DefaultEpollMaxEvents)
	if err != nil {
		db.Close()
		return nil, WrapError("newServer.reactor", err)
	}

	s := &Server{
		cfg:      cfg,
		srcDir:   srcDir,
		timer:    timer.New(),
		pool:     queue.NewPool(cfg.ThreadNum, constants.DefaultQueueCapacity),
		react:    react,
		db:       db,
		cache:    filecache.New(),
		log:      log,
		metrics:  NewMetrics(),
		observer: NoOpObserver{},
		clients:  make(map[int]*httpio.Conn),
	}
	s.initEventMode(cfg.TrigMode)

	if err := s.initSocket(); err != nil {
		s.db.Close()
		s.react.Close()
		return nil, err
	}

	log.Infof("============== Server Init ==============")
	log.Infof("Listen Mode: %s, OpenConn Mode: %s", trigModeName(s.listenEvent), trigModeName(s.connEvent))
	log.Infof("srcDir: %s", s.srcDir)
	log.Infof("SqlConnPool num: %d, ThreadPool num: %d", cfg.DBPoolSize, cfg.ThreadNum)

	return s, nil
}

// SetObserver installs an interfaces.Observer to receive accept/close/
// request notifications in addition to Metrics.
func (s *Server) SetObserver(o interfaces.Observer) { s.observer = o }

// Metrics returns the server's built-in metrics collector.
func (s *Server) Metrics() *Metrics { return s.metrics }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func trigModeName(events uint32) string {
	if events&unix.EPOLLET != 0 {
		return "ET"
	}
	return "LT"
}

// initEventMode resolves trigMode into listen/connection epoll event
// masks, mirroring the four documented combinations plus the default
// (ET+ET) for any out-of-range value.
func (s *Server) initEventMode(trigMode int) {
	s.listenEvent = unix.EPOLLRDHUP
	s.connEvent = unix.EPOLLONESHOT | unix.EPOLLRDHUP

	switch trigMode {
	case 0: // LT + LT
	case 1: // LT + ET
		s.connEvent |= unix.EPOLLET
	case 2: // ET + LT
		s.listenEvent |= unix.EPOLLET
	case 3: // ET + ET
		s.listenEvent |= unix.EPOLLET
		s.connEvent |= unix.EPOLLET
	default:
		s.listenEvent |= unix.EPOLLET
		s.connEvent |= unix.EPOLLET
	}
}

func (s *Server) initSocket() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return s.wrapSyscallError("socket", -1, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return s.wrapSyscallError("setsockopt", fd, err)
	}

	addr := &unix.SockaddrInet4{Port: s.cfg.Port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return s.wrapSyscallError(fmt.Sprintf("bind port %d", s.cfg.Port), fd, err)
	}
	if err := unix.Listen(fd, constants.ListenBacklog); err != nil {
		unix.Close(fd)
		return s.wrapSyscallError(fmt.Sprintf("listen port %d", s.cfg.Port), fd, err)
	}
	if err := s.react.AddFd(fd, s.listenEvent|unix.EPOLLIN); err != nil {
		unix.Close(fd)
		return WrapError("addListenFd", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return s.wrapSyscallError("nonblockListenFd", fd, err)
	}

	s.listenFd = fd
	return nil
}

// wrapSyscallError builds a ServerError from a raw unix syscall failure,
// preserving the errno so IsErrno can classify it upstream.
func (s *Server) wrapSyscallError(op string, fd int, err error) error {
	if errno, ok := err.(syscall.Errno); ok {
		return NewErrorWithErrno(op, fd, errno)
	}
	return NewConnError(op, fd, ErrCodeIOError, err.Error())
}

// Addr returns the address the listening socket is bound to, resolving an
// ephemeral port (Config.Port == 0) to the one the kernel actually chose.
func (s *Server) Addr() (string, error) {
	sa, err := unix.Getsockname(s.listenFd)
	if err != nil {
		return "", err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return "", fmt.Errorf("tinywebd: unexpected sockaddr type %T", sa)
	}
	return fmt.Sprintf("127.0.0.1:%d", in4.Port), nil
}

// Start runs the main event loop until ctx is cancelled or Close is called.
// Both are checked once per loop iteration, after the reactor's Wait
// returns; with idle timers disabled that Wait has no timeout, so the loop
// notices them only on the next readiness event.
func (s *Server) Start(ctx context.Context) error {
	s.log.Infof("=========== Server start! ==========")
	timeoutMs := -1

	for !s.isClose {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if s.cfg.TimeoutMS > 0 {
			timeoutMs = s.timer.GetNextTick()
		}
		n, err := s.react.Wait(timeoutMs)
		if err != nil {
			return fmt.Errorf("tinywebd: epoll wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := s.react.EventFd(i)
			events := s.react.Events(i)

			switch {
			case fd == s.listenFd:
				s.dealListen()
			case events&(unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0:
				s.closeConnFd(fd)
			case events&unix.EPOLLIN != 0:
				s.dealRead(fd)
			case events&unix.EPOLLOUT != 0:
				s.dealWrite(fd)
			default:
				s.log.Warnf("unexpected event on fd %d: %#x", fd, events)
			}
		}
	}
	return nil
}

// Close stops the event loop and releases the listening socket and
// database pool. Accepted connections are left to the caller's process
// exit, matching the original's unconditional-process-teardown shutdown
// (graceful drain is explicitly out of scope).
func (s *Server) Close() error {
	s.isClose = true
	unix.Close(s.listenFd)
	s.pool.Close()
	s.react.Close()
	return s.db.Close()
}

// dealListen drains the accept queue. In edge-triggered listen mode a
// single readiness notification won't repeat, so it must loop until
// accept(2) reports no more pending connections; in level-triggered mode
// one accept is enough because epoll will notify again.
func (s *Server) dealListen() {
	for {
		fd, sa, err := unix.Accept(s.listenFd)
		if err != nil {
			return
		}

		s.mu.Lock()
		count := len(s.clients)
		s.mu.Unlock()

		if count >= constants.MaxFD {
			s.sendError(fd, "Internal Server Busy")
			s.observer.ObserveRejected()
			s.metrics.RecordRejected()
			s.log.Warnf("%s", NewConnError("dealListen", fd, ErrCodeOverloaded, "clients are full"))
		} else {
			s.addClient(fd, peerAddrString(sa))
		}

		if s.listenEvent&unix.EPOLLET == 0 {
			return
		}
	}
}

func peerAddrString(sa unix.Sockaddr) string {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return fmt.Sprintf("%d.%d.%d.%d:%d", in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3], in4.Port)
	}
	return "unknown"
}

// sendError writes a canned message directly with send(2) and closes fd;
// used only for the overload-rejection path, before the connection is ever
// registered with the reactor.
func (s *Server) sendError(fd int, msg string) {
	if err := unix.Send(fd, []byte(msg), 0); err != nil {
		s.log.Warnf("send error to client[%d] failed: %v", fd, err)
	}
	unix.Close(fd)
}

func (s *Server) addClient(fd int, peerAddr string) {
	isET := s.connEvent&unix.EPOLLET != 0
	conn := httpio.NewConn(s.cache)
	conn.Init(fd, peerAddr, isET, s.srcDir)

	s.mu.Lock()
	s.clients[fd] = conn
	s.mu.Unlock()

	if s.cfg.TimeoutMS > 0 {
		s.timer.Add(fd, time.Duration(s.cfg.TimeoutMS)*time.Millisecond, func() { s.closeConnFd(fd) })
	}
	if err := s.react.AddFd(fd, unix.EPOLLIN|s.connEvent); err != nil {
		s.log.Warnf("add client[%d] to reactor failed: %v", fd, err)
		s.closeConnFd(fd)
		return
	}
	unix.SetNonblock(fd, true)
	s.observer.ObserveAccept()
	s.metrics.RecordAccept()
	s.log.Infof("Client[%d] in!", fd)
}

func (s *Server) getClient(fd int) (*httpio.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[fd]
	return c, ok
}

func (s *Server) closeConnFd(fd int) {
	s.mu.Lock()
	conn, ok := s.clients[fd]
	if ok {
		delete(s.clients, fd)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.log.Infof("Client[%d] quit!", fd)
	s.react.DelFd(fd)
	conn.Close()
	s.observer.ObserveClose()
	s.metrics.RecordClose()
}

func (s *Server) extendTime(fd int) {
	if s.cfg.TimeoutMS > 0 {
		s.timer.Adjust(fd, time.Duration(s.cfg.TimeoutMS)*time.Millisecond)
	}
}

// dealRead hands the read step to the worker pool, so the event loop
// itself never blocks on socket I/O.
func (s *Server) dealRead(fd int) {
	conn, ok := s.getClient(fd)
	if !ok {
		return
	}
	s.extendTime(fd)
	s.pool.AddTask(func() { s.onRead(conn) })
}

// dealWrite hands the write step to the worker pool.
func (s *Server) dealWrite(fd int) {
	conn, ok := s.getClient(fd)
	if !ok {
		return
	}
	s.extendTime(fd)
	s.pool.AddTask(func() { s.onWrite(conn) })
}

func (s *Server) onRead(conn *httpio.Conn) {
	n, err := conn.Read()
	if err != nil {
		s.log.Warnf("%s", s.wrapSyscallError("onRead", conn.Fd(), err))
		s.closeConnFd(conn.Fd())
		return
	}
	if n == 0 {
		s.closeConnFd(conn.Fd())
		return
	}
	s.onProcess(conn)
}

// onProcess parses as much of the request as has arrived and arms the
// reactor for whichever direction comes next: EPOLLOUT once a response is
// staged, or back to EPOLLIN if the request is still incomplete.
func (s *Server) onProcess(conn *httpio.Conn) {
	_, err := conn.Process(context.Background(), verifierFor(s.db))
	if err != nil {
		s.react.ModFd(conn.Fd(), s.connEvent|unix.EPOLLIN)
		return
	}
	s.react.ModFd(conn.Fd(), s.connEvent|unix.EPOLLOUT)
}

// onWrite mirrors the original's OnWrite_ branch-for-branch: a fully
// flushed keep-alive response re-arms EPOLLIN, a still-pending write with
// no hard error re-arms EPOLLOUT, and every other outcome — fully flushed
// but not keep-alive, or a genuine write error — closes the connection.
func (s *Server) onWrite(conn *httpio.Conn) {
	done, err := conn.Write()
	if done {
		code, bytesIn, bytesOut, latencyNs := conn.ConsumeObservation()
		s.observer.ObserveRequest(code, bytesIn, bytesOut, latencyNs)
		s.metrics.RecordRequest(code, bytesIn, bytesOut, latencyNs)
	}
	if done && conn.KeepAlive() {
		s.react.ModFd(conn.Fd(), s.connEvent|unix.EPOLLIN)
		return
	}
	if !done && err == nil {
		s.react.ModFd(conn.Fd(), s.connEvent|unix.EPOLLOUT)
		return
	}
	if err != nil {
		s.log.Warnf("%s", s.wrapSyscallError("onWrite", conn.Fd(), err))
	}
	s.closeConnFd(conn.Fd())
}

// verifierAdapter lets *dbpool.Pool satisfy interfaces.Verifier without
// internal/dbpool importing the root package.
type verifierAdapter struct{ db *dbpool.Pool }

func (v verifierAdapter) Verify(ctx context.Context, username, password string, isLogin bool) (bool, error) {
	return v.db.Verify(ctx, username, password, isLogin)
}

func verifierFor(db *dbpool.Pool) interfaces.Verifier { return verifierAdapter{db: db} }
