package sockev

import (
	"errors"
	"fmt"
	"os"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "category"},
	})
	log.SetOutput(os.Stdout)
}

// Logger returns the package logger so callers can redirect or tune it.
func Logger() *logrus.Logger {
	return log
}

func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// Service is an echo server on a Unix socket, driven by one EventLoop.
type Service struct {
	cfg      Config
	loop     *EventLoop
	listener int
	conns    map[int]*echoConn
	done     chan struct{}
	runErr   error
	log      *logrus.Entry
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := unixSockaddr(cfg.SocketPath); err != nil {
		return nil, err
	}
	return &Service{
		cfg:      cfg,
		listener: -1,
		conns:    make(map[int]*echoConn),
		log:      log.WithField("component", "service"),
	}, nil
}

// Start listens on the configured path and runs the loop in the background.
func (s *Service) Start() (err error) {
	s.loop, err = Create(s.cfg)
	if err != nil {
		return err
	}
	s.listener, err = Listen(s.loop, s.cfg.SocketPath, AcceptFunc(s.onAccept))
	if err != nil {
		s.loop.Close()
		s.loop = nil
		return fmt.Errorf("start listener: %w", err)
	}
	s.done = make(chan struct{})
	go func(loop *EventLoop, done chan struct{}) {
		s.runErr = loop.Run()
		close(done)
	}(s.loop, s.done)
	s.log.Infof("listening on %s (%s policy)", s.cfg.SocketPath, s.cfg.Policy)
	return nil
}

// Done is closed when the event loop returns; Err then holds its result.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Err() error {
	select {
	case <-s.done:
		return s.runErr
	default:
		return nil
	}
}

// Active returns the number of open echo connections. Only meaningful once
// the service is stopped or from a loop callback.
func (s *Service) Active() int {
	return len(s.conns)
}

func (s *Service) Stop() error {
	s.log.Info("stop server ...")
	var err error
	if s.loop != nil {
		if cerr := s.loop.Close(); cerr != nil {
			s.log.Warn(cerr)
			return cerr
		}
		<-s.done
		if s.runErr != nil && !errors.Is(s.runErr, ErrLoopClosed) {
			err = fmt.Errorf("event loop: %w", s.runErr)
		}
		s.loop = nil
	}
	for _, c := range s.conns {
		c.destroy(nil)
	}
	if s.listener >= 0 {
		CloseSocket(nil, s.listener)
		s.listener = -1
		if uerr := unix.Unlink(s.cfg.SocketPath); uerr != nil && !errors.Is(uerr, unix.ENOENT) {
			s.log.Warn("remove socket file: ", uerr)
		}
	}
	s.log.Info("stop server done.")
	return err
}
