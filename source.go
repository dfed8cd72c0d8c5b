package lbstats

import (
	"context"
	"io/ioutil"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const showStatCommand = "show stat\n"

// StatsSource returns the raw "show stat" CSV of the load balancer.
type StatsSource interface {
	Fetch(ctx context.Context) (string, error)
}

// SocketSource talks to the HAProxy stats socket directly.
type SocketSource struct {
	Path    string
	Timeout time.Duration
}

func NewSocketSource(path string, timeout time.Duration) *SocketSource {
	return &SocketSource{Path: path, Timeout: timeout}
}

func (s *SocketSource) Fetch(ctx context.Context) (string, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "unix", s.Path)
	if err != nil {
		return "", errors.Wrapf(err, "dial stats socket %s", s.Path)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debug().Msgf("got error while closing stats socket: %+v", err)
		}
	}()
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", errors.Wrap(err, "set stats socket deadline")
		}
	}
	if _, err := conn.Write([]byte(showStatCommand)); err != nil {
		return "", errors.Wrap(err, "write show stat")
	}
	data, err := ioutil.ReadAll(conn)
	if err != nil {
		return "", errors.Wrap(err, "read show stat")
	}
	return string(data), nil
}

// FileSource reads a previously captured "show stat" dump.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(_ context.Context) (string, error) {
	data, err := ioutil.ReadFile(s.Path)
	if err != nil {
		return "", errors.Wrapf(err, "read stats file %s", s.Path)
	}
	return string(data), nil
}
