// Package command is the surface the host application calls: start, stop and
// status. It holds no logic beyond translating supervisor errors into *Error.
package command

import (
	"context"
	"errors"

	"github.com/loykin/srvkeeper/internal/supervisor"
)

// Error is the external error representation.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *Error) Error() string { return e.Message }

// Backend is the subset of *supervisor.Supervisor the surface delegates to.
type Backend interface {
	Start(ctx context.Context) (supervisor.ServerInfo, error)
	Stop(ctx context.Context) error
	Status() (supervisor.ServerInfo, error)
}

type Surface struct {
	sup Backend
}

func New(sup Backend) *Surface { return &Surface{sup: sup} }

func (s *Surface) StartServer(ctx context.Context) (supervisor.ServerInfo, error) {
	info, err := s.sup.Start(ctx)
	return info, Translate(err)
}

func (s *Surface) StopServer(ctx context.Context) error {
	return Translate(s.sup.Stop(ctx))
}

func (s *Surface) GetServerInfo(_ context.Context) (supervisor.ServerInfo, error) {
	info, err := s.sup.Status()
	return info, Translate(err)
}

// Translate converts err into *Error. nil stays nil and *Error passes through.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Code: supervisor.Code(err), Message: err.Error()}
}
