package activator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tarancss/walletboot/lib/msg"
)

// ListenService asks the explorer and bot services, through the message broker, to follow the address on every
// configured network. Stop sends the matching unlisten requests.
type ListenService struct {
	mb   msg.Broker
	nets []string
	log  *zap.Logger

	l    sync.Mutex
	addr string
}

// NewListenService returns a ListenService publishing to mb for nets.
func NewListenService(mb msg.Broker, nets []string, log *zap.Logger) *ListenService {
	if log == nil {
		log = zap.NewNop()
	}

	return &ListenService{mb: mb, nets: nets, log: log}
}

// Name implements Service.
func (s *ListenService) Name() string { return "listen" }

// Start implements Service. Networks already requested are unlistened again if a later one fails.
func (s *ListenService) Start(_ context.Context, address string) error {
	s.l.Lock()
	defer s.l.Unlock()

	address = strings.ToLower(address) // explorers keep addresses in lowercase

	for i, net := range s.nets {
		if err := s.mb.SendRequest(net, msg.WalletReq{Net: net, Type: msg.ADDRESS, Obj: address, Act: msg.LISTEN}); err != nil {
			err = fmt.Errorf("[%s] cannot send listen request: %w", net, err)
			err = multierr.Append(err, s.send(s.nets[:i], address, msg.UNLISTEN))

			return err
		}

		s.log.Debug("listen request sent", zap.String("net", net), zap.String("address", address))
	}

	s.addr = address

	return nil
}

// Stop implements Service.
func (s *ListenService) Stop(_ context.Context) error {
	s.l.Lock()
	defer s.l.Unlock()

	if s.addr == "" {
		return nil
	}

	err := s.send(s.nets, s.addr, msg.UNLISTEN)
	s.addr = ""

	return err
}

func (s *ListenService) send(nets []string, address string, act int) (err error) {
	for _, net := range nets {
		if errS := s.mb.SendRequest(net, msg.WalletReq{Net: net, Type: msg.ADDRESS, Obj: address, Act: act}); errS != nil {
			err = multierr.Append(err, fmt.Errorf("[%s] %w", net, errS))
		}
	}

	return err
}
