package service

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/samber/oops"

	"github.com/isometry/admanager/internal/ldap"
)

// Session binds the services to one directory client.
type Session struct {
	Users   *UserQuery
	Editor  *UserEditor
	Creator *UserCreator
	OUs     *OUCatalog

	client ldap.Client
	baseDN string
	logger hclog.Logger
}

// NewSession wires the services over client. Nothing is sent to the
// directory until Open or a service call.
func NewSession(client ldap.Client, baseDN string, order NameOrder, logger hclog.Logger) *Session {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	svc := logger.Named("service")

	return &Session{
		Users:   NewUserQuery(client, baseDN, svc),
		Editor:  NewUserEditor(client, baseDN, order, svc),
		Creator: NewUserCreator(client, baseDN, order, svc),
		OUs:     NewOUCatalog(client, baseDN, svc),
		client:  client,
		baseDN:  baseDN,
		logger:  logger,
	}
}

// SetTimeout applies timeout as the time limit of every search the services
// send.
func (s *Session) SetTimeout(timeout time.Duration) {
	s.Users.SetTimeout(timeout)
	s.Creator.SetTimeout(timeout)
	s.OUs.SetTimeout(timeout)
}

// BaseDN returns the naming context the session searches.
func (s *Session) BaseDN() string {
	return s.baseDN
}

// Open checks that the directory is reachable and the credentials bind.
func (s *Session) Open(ctx context.Context) error {
	s.logger.Info("Testing directory connection", "base_dn", s.baseDN)

	if err := s.client.Connect(ctx); err != nil {
		s.logger.Error("Directory connection failed", "error", err)
		return classify(oops.In("session").With("base_dn", s.baseDN), err, "connection test failed")
	}

	s.logger.Info("Directory connection succeeded")
	return nil
}

// Close releases the client.
func (s *Session) Close() error {
	return s.client.Close()
}
