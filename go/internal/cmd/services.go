package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/teamsync/go/clients/reviewapi"
	"github.com/mcdev12/teamsync/go/internal/auth"
	"github.com/mcdev12/teamsync/go/internal/config"
	"github.com/mcdev12/teamsync/go/internal/models"
	"github.com/mcdev12/teamsync/go/internal/review/media"
	"github.com/mcdev12/teamsync/go/internal/review/reconciler"
	"github.com/mcdev12/teamsync/go/internal/review/transport"
	"github.com/mcdev12/teamsync/go/internal/review/transport/natsbus"
	"github.com/mcdev12/teamsync/go/internal/review/transport/stompws"
)

type Services struct {
	Config      *config.Config
	Clock       clockwork.Clock
	Credentials *auth.Store
	API         *reviewapi.Client
	Transport   *transport.Manager
}

func setupServices(cfg *config.Config) *Services {
	// Credentials → REST client and broker dialer → shared transport
	clock := clockwork.NewRealClock()
	credentials := auth.NewStore(clock)

	api := reviewapi.NewClient(cfg.API.BaseURL, credentials)
	api.SetTimeout(cfg.API.Timeout)

	var dialer transport.Dialer
	switch cfg.Broker.Kind {
	case config.BrokerNATS:
		natsConfig := natsbus.DefaultConfig()
		natsConfig.URL = cfg.Broker.URL
		dialer = natsbus.NewDialer(natsConfig)
	default:
		stompConfig := stompws.DefaultConfig(cfg.Broker.URL)
		stompConfig.HeartBeat = cfg.Broker.HeartBeat
		stompConfig.Clock = clock
		dialer = stompws.NewDialer(stompConfig)
	}

	return &Services{
		Config:      cfg,
		Clock:       clock,
		Credentials: credentials,
		API:         api,
		Transport:   transport.NewManager(cfg.TransportConfig(), dialer, credentials, clock),
	}
}

// signIn stores a credential, either the given token or one obtained by logging in.
func (s *Services) signIn(ctx context.Context, email, password, token string) (models.User, error) {
	if token != "" {
		s.Credentials.Set(token, models.User{})
		user, _ := s.Credentials.User()
		if _, ok := s.Credentials.BearerToken(); !ok {
			return models.User{}, errors.New("token has expired")
		}
		return user, nil
	}

	if email == "" || password == "" {
		return models.User{}, errors.New("--email and --password (or --token) are required")
	}
	res, err := s.API.Login(ctx, reviewapi.LoginRequest{Email: email, Password: password})
	if err != nil {
		return models.User{}, fmt.Errorf("login: %w", err)
	}
	s.Credentials.Set(res.Token, res.User)

	log.Info().Str("user_id", res.User.ID).Msg("logged in")
	return res.User, nil
}

func (s *Services) openView(sessionID string, user models.User, videoLength float64) *reconciler.Reconciler {
	player := media.NewVirtualPlayer(s.Clock, videoLength)

	return reconciler.New(sessionID, user.Participant(), reconciler.Deps{
		Sessions:  s.API,
		Transport: s.Transport,
		Surface:   media.Guard(player),
		Clock:     s.Clock,
	}, s.Config.ReviewConfig())
}
