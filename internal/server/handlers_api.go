package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/chatwire/internal/domain"
	"github.com/pscheid92/chatwire/internal/errors"
)

const maxUsernameLength = 64

type clientConfig struct {
	APIURL       string `json:"apiUrl"`
	WebsocketURL string `json:"websocketUrl"`
}

// handleClientConfig tells clients where to find the API and websocket
// endpoints, derived from the host they reached us on.
func (s *Server) handleClientConfig(c echo.Context) error {
	httpScheme, wsScheme := "http", "ws"
	if c.Request().TLS != nil || c.Request().Header.Get(echo.HeaderXForwardedProto) == "https" {
		httpScheme, wsScheme = "https", "wss"
	}

	host := c.Request().Host
	return c.JSON(http.StatusOK, clientConfig{
		APIURL:       fmt.Sprintf("%s://%s/api", httpScheme, host),
		WebsocketURL: fmt.Sprintf("%s://%s/ws", wsScheme, host),
	})
}

type tokenRequest struct {
	Username string `json:"username"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// handleIssueToken exchanges a username for a signed bearer token. There is
// no credential check: identity providers are out of scope, the token only
// binds a name to a session.
func (s *Server) handleIssueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return errors.ValidationError("username is required")
	}
	if len(req.Username) > maxUsernameLength {
		return errors.ValidationError("username too long")
	}

	token, err := s.verifier.Issue(req.Username)
	if err != nil {
		return errors.InternalError("failed to issue token", err)
	}

	return c.JSON(http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresIn: int64(s.config.TokenTTL.Seconds()),
	})
}

func (s *Server) handleListUsers(c echo.Context) error {
	users, err := s.presence.OnlineUsers(c.Request().Context())
	if err != nil {
		return errors.InternalError("failed to list users", err)
	}
	return c.JSON(http.StatusOK, users)
}

func (s *Server) handleListChannels(c echo.Context) error {
	channels, err := s.channels.List(c.Request().Context())
	if err != nil {
		return errors.InternalError("failed to list channels", err)
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return c.JSON(http.StatusOK, channels)
}

type createChannelRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateChannel(c echo.Context) error {
	var req createChannelRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		return errors.ValidationError("channel id is required")
	}

	channel := domain.Channel{ID: req.ID}
	if err := s.channels.Create(c.Request().Context(), channel); err != nil {
		return errors.InternalError("failed to create channel", err)
	}
	return c.JSON(http.StatusCreated, channel)
}

func (s *Server) handleChannelHistory(c echo.Context) error {
	channelID := c.Param("id")

	messages, err := s.history.ListByChannel(c.Request().Context(), channelID)
	if err != nil {
		return errors.InternalError("failed to list messages", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, messages)
}
