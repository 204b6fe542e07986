package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/worldsync/internal/domain"
	apperrors "github.com/pscheid92/worldsync/internal/platform/errors"
	"github.com/pscheid92/worldsync/internal/protocol"
)

func (s *Server) registerWorldRoutes() {
	read := newRateLimiter(rateScopeRead, s.config.APIRateLimit, s.config.APIRateBurst, s.recordRateLimited)
	write := newRateLimiter(rateScopeWrite, s.config.APIRateLimit, s.config.APIRateBurst, s.recordRateLimited)
	body := s.bodyLimit()

	s.echo.POST("/entity/:entity", s.handleUpdateEntity, write, body)
	s.echo.PUT("/entity/:entity", s.handleUpdateEntity, write, body)
	s.echo.GET("/entity/:entity", s.handleGetEntity, read)

	s.echo.GET("/world", s.handleWorld, read)
	s.echo.POST("/world", s.handleWorld, read)
	s.echo.PUT("/world/:entity", s.handleSetEntity, write, body)

	s.echo.GET("/clear", s.handleClear, write)
	s.echo.POST("/clear", s.handleClear, write)
}

// handleUpdateEntity merges every key of the body into the entity and returns
// the resolved properties. Subscribers are not notified.
func (s *Server) handleUpdateEntity(c echo.Context) error {
	entity, err := entityParam(c)
	if err != nil {
		return err
	}

	props, err := readProperties(c)
	if err != nil {
		return err
	}

	resolved := s.store.Merge(entity, props)
	return writeJSON(c, resolved)
}

// handleSetEntity replaces the entity wholesale; the store notifies subscribers.
func (s *Server) handleSetEntity(c echo.Context) error {
	entity, err := entityParam(c)
	if err != nil {
		return err
	}

	props, err := readProperties(c)
	if err != nil {
		return err
	}

	s.store.Set(entity, props)
	return writeJSON(c, s.store.Get(entity))
}

func (s *Server) handleGetEntity(c echo.Context) error {
	entity, err := entityParam(c)
	if err != nil {
		return err
	}
	return writeJSON(c, s.store.Get(entity))
}

func (s *Server) handleWorld(c echo.Context) error {
	return writeJSON(c, s.store.Snapshot())
}

// handleClear empties the world without notifying subscribers.
func (s *Server) handleClear(c echo.Context) error {
	s.store.Clear()
	return writeJSON(c, s.store.Snapshot())
}

// entityParam returns the decoded entity name. Echo routes on the raw path
// when it contains escapes such as %2F, so the param needs one more decode.
func entityParam(c echo.Context) (string, error) {
	entity := c.Param("entity")
	if c.Request().URL.RawPath != "" {
		decoded, err := url.PathUnescape(entity)
		if err != nil {
			return "", apperrors.ValidationError("invalid entity name").WithField("entity", entity).WithCause(err)
		}
		entity = decoded
	}
	if entity == "" {
		return "", apperrors.ValidationError(domain.ErrEmptyEntityName.Error())
	}
	return entity, nil
}

// readProperties decodes the request body as a JSON object. Form posts carry
// the JSON document as their first key.
func readProperties(c echo.Context) (domain.Properties, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationForm) {
		data, err = firstFormKey(data)
		if err != nil {
			return nil, apperrors.ValidationError("invalid form body").WithCause(err)
		}
	}

	props, err := protocol.DecodeProperties(data)
	if errors.Is(err, domain.ErrNotAnObject) {
		return nil, apperrors.ValidationError("request body must be a JSON object")
	}
	if err != nil {
		return nil, apperrors.ValidationError("invalid JSON body").WithCause(err)
	}
	return props, nil
}

func firstFormKey(body []byte) ([]byte, error) {
	first, _, _ := bytes.Cut(body, []byte("&"))
	key, _, _ := bytes.Cut(first, []byte("="))
	decoded, err := url.QueryUnescape(string(key))
	if err != nil {
		return nil, fmt.Errorf("decode form key: %w", err)
	}
	return []byte(decoded), nil
}

func writeJSON(c echo.Context, v any) error {
	if err := c.JSON(http.StatusOK, v); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
