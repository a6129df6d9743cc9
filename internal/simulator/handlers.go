package simulator

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/threatflux/scangate/internal/middleware"
	"github.com/threatflux/scangate/pkg/client"
)

type scanEnvelope struct {
	Request *client.ScanRepositoryRequest `json:"request"`
}

func (s *Server) login(c *gin.Context) {
	var req client.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeInvalidRequest, "Request in wrong format", err.Error())
		return
	}

	username := req.Password.Username
	if err := s.users.Authenticate(username, req.Password.Password); err != nil {
		s.logger.WithField("username", username).Warn("Rejected login")
		middleware.AbortWithError(c, http.StatusUnauthorized, middleware.CodeUnauthorized, "Authentication failed", err.Error())
		return
	}

	token, details, err := s.tokens.Issue(username)
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue token")
		middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "Internal Server Error", "")
		return
	}

	c.JSON(http.StatusOK, client.AuthResponse{
		Token: client.TokenInfo{
			Token:    token,
			Timeout:  int(details.ExpiresAt.Sub(details.IssuedAt).Seconds()),
			Username: username,
			Role:     "admin",
		},
	})
}

func (s *Server) probe(c *gin.Context) {
	s.mu.Lock()
	s.probes++
	ready := s.probes > s.config.NotReadyProbes
	s.mu.Unlock()

	if !ready {
		middleware.AbortWithError(c, http.StatusMethodNotAllowed, middleware.CodeNotReady, client.MethodNotAllowedError, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) logout(c *gin.Context) {
	details, err := middleware.GetTokenDetails(c)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, middleware.CodeInternal, "Internal Server Error", err.Error())
		return
	}

	s.tokens.Revoke(details)
	s.logger.WithField("username", details.Username).Debug("Session closed")
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) scanRepository(c *gin.Context) {
	var envelope scanEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil || envelope.Request == nil {
		middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeInvalidRequest, "Request in wrong format", "")
		return
	}

	req := envelope.Request
	if strings.TrimSpace(req.Repository) == "" || strings.TrimSpace(req.Tag) == "" {
		middleware.AbortWithError(c, http.StatusBadRequest, middleware.CodeInvalidRequest, "Request in wrong format", "repository and tag are required")
		return
	}

	key := req.Registry + "|" + req.Repository + ":" + req.Tag

	s.mu.Lock()
	served := s.pending[key]
	inProgress := served < s.config.NotModifiedResponses
	if inProgress {
		s.pending[key] = served + 1
	} else {
		delete(s.pending, key)
		s.scans++
	}
	s.mu.Unlock()

	logger := s.logger.WithFields(logrus.Fields{
		"registry":   req.Registry,
		"repository": req.Repository,
		"tag":        req.Tag,
	})

	if inProgress {
		logger.WithField("attempt", served+1).Debug("Scan in progress")
		c.Status(http.StatusNotModified)
		return
	}

	report := s.report(req.Repository, req.Tag)
	report.Registry = req.Registry
	logger.WithField("vulnerability_count", len(report.Vulnerabilities)).Info("Scan finished")
	c.JSON(http.StatusOK, gin.H{"report": report})
}
