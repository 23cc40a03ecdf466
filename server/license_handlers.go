package main

import (
	"net/http"
	"strings"

	"github.com/astralux/licensing/pkg/license"
	"github.com/gin-gonic/gin"
)

type validateRequest struct {
	LicenseKey string `json:"license_key"`
	Hwid       string `json:"hwid"`
}

type claimRequest struct {
	LicenseKey    string `json:"license_key"`
	OwnerIdentity string `json:"owner_identity"`
	// DiscordID is the identity field name used by the bot integration.
	DiscordID string `json:"discord_id"`
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.health.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
		logger := requestLogger(c, s.logger)
		logger.Error().Strs("issues", status.Issues).Msg("health check failed")
	}
	c.JSON(code, status)
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, license.KindInvalidInput, "malformed JSON body", s.logger)
		return
	}
	s.validate(c, req)
}

// handleRedeem is validate for clients that always present a hwid.
func (s *Server) handleRedeem(c *gin.Context) {
	var req validateRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, license.KindInvalidInput, "malformed JSON body", s.logger)
		return
	}
	if strings.TrimSpace(req.Hwid) == "" {
		respondError(c, http.StatusBadRequest, license.KindInvalidInput, "missing hwid", s.logger)
		return
	}
	s.validate(c, req)
}

func (s *Server) validate(c *gin.Context, req validateRequest) {
	res, err := s.engine.Validate(c.Request.Context(), license.ValidateRequest{
		LicenseKey: req.LicenseKey,
		Hwid:       req.Hwid,
		SourceIP:   c.ClientIP(),
	})
	if err != nil {
		respondLicenseError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": res.Valid, "message": res.Message})
}

func (s *Server) handleClaim(c *gin.Context) {
	var req claimRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, license.KindInvalidInput, "malformed JSON body", s.logger)
		return
	}
	owner := req.OwnerIdentity
	if owner == "" {
		owner = req.DiscordID
	}
	if err := s.engine.Claim(c.Request.Context(), req.LicenseKey, owner); err != nil {
		respondLicenseError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
