package main

import (
	"net/http"

	"github.com/astralux/licensing/pkg/license"
	"github.com/gin-gonic/gin"
)

type generateRequest struct {
	adminRequest
	OwnerIdentity string `json:"owner_identity"`
}

type keyRequest struct {
	adminRequest
	LicenseKey string `json:"license_key"`
}

type resetRequest struct {
	adminRequest
	LicenseKey    string `json:"license_key"`
	OwnerIdentity string `json:"owner_identity"`
	DiscordID     string `json:"discord_id"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if !s.bindAdmin(c, &req, func() string { return req.credential(c) }) {
		return
	}
	key, err := s.engine.Generate(c.Request.Context(), req.credential(c), req.OwnerIdentity)
	if err != nil {
		respondLicenseError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "license_key": key})
}

func (s *Server) handleRevoke(c *gin.Context) {
	var req keyRequest
	if !s.bindAdmin(c, &req, func() string { return req.credential(c) }) {
		return
	}
	if err := s.engine.Revoke(c.Request.Context(), req.credential(c), req.LicenseKey); err != nil {
		respondLicenseError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleResetHwid(c *gin.Context) {
	var req resetRequest
	if !s.bindAdmin(c, &req, func() string { return req.credential(c) }) {
		return
	}
	owner := req.OwnerIdentity
	if owner == "" {
		owner = req.DiscordID
	}
	remaining, err := s.engine.ResetHwid(c.Request.Context(), req.credential(c), license.ResetLookup{
		LicenseKey:    req.LicenseKey,
		OwnerIdentity: owner,
	})
	if err != nil {
		respondLicenseError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "remaining_resets": remaining})
}

func (s *Server) handleCheckShare(c *gin.Context) {
	var req keyRequest
	if !s.bindAdmin(c, &req, func() string { return req.credential(c) }) {
		return
	}
	report, err := s.detector.CheckShare(c.Request.Context(), req.credential(c), req.LicenseKey)
	if err != nil {
		respondLicenseError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleInspect(c *gin.Context) {
	credential := adminRequest{}.credential(c)
	l, err := s.engine.Inspect(c.Request.Context(), credential, c.Param("key"))
	if err != nil {
		respondLicenseError(c, err, s.logger)
		return
	}
	c.JSON(http.StatusOK, l)
}
