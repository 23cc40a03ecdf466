package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/astralux/licensing/pkg/auth"
	"github.com/astralux/licensing/pkg/health"
	"github.com/astralux/licensing/pkg/license"
	"github.com/astralux/licensing/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server adapts HTTP requests to the lifecycle engine and the sharing
// detector.
type Server struct {
	engine   *license.Engine
	detector *license.Detector
	admin    license.Authorizer
	health   *health.Checker
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
}

type routeOptions struct {
	trustedProxies []string
	metricsPath    string
}

func (s *Server) router(opts routeOptions) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(opts.trustedProxies); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery(), withRequestContext(s.logger))
	if s.metrics != nil {
		r.Use(s.countRequests)
	}

	r.GET("/health", s.handleHealth)

	client := r.Group("/api", withResultKey("valid"))
	client.POST("/validate", s.handleValidate)
	client.POST("/redeem", s.handleRedeem)

	api := r.Group("/api", withResultKey("success"))
	api.POST("/claim", s.handleClaim)
	api.POST("/generate", s.handleGenerate)
	api.POST("/revoke", s.handleRevoke)
	api.POST("/hwid-reset", s.handleResetHwid)
	api.POST("/check-share", s.handleCheckShare)
	api.GET("/licenses/:key", s.handleInspect)

	if s.metrics != nil && opts.metricsPath != "" {
		r.GET(opts.metricsPath, gin.WrapH(s.metrics.Handler()))
	}
	return r, nil
}

func (s *Server) countRequests(c *gin.Context) {
	c.Next()
	s.metrics.ObserveHTTP(c.FullPath(), c.Writer.Status())
}

// bindJSON decodes the request body into req. An empty body leaves req at
// its zero value.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// adminRequest is embedded by admin bodies. The bearer header wins over the
// body field.
type adminRequest struct {
	AdminSecret string `json:"admin_secret"`
}

func (r adminRequest) credential(c *gin.Context) string {
	if token := auth.BearerToken(c.GetHeader("Authorization")); token != "" {
		return token
	}
	return r.AdminSecret
}

// bindAdmin decodes req and checks the credential before reporting a
// malformed body, so unauthenticated callers learn nothing about input
// validation.
func (s *Server) bindAdmin(c *gin.Context, req any, credential func() string) bool {
	bindErr := bindJSON(c, req)
	if s.admin == nil || !s.admin.Authorize(credential()) {
		respondLicenseError(c, license.ErrUnauthorized, s.logger)
		return false
	}
	if bindErr != nil {
		respondError(c, http.StatusBadRequest, license.KindInvalidInput, "malformed JSON body", s.logger)
		return false
	}
	return true
}
