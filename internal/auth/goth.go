package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/jimdaga/portfolio-backend/internal/accounts"
	"github.com/jimdaga/portfolio-backend/internal/config"
	"github.com/jimdaga/portfolio-backend/internal/identity"
	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/github"
	"github.com/markbates/goth/providers/google"
)

// InitProviders registers the Goth OAuth providers that have credentials
// configured and returns their names.
func InitProviders(cfg *config.Config, logger *slog.Logger) []string {
	// Gothic keeps OAuth state in its own gorilla/sessions store.
	// The default has Secure=true which breaks localhost (plain HTTP).
	gothStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	gothStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = gothStore

	var providers []goth.Provider
	var names []string
	if cfg.GoogleClientID != "" {
		providers = append(providers, google.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL, "email", "profile"))
		names = append(names, string(models.ProviderGoogle))
	}
	if cfg.FacebookClientID != "" {
		providers = append(providers, facebook.New(cfg.FacebookClientID, cfg.FacebookClientSecret, cfg.FacebookCallbackURL, "email"))
		names = append(names, string(models.ProviderFacebook))
	}
	if cfg.GitHubClientID != "" {
		providers = append(providers, github.New(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL, "read:user", "user:email"))
		names = append(names, string(models.ProviderGitHub))
	}

	if len(providers) == 0 {
		logger.Warn("No OAuth client credentials set; browser login routes are disabled")
		return nil
	}

	goth.UseProviders(providers...)
	logger.Info("Goth providers initialized", "providers", names)
	return names
}

// RegisterOAuth mounts the browser redirect flow for the given providers.
func RegisterOAuth(r gin.IRouter, svc *accounts.Service, providers []string, logger *slog.Logger) {
	enabled := make(map[string]bool, len(providers))
	for _, p := range providers {
		enabled[p] = true
	}
	only := func(c *gin.Context) {
		if !enabled[c.Param("provider")] {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unsupported provider"})
			return
		}
		c.Next()
	}

	r.GET("/auth/:provider/login", only, HandleLogin)
	r.GET("/auth/:provider/callback", only, HandleCallback(svc, logger))
}

// withProviderQuery copies the path provider into the query, where gothic looks for it.
func withProviderQuery(c *gin.Context) {
	q := c.Request.URL.Query()
	q.Set("provider", c.Param("provider"))
	c.Request.URL.RawQuery = q.Encode()
}

// HandleLogin starts the provider's OAuth flow
func HandleLogin(c *gin.Context) {
	withProviderQuery(c)
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleCallback completes the OAuth flow and signs the user in the same way
// as /social-verification.
func HandleCallback(svc *accounts.Service, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		withProviderQuery(c)

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			logger.Warn("OAuth callback failed", "provider", c.Param("provider"), "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		profile := &identity.Profile{ID: gothUser.UserID, Email: gothUser.Email, Name: gothUser.Name}
		if profile.Name == "" {
			profile.Name = gothUser.NickName
		}

		res, err := svc.CompleteSocialLogin(c.Request.Context(), models.Provider(c.Param("provider")), profile, gothUser.AccessToken, nil)
		if err != nil {
			NewHandlers(svc, logger).writeError(c, err)
			return
		}
		writeSocialResult(c, res)
	}
}
