package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/jimdaga/portfolio-backend/internal/accounts"
	"github.com/jimdaga/portfolio-backend/internal/otp"
)

var jsonFieldNames sync.Once

// useJSONFieldNames makes validation errors name fields as clients send them.
func useJSONFieldNames() {
	jsonFieldNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// Handlers exposes the accounts workflow as JSON endpoints.
type Handlers struct {
	svc    *accounts.Service
	logger *slog.Logger
}

// NewHandlers returns the endpoint handlers for svc.
func NewHandlers(svc *accounts.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	useJSONFieldNames()
	return &Handlers{svc: svc, logger: logger}
}

// Register mounts the endpoints. authMW guards /process-message.
func (h *Handlers) Register(r gin.IRouter, authMW gin.HandlerFunc) {
	r.POST("/signup", h.Signup)
	r.POST("/otp-verification", h.VerifyOTP)
	r.POST("/social-verification", h.SocialVerification)
	r.POST("/process-message", authMW, h.ProcessMessage)
}

type signupRequest struct {
	Provider string `json:"provider" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

// Signup handles POST /signup.
func (h *Handlers) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.Signup(c.Request.Context(), accounts.SignupRequest{
		Provider: req.Provider,
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	status, msg := http.StatusOK, "OTP sent to your email"
	if res.Created {
		status, msg = http.StatusCreated, "Account created, OTP sent to your email"
	}
	c.JSON(status, gin.H{
		"message":  msg,
		"email":    res.User.Email,
		"verified": false,
		"active":   false,
	})
}

type verifyRequest struct {
	Email   string `json:"email" binding:"required"`
	OTPCode string `json:"otp_code" binding:"required"`
	Purpose string `json:"purpose"`
	Message string `json:"message"`
}

// VerifyOTP handles POST /otp-verification.
func (h *Handlers) VerifyOTP(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.Verify(c.Request.Context(), accounts.VerifyRequest{
		Email:   req.Email,
		OTPCode: req.OTPCode,
		Purpose: req.Purpose,
		Message: req.Message,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "OTP verified",
		"verified": res.User.IsVerified,
		"active":   res.User.IsActive,
		"token":    res.Token,
	})
}

type socialRequest struct {
	Provider        string                 `json:"provider" binding:"required"`
	AccessToken     string                 `json:"access_token" binding:"required"`
	ProviderDetails map[string]interface{} `json:"provider_details"`
}

// SocialVerification handles POST /social-verification.
func (h *Handlers) SocialVerification(c *gin.Context) {
	var req socialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.SocialAuth(c.Request.Context(), accounts.SocialAuthRequest{
		Provider:        req.Provider,
		AccessToken:     req.AccessToken,
		ProviderDetails: req.ProviderDetails,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	writeSocialResult(c, res)
}

func writeSocialResult(c *gin.Context, res *accounts.SocialAuthResult) {
	c.JSON(http.StatusOK, gin.H{
		"message":      "Social login successful",
		"verified":     res.User.IsVerified,
		"active":       res.User.IsActive,
		"access_token": res.Token,
	})
}

type messageRequest struct {
	Provider        string                 `json:"provider" binding:"required"`
	Email           string                 `json:"email" binding:"required"`
	Name            string                 `json:"name"`
	Phone           string                 `json:"phone"`
	ProviderDetails map[string]interface{} `json:"provider_details"`
	Purpose         string                 `json:"purpose" binding:"required"`
	Message         string                 `json:"message" binding:"required"`
}

// ProcessMessage handles POST /process-message. The subject comes from the
// bearer credential checked by RequireAuth.
func (h *Handlers) ProcessMessage(c *gin.Context) {
	subject, ok := UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.svc.ProcessMessage(c.Request.Context(), subject, accounts.MessageRequest{
		Provider:        req.Provider,
		Email:           req.Email,
		Name:            req.Name,
		Phone:           req.Phone,
		ProviderDetails: req.ProviderDetails,
		Purpose:         req.Purpose,
		Message:         req.Message,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Message received",
		"verified": res.User.IsVerified,
		"active":   res.User.IsActive,
	})
}

// badRequest answers a body that failed to bind. The raw error goes to the
// request log only.
func (h *Handlers) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"error": bindingMessage(err)})
}

func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "required" {
			return fe.Field() + " is required"
		}
		return fe.Field() + " is invalid"
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field + " has the wrong type"
	}
	if errors.Is(err, io.EOF) {
		return "request body is required"
	}
	return "request body must be valid JSON"
}

// writeError maps an accounts error onto the response.
func (h *Handlers) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	var e *accounts.Error
	if !errors.As(err, &e) {
		h.logger.Error("Unclassified error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := statusFor(e)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}

	body := gin.H{"error": e.Msg}
	if e.Retryable() {
		body["retryable"] = true
	}
	c.JSON(status, body)
}

func statusFor(e *accounts.Error) int {
	switch e.Kind {
	case accounts.KindValidation, accounts.KindExpired, accounts.KindUnsupportedProvider:
		return http.StatusBadRequest
	case accounts.KindNotFound:
		// A wrong code is a bad request; an unknown user is not found.
		if errors.Is(e, otp.ErrNotFound) {
			return http.StatusBadRequest
		}
		return http.StatusNotFound
	case accounts.KindConflict:
		return http.StatusConflict
	case accounts.KindUpstreamAuth, accounts.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
