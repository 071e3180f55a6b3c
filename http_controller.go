package auth

import (
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// SessionLocalKey is the router locals key holding the request *Session.
const SessionLocalKey = "auth_session"

type AuthControllerRoutes struct {
	Login        string
	Logout       string
	Register     string
	Me           string
	Unblock      string
	BlockedUsers string
}

type AuthController struct {
	Debug    bool
	Logger   Logger
	Prefix   string
	Routes   *AuthControllerRoutes
	Auther   *Auther
	Admin    *Admin
	Register *RegisterAccountHandler
	Accounts AccountStore
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func WithControllerPrefix(prefix string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Prefix = prefix
		return c
	}
}

func NewAuthController(auther *Auther, admin *Admin, register *RegisterAccountHandler, accounts AccountStore, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Prefix:   "/auth",
		Auther:   auther,
		Admin:    admin,
		Register: register,
		Accounts: accounts,
		Routes: &AuthControllerRoutes{
			Login:        "/login",
			Logout:       "/logout",
			Register:     "/register",
			Me:           "/me",
			Unblock:      "/unblock/:id",
			BlockedUsers: "/blocked-users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	if c.Admin == nil {
		panic("Missing Admin in auth controller...")
	}

	if c.Register == nil {
		panic("Missing RegisterAccountHandler in auth controller...")
	}

	if c.Accounts == nil {
		panic("Missing AccountStore in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the controller under its prefix.
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	g := app.Group(controller.Prefix)

	g.Post(controller.Routes.Login, controller.LoginPost).
		SetName("auth.login")
	g.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("auth.register")

	protected := controller.RequireSession()
	g.Post(controller.Routes.Logout, controller.LogOut, protected).
		SetName("auth.logout")
	g.Get(controller.Routes.Me, controller.Me, protected).
		SetName("auth.me")

	// middleware runs in the order given: session first, then the role check
	admin := controller.RequireRole(RoleAdmin)
	g.Post(controller.Routes.Unblock, controller.Unblock, protected, admin).
		SetName("auth.unblock")
	g.Get(controller.Routes.BlockedUsers, controller.BlockedUsers, protected, admin).
		SetName("auth.blocked-users")
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"password"`
}

// UnblockRequest is the optional unblock payload
type UnblockRequest struct {
	Reason string `json:"reason"`
}

// AuthResponse is the body of every auth endpoint.
type AuthResponse struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message,omitempty"`
	Code              string     `json:"code,omitempty"`
	Token             string     `json:"token,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	Account           *Account   `json:"account,omitempty"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
	Unblocked         bool       `json:"unblocked,omitempty"`
}

func (a *AuthController) LoginPost(c router.Context) error {
	payload := new(LoginRequest)
	if err := c.Bind(payload); err != nil {
		return a.errorResponse(c, withMeta(ErrInvalidInput, map[string]any{"body": err.Error()}))
	}

	if err := payload.Validate(); err != nil {
		return a.errorResponse(c, withMeta(ErrInvalidInput, map[string]any{"validation": err.Error()}))
	}

	if a.Debug {
		a.Logger.Debug("login request", "payload", print.MaybePrettyJSON(map[string]any{"email": payload.Email}))
	}

	session, err := a.Auther.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.errorResponse(c, err)
	}

	expires := session.ExpiresAt
	return c.JSON(router.StatusOK, AuthResponse{
		Success:   true,
		Message:   "login successful",
		Token:     session.Token,
		ExpiresAt: &expires,
		Account:   session.Account,
		Unblocked: session.Unblocked,
	})
}

func (a *AuthController) RegistrationCreate(c router.Context) error {
	payload := new(RegistrationCreatePayload)
	if err := c.Bind(payload); err != nil {
		return a.errorResponse(c, withMeta(ErrInvalidInput, map[string]any{"body": err.Error()}))
	}

	account, err := a.Register.Register(c.Context(), RegisterAccountMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		Password:  payload.Password,
	})
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.JSON(http.StatusCreated, AuthResponse{
		Success: true,
		Message: "account registered",
		Account: account,
	})
}

func (a *AuthController) LogOut(c router.Context) error {
	session, err := RequestSession(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	if err := a.Auther.Logout(c.Context(), session); err != nil {
		return a.errorResponse(c, err)
	}

	return c.Status(http.StatusNoContent).SendString("")
}

func (a *AuthController) Me(c router.Context) error {
	session, err := RequestSession(c)
	if err != nil {
		return a.errorResponse(c, err)
	}

	account, err := a.Accounts.FindByID(c.Context(), session.Account.ID)
	if err != nil {
		if IsNotFound(err) {
			return a.errorResponse(c, withMeta(ErrSessionInvalid, map[string]any{"reason": "account removed"}))
		}
		return a.errorResponse(c, err)
	}

	return c.JSON(router.StatusOK, AuthResponse{Success: true, Account: account})
}

func (a *AuthController) Unblock(c router.Context) error {
	rawID := c.Param("id", "")
	id, err := uuid.Parse(rawID)
	if err != nil {
		return a.errorResponse(c, withMeta(ErrInvalidInput, map[string]any{"id": rawID}))
	}

	// the body is optional
	payload := new(UnblockRequest)
	if c.GetString(headerContentType, "") != "" {
		if err := c.Bind(payload); err != nil {
			return a.errorResponse(c, withMeta(ErrInvalidInput, map[string]any{"body": err.Error()}))
		}
	}
	if payload.Reason == "" {
		payload.Reason = "unblocked by administrator"
	}

	actor := ActorFromContext(c.Context(), "admin")
	if actor == SystemActor {
		return a.errorResponse(c, ErrSessionInvalid)
	}

	account, err := a.Admin.Unblock(c.Context(), actor, id, payload.Reason)
	if err != nil {
		return a.errorResponse(c, err)
	}

	return c.JSON(router.StatusOK, AuthResponse{
		Success:   true,
		Message:   "account unblocked",
		Account:   account,
		Unblocked: true,
	})
}

func (a *AuthController) BlockedUsers(c router.Context) error {
	accounts, err := a.Admin.ListBlocked(c.Context())
	if err != nil {
		return a.errorResponse(c, err)
	}
	return c.JSON(router.StatusOK, accounts)
}

// RequireSession parses the bearer token and stores the *Session in locals
// and in the request context.
func (a *AuthController) RequireSession() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			token := bearerToken(c.GetString(router.HeaderAuthorization, ""))
			if token == "" {
				return a.errorResponse(c, withMeta(ErrSessionInvalid, map[string]any{"reason": "missing bearer token"}))
			}

			session, err := a.Auther.Sessions().Parse(c.Context(), token)
			if err != nil {
				return a.errorResponse(c, err)
			}

			c.Locals(SessionLocalKey, session)
			c.SetContext(WithSessionContext(c.Context(), session))
			return next(c)
		}
	}
}

// RequireRole rejects sessions that do not hold role.
func (a *AuthController) RequireRole(role AccountRole) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			session, err := RequestSession(c)
			if err != nil {
				return a.errorResponse(c, err)
			}
			if !session.Account.HasRole(role) {
				return c.JSON(router.StatusForbidden, AuthResponse{
					Success: false,
					Message: "insufficient role",
					Code:    TextCodeForbidden,
				})
			}
			return next(c)
		}
	}
}

// RequestSession returns the session stored by RequireSession.
func RequestSession(c router.Context) (*Session, error) {
	session, ok := c.Locals(SessionLocalKey).(*Session)
	if !ok || session == nil || session.Account == nil {
		return nil, ErrSessionInvalid
	}
	return session, nil
}

func (a *AuthController) errorResponse(c router.Context, err error) error {
	status := http.StatusInternalServerError
	body := AuthResponse{Success: false, Message: "internal error"}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code >= 400 {
			status = richErr.Code
		} else {
			status = statusFromCategory(richErr)
		}
		body.Message = richErr.Message
		body.Code = richErr.TextCode
		if n, ok := RemainingAttempts(richErr); ok {
			body.RemainingAttempts = &n
		}
	}

	if status >= http.StatusInternalServerError {
		a.Logger.Error("auth request failed", "method", c.Method(), "error", err)
		if a.Debug && richErr != nil {
			a.Logger.Debug("auth error details", "details", print.MaybePrettyJSON(richErr.Metadata))
		}
	}

	return c.JSON(status, body)
}

func statusFromCategory(richErr *goerrors.Error) int {
	switch richErr.Category {
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryOperation:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

const headerContentType = "Content-Type"

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
