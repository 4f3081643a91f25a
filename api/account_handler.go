package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xraph/rvoc"
	"github.com/xraph/rvoc/session"
)

const sessionKey = "rvoc.session"

func (a *API) signup(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), RequestID: RequestIDFrom(c)})
		return
	}
	if err := a.accounts.Signup(c.Request.Context(), req.Username, req.Password); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, StatusResponse{Status: "created"})
}

// login checks the credentials and binds a session to the user. A session
// the client already holds is rotated so its id changes on privilege change.
func (a *API) login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), RequestID: RequestIDFrom(c)})
		return
	}
	ctx := c.Request.Context()
	if err := a.accounts.Login(ctx, req.Username, req.Password); err != nil {
		a.fail(c, err)
		return
	}

	data := session.Data{Username: req.Username}
	var (
		rec *session.Record
		err error
	)
	if prev, ok := a.sessionCookie(c); ok {
		rec, err = a.sessions.Rotate(ctx, prev, data)
		if errors.Is(err, rvoc.ErrNotAuthenticated) {
			rec, err = a.sessions.Create(ctx, data)
		}
	} else {
		rec, err = a.sessions.Create(ctx, data)
	}
	if err != nil {
		a.fail(c, err)
		return
	}

	a.setSessionCookie(c, rec)
	c.JSON(http.StatusOK, SessionResponse{Username: req.Username, Expiry: rec.Expiry})
}

func (a *API) logout(c *gin.Context) {
	if sid, ok := a.sessionCookie(c); ok {
		if err := a.sessions.Delete(c.Request.Context(), sid); err != nil {
			a.fail(c, err)
			return
		}
	}
	a.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

// requireSession aborts with 401 unless the request carries a live,
// authenticated session.
func (a *API) requireSession(c *gin.Context) {
	sid, ok := a.sessionCookie(c)
	if !ok {
		a.fail(c, rvoc.ErrNotAuthenticated)
		return
	}
	rec, err := a.sessions.Load(c.Request.Context(), sid)
	if err != nil {
		a.fail(c, err)
		return
	}
	if rec == nil || rec.Data.Anonymous() {
		a.fail(c, rvoc.ErrNotAuthenticated)
		return
	}
	c.Set(sessionKey, rec)
	c.Next()
}

func currentSession(c *gin.Context) *session.Record {
	v, _ := c.Get(sessionKey)
	rec, _ := v.(*session.Record)
	return rec
}

func (a *API) me(c *gin.Context) {
	u, err := a.accounts.Get(c.Request.Context(), currentSession(c).Data.Username)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AccountResponse{Username: u.Name, CreatedAt: u.CreatedAt})
}

// deleteMe removes the account; its sessions go with it.
func (a *API) deleteMe(c *gin.Context) {
	if err := a.accounts.Delete(c.Request.Context(), currentSession(c).Data.Username); err != nil {
		a.fail(c, err)
		return
	}
	a.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (a *API) sessionCookie(c *gin.Context) (session.ID, bool) {
	v, err := c.Cookie(a.config.Sessions.CookieName)
	if err != nil || v == "" {
		return nil, false
	}
	sid, err := session.ParseID(v)
	if err != nil {
		return nil, false
	}
	return sid, true
}

func (a *API) setSessionCookie(c *gin.Context, rec *session.Record) {
	maxAge := int(time.Until(rec.Expiry) / time.Second)
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(a.config.Sessions.CookieName, rec.ID.String(), maxAge, "/", "", a.config.HTTP.SecureCookies, true)
}

func (a *API) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(a.config.Sessions.CookieName, "", -1, "/", "", a.config.HTTP.SecureCookies, true)
}
