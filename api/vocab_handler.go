package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) listLanguages(c *gin.Context) {
	langs, err := a.vocab.ListLanguages(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, langs)
}

func (a *API) listWordTypes(c *gin.Context) {
	types, err := a.vocab.ListWordTypes(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}
