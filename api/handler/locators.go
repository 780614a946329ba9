package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/scrollsnap/fetch"
	"github.com/use-agent/scrollsnap/locator"
	"github.com/use-agent/scrollsnap/models"
)

// Locators returns a handler for POST /api/v1/locators.
//
// It derives a locator for every element of a static document, either sent
// inline as html or fetched from url. f may be nil, which disables url.
func Locators(f *fetch.Fetcher, deriver *locator.Deriver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LocateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body: "+err.Error())
			return
		}
		req.Defaults()

		if (req.HTML == "") == (req.URL == "") {
			badRequest(c, "exactly one of html or url is required")
			return
		}

		src, finalURL := req.HTML, ""
		if req.URL != "" {
			if f == nil {
				badRequest(c, "url fetching is disabled")
				return
			}
			page, err := f.Fetch(c.Request.Context(), req.URL, nil)
			if err != nil {
				respondError(c, err)
				return
			}
			src, finalURL = page.HTML, page.FinalURL
		}

		doc, err := locator.ParseHTML(strings.NewReader(src))
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		els, err := doc.Elements(req.Selector)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		resp := models.LocateResponse{
			Success:  true,
			FinalURL: finalURL,
			Title:    doc.Title(),
			Total:    len(els),
			Elements: make([]models.LocatedElement, 0, min(len(els), req.Limit)),
		}
		for i, el := range els {
			if i >= req.Limit {
				break
			}
			resp.Elements = append(resp.Elements, models.LocatedElement{
				Tag:     el.Tag(),
				Locator: deriver.Derive(el, doc),
				Text:    doc.Text(el),
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}
