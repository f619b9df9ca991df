package http

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mrlokans/linkrelay/internal/relay"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

// RequestIDHeader carries the correlation id of a request, both to the
// browser and to upstream.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 128

// RequestIDMiddleware keeps a sane incoming X-Request-ID or assigns a new
// one, echoes it, and attaches it to the request context for upstream calls.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(upstream.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}

// PageShell serves the single-page shell for every unmatched GET that is not
// an API call. The route guard has already run by the time it is reached.
type PageShell struct {
	indexPath string
}

// NewPageShell returns a shell for pagesPath/index.html, or one that only
// answers 404 when that file does not exist.
func NewPageShell(pagesPath string) *PageShell {
	if pagesPath == "" {
		return &PageShell{}
	}
	index := filepath.Join(pagesPath, "index.html")
	if info, err := os.Stat(index); err != nil || info.IsDir() {
		return &PageShell{}
	}
	return &PageShell{indexPath: index}
}

func (p *PageShell) Handle(c *gin.Context) {
	method := c.Request.Method
	isPage := method == http.MethodGet || method == http.MethodHead
	if !isPage || p.indexPath == "" || strings.HasPrefix(c.Request.URL.Path, "/api/") {
		respondNotFound(c)
		return
	}
	c.File(p.indexPath)
}

func respondNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, relay.ErrorResponse{Detail: "Not found"})
}
