package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/linkrelay/internal/credential"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

// LinksUpstream is the part of the upstream API used by LinksController.
type LinksUpstream interface {
	PublicProfile(ctx context.Context, username string) (*upstream.Response, error)
	ListLinks(ctx context.Context, token string) (*upstream.Response, error)
	CreateLink(ctx context.Context, token string, body []byte) (*upstream.Response, error)
	GetLink(ctx context.Context, token, id string) (*upstream.Response, error)
	UpdateLink(ctx context.Context, token, id string, body []byte) (*upstream.Response, error)
	DeleteLink(ctx context.Context, token, id string) (*upstream.Response, error)
}

// LinksController serves /api/links. Ownership checks belong to upstream;
// the relay only makes sure a credential is attached.
type LinksController struct {
	upstream LinksUpstream
	store    credential.Store
}

func NewLinksController(up LinksUpstream, store credential.Store) *LinksController {
	return &LinksController{upstream: up, store: store}
}

// RegisterRoutes mounts the link endpoints on group, normally /api/links.
func (lc *LinksController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("", lc.List)
	group.POST("", lc.Create)
	group.GET("/:id", lc.Get)
	group.PUT("/:id", lc.Update)
	group.DELETE("/:id", lc.Delete)
}

// List returns a public profile when ?username= is given, otherwise the
// caller's own links.
func (lc *LinksController) List(c *gin.Context) {
	if username := c.Query("username"); username != "" {
		lc.publicProfile(c, username)
		return
	}

	token, ok := lc.credential(c)
	if !ok {
		return
	}
	resp, err := lc.upstream.ListLinks(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}
	relayResponse(c, resp)
}

func (lc *LinksController) publicProfile(c *gin.Context, username string) {
	resp, err := lc.upstream.PublicProfile(c.Request.Context(), username)
	if err != nil {
		respondError(c, err)
		return
	}
	if !resp.OK() {
		respondError(c, errRejected(resp, DetailUserNotFound))
		return
	}
	relayResponse(c, resp)
}

func (lc *LinksController) Create(c *gin.Context) {
	token, ok := lc.credential(c)
	if !ok {
		return
	}
	body, ok := readJSONBody(c)
	if !ok {
		return
	}
	resp, err := lc.upstream.CreateLink(c.Request.Context(), token, body)
	if err != nil {
		respondError(c, err)
		return
	}
	relayResponse(c, resp)
}

func (lc *LinksController) Get(c *gin.Context) {
	token, ok := lc.credential(c)
	if !ok {
		return
	}
	resp, err := lc.upstream.GetLink(c.Request.Context(), token, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !resp.OK() {
		respondError(c, errRejected(resp, DetailLinkNotFound))
		return
	}
	relayResponse(c, resp)
}

func (lc *LinksController) Update(c *gin.Context) {
	token, ok := lc.credential(c)
	if !ok {
		return
	}
	body, ok := readJSONBody(c)
	if !ok {
		return
	}
	resp, err := lc.upstream.UpdateLink(c.Request.Context(), token, c.Param("id"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	relayResponse(c, resp)
}

func (lc *LinksController) Delete(c *gin.Context) {
	token, ok := lc.credential(c)
	if !ok {
		return
	}
	resp, err := lc.upstream.DeleteLink(c.Request.Context(), token, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	relayResponse(c, resp)
}

// credential returns the stored token or responds 401 and returns false.
func (lc *LinksController) credential(c *gin.Context) (string, bool) {
	token, ok := lc.store.Get(c)
	if !ok {
		respondError(c, errUnauthorized())
		return "", false
	}
	return token, true
}

// readJSONBody reads at most maxJSONBodyBytes of the request body. It
// responds 413 past that limit and 400 when the body is not JSON.
func readJSONBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, errTooLarge())
		return nil, false
	}
	if err != nil || !json.Valid(body) {
		respondError(c, errBadRequest(DetailInvalidBody))
		return nil, false
	}
	return body, true
}
