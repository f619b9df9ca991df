package relay

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/mrlokans/linkrelay/internal/credential"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

// ProfileUpstream is the part of the upstream API used by ProfileController.
type ProfileUpstream interface {
	PublicProfile(ctx context.Context, username string) (*upstream.Response, error)
	Me(ctx context.Context, token string) (*upstream.Response, error)
}

// ProfileView is a public profile together with who is looking at it.
type ProfileView struct {
	Profile json.RawMessage `json:"profile"`
	Viewer  *string         `json:"viewer"`
	IsOwner bool            `json:"is_owner"`
}

// ProfileController serves the public profile page data.
type ProfileController struct {
	upstream ProfileUpstream
	store    credential.Store
}

func NewProfileController(up ProfileUpstream, store credential.Store) *ProfileController {
	return &ProfileController{upstream: up, store: store}
}

func (pc *ProfileController) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/:username", pc.Show)
}

// Show fetches the profile and, when a credential is present, the viewer
// identity concurrently. A failed viewer lookup only makes the viewer anonymous.
func (pc *ProfileController) Show(c *gin.Context) {
	username := c.Param("username")
	token, hasCredential := pc.store.Get(c)
	ctx := c.Request.Context()

	var (
		g       errgroup.Group
		profile *upstream.Response
		viewer  *string
	)

	g.Go(func() error {
		resp, err := pc.upstream.PublicProfile(ctx, username)
		if err != nil {
			return err
		}
		profile = resp
		return nil
	})

	if hasCredential {
		g.Go(func() error {
			viewer = pc.lookupViewer(ctx, token)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}
	if !profile.OK() {
		respondError(c, errRejected(profile, DetailUserNotFound))
		return
	}
	if !json.Valid(profile.Body) {
		respondError(c, upstreamMalformed("profile response is not JSON"))
		return
	}

	c.JSON(http.StatusOK, ProfileView{
		Profile: profile.Body,
		Viewer:  viewer,
		IsOwner: viewer != nil && *viewer == username,
	})
}

func (pc *ProfileController) lookupViewer(ctx context.Context, token string) *string {
	resp, err := pc.upstream.Me(ctx, token)
	if err != nil {
		log.Printf("[PROFILE] Viewer lookup failed: %v", err)
		return nil
	}
	if !resp.OK() {
		return nil
	}
	var who identity
	if err := resp.Decode(&who); err != nil || who.Username == "" {
		return nil
	}
	return &who.Username
}
