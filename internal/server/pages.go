package server

import (
	"log"
	"net/http"

	"github.com/automataweaver/backend/internal/auth/user"
	"github.com/automataweaver/backend/internal/platform/requestctx"
)

// pageData is what every rendered view receives: the resolved user (nil for
// anonymous) and the one-time notices queued for this render.
type pageData struct {
	CurrentUser *user.User
	Success     []string
	Error       []string
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string) {
	if s.renderer == nil {
		http.NotFound(w, r)
		return
	}
	flashes := requestctx.FlashesFromContext(r.Context())
	data := pageData{
		CurrentUser: requestctx.UserFromContext(r.Context()),
		Success:     flashes.Success,
		Error:       flashes.Error,
	}
	if err := s.renderer.Render(w, name, data); err != nil {
		log.Printf("render %s: %v", name, err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "landing")
}

func (s *Server) handleRedirectPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "redirect")
}
