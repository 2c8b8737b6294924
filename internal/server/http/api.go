package httpserver

import (
	"net/http"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/service"
)

type bodyRequest struct {
	Body *string `json:"body"`
}

func (s *Server) writeUser(w http.ResponseWriter, r *http.Request, status int, u *model.User) {
	n, err := s.svc.Users.PostCount(r.Context(), u.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, linksFor(r).userJSON(*u, n))
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromCtx(r.Context())
	if p.IsAnonymous() {
		s.writeError(w, r, errs.ErrUnauthorized)
		return
	}
	s.writeUser(w, r, http.StatusOK, p.User)
}

type profileRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	AboutMe  *string `json:"about_me"`
}

func (req profileRequest) edit() service.ProfileEdit {
	return service.ProfileEdit{Name: req.Name, Location: req.Location, AboutMe: req.AboutMe}
}

func (s *Server) editProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.svc.Users.EditProfile(r.Context(), PrincipalFromCtx(r.Context()), req.edit())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeUser(w, r, http.StatusOK, u)
}

// posts

func (s *Server) writePosts(w http.ResponseWriter, r *http.Request, pg model.Page[model.Post], err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l := linksFor(r)
	writeJSON(w, http.StatusOK, listing(r, l, "posts", pg, l.postJSON))
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	pg, err := s.svc.Posts.List(r.Context(), pageParam(r, false))
	s.writePosts(w, r, pg, err)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req bodyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Body == nil {
		s.badRequest(w, "post does not have a body")
		return
	}
	post, err := s.svc.Posts.Create(r.Context(), PrincipalFromCtx(r.Context()), *req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l := linksFor(r)
	w.Header().Set("Location", l.post(post.ID))
	writeJSON(w, http.StatusCreated, l.postJSON(*post))
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	post, err := s.svc.Posts.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linksFor(r).postJSON(*post))
}

// editPost keeps the current body when the request omits it.
func (s *Server) editPost(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	var req bodyRequest
	if !s.decode(w, r, &req) {
		return
	}
	post, err := s.svc.Posts.Edit(r.Context(), PrincipalFromCtx(r.Context()), id, req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linksFor(r).postJSON(*post))
}

// comments

func (s *Server) writeComments(w http.ResponseWriter, r *http.Request, pg model.Page[model.Comment], err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l := linksFor(r)
	viewer := PrincipalFromCtx(r.Context())
	writeJSON(w, http.StatusOK, listing(r, l, "comments", pg, func(c model.Comment) commentJSON {
		return l.commentJSON(c, viewer)
	}))
}

func (s *Server) listPostComments(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	pg, err := s.svc.Comments.ListByPost(r.Context(), id, pageParam(r, true))
	s.writeComments(w, r, pg, err)
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	var req bodyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Body == nil {
		s.badRequest(w, "comment does not have a body")
		return
	}
	p := PrincipalFromCtx(r.Context())
	c, err := s.svc.Comments.Create(r.Context(), p, id, *req.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l := linksFor(r)
	w.Header().Set("Location", l.comment(c.ID))
	writeJSON(w, http.StatusCreated, l.commentJSON(*c, p))
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	pg, err := s.svc.Comments.List(r.Context(), pageParam(r, false))
	s.writeComments(w, r, pg, err)
}

func (s *Server) getComment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	c, err := s.svc.Comments.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linksFor(r).commentJSON(*c, PrincipalFromCtx(r.Context())))
}

func (s *Server) moderate(w http.ResponseWriter, r *http.Request) {
	pg, err := s.svc.Comments.Moderate(r.Context(), PrincipalFromCtx(r.Context()), pageParam(r, false))
	s.writeComments(w, r, pg, err)
}

func (s *Server) setDisabled(w http.ResponseWriter, r *http.Request, disabled bool) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	p := PrincipalFromCtx(r.Context())
	c, err := s.svc.Comments.SetDisabled(r.Context(), p, id, disabled)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, linksFor(r).commentJSON(*c, p))
}

func (s *Server) enableComment(w http.ResponseWriter, r *http.Request)  { s.setDisabled(w, r, false) }
func (s *Server) disableComment(w http.ResponseWriter, r *http.Request) { s.setDisabled(w, r, true) }

// users

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	u, err := s.svc.Users.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeUser(w, r, http.StatusOK, u)
}

type adminEditRequest struct {
	profileRequest
	Email     *string `json:"email"`
	Username  *string `json:"username"`
	Confirmed *bool   `json:"confirmed"`
	Role      *string `json:"role"`
}

func (s *Server) adminEditUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	var req adminEditRequest
	if !s.decode(w, r, &req) {
		return
	}
	in := service.AdminEdit{
		ProfileEdit: req.edit(),
		Email:       req.Email,
		Username:    req.Username,
		Confirmed:   req.Confirmed,
		Role:        req.Role,
	}
	u, err := s.svc.Users.AdminEdit(r.Context(), PrincipalFromCtx(r.Context()), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeUser(w, r, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	if err := s.svc.Users.Delete(r.Context(), PrincipalFromCtx(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listUserPosts(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	pg, err := s.svc.Posts.ListByAuthor(r.Context(), id, pageParam(r, false))
	s.writePosts(w, r, pg, err)
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	pg, err := s.svc.Posts.Timeline(r.Context(), id, pageParam(r, false))
	s.writePosts(w, r, pg, err)
}

// social graph

func (s *Server) writeFollows(w http.ResponseWriter, r *http.Request, key string, pg model.Page[model.FollowEntry], err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l := linksFor(r)
	writeJSON(w, http.StatusOK, listing(r, l, key, pg, l.followJSON))
}

func (s *Server) followers(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	pg, err := s.svc.Social.Followers(r.Context(), id, pageParam(r, false))
	s.writeFollows(w, r, "followers", pg, err)
}

func (s *Server) followed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	pg, err := s.svc.Social.Followed(r.Context(), id, pageParam(r, false))
	s.writeFollows(w, r, "followed", pg, err)
}

func (s *Server) follow(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	if err := s.svc.Social.Follow(r.Context(), PrincipalFromCtx(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unfollow(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	if err := s.svc.Social.Unfollow(r.Context(), PrincipalFromCtx(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
