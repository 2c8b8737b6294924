// Package memory is an in-process implementation of the repository interfaces.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/gofrs/uuid/v5"
)

type edge struct{ follower, followed uuid.UUID }

type state struct {
	mu       sync.RWMutex
	roles    map[uuid.UUID]model.Role
	users    map[uuid.UUID]model.User // Role holds only the id
	follows  map[edge]time.Time
	posts    map[uuid.UUID]model.Post
	comments map[uuid.UUID]model.Comment
}

// New returns a Store backed by process memory.
func New() repository.Store {
	s := &state{
		roles:    map[uuid.UUID]model.Role{},
		users:    map[uuid.UUID]model.User{},
		follows:  map[edge]time.Time{},
		posts:    map[uuid.UUID]model.Post{},
		comments: map[uuid.UUID]model.Comment{},
	}
	return repository.Store{
		Roles:    (*roleRepo)(s),
		Users:    (*userRepo)(s),
		Follows:  (*followRepo)(s),
		Posts:    (*postRepo)(s),
		Comments: (*commentRepo)(s),
		Ping:     func(context.Context) error { return nil },
	}
}

func window[T any](all []T, offset, limit int) []T {
	if offset < 0 || offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// ---- roles ----

type roleRepo state

var _ repository.RoleRepository = (*roleRepo)(nil)

func (r *roleRepo) Upsert(_ context.Context, role *model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cur := range r.roles {
		if cur.Name == role.Name {
			role.ID = id
			r.roles[id] = *role
			return nil
		}
	}
	if role.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		role.ID = id
	}
	r.roles[role.ID] = *role
	return nil
}

func (r *roleRepo) find(match func(model.Role) bool) (*model.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var hits []model.Role
	for _, role := range r.roles {
		if match(role) {
			hits = append(hits, role)
		}
	}
	if len(hits) == 0 {
		return nil, errs.ErrNotFound
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Name < hits[j].Name })
	return &hits[0], nil
}

func (r *roleRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Role, error) {
	return r.find(func(role model.Role) bool { return role.ID == id })
}

func (r *roleRepo) GetByName(_ context.Context, name string) (*model.Role, error) {
	return r.find(func(role model.Role) bool { return role.Name == name })
}

func (r *roleRepo) GetDefault(context.Context) (*model.Role, error) {
	return r.find(func(role model.Role) bool { return role.Default })
}

func (r *roleRepo) GetByPermissions(_ context.Context, perms model.Permission) (*model.Role, error) {
	return r.find(func(role model.Role) bool { return role.Permissions == perms })
}

func (r *roleRepo) List(context.Context) ([]model.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Permissions != out[j].Permissions {
			return out[i].Permissions < out[j].Permissions
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ---- users ----

type userRepo state

var _ repository.UserRepository = (*userRepo)(nil)

// resolve must be called with the lock held.
func (r *userRepo) resolve(u model.User) *model.User {
	if role, ok := r.roles[u.Role.ID]; ok {
		u.Role = role
	}
	return &u
}

func (r *userRepo) clash(u *model.User) bool {
	for id, cur := range r.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(cur.Email, u.Email) || cur.Username == u.Username {
			return true
		}
	}
	return false
}

func (r *userRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok || r.clash(u) {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.roles[u.Role.ID]; !ok {
		return errs.ErrNotFound
	}
	r.users[u.ID] = *u
	r.follows[edge{u.ID, u.ID}] = u.MemberSince
	return nil
}

func (r *userRepo) get(match func(model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			return r.resolve(u), nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r *userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return r.get(func(u model.User) bool { return u.ID == id })
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.get(func(u model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.get(func(u model.User) bool { return u.Username == username })
}

func (r *userRepo) Update(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[u.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if r.clash(u) {
		return errs.ErrAlreadyExists
	}
	next := *u
	next.MemberSince = cur.MemberSince
	next.LastSeen = cur.LastSeen
	r.users[u.ID] = next
	return nil
}

func (r *userRepo) Touch(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.LastSeen = at
		r.users[id] = u
	}
	return nil
}

func (r *userRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return errs.ErrNotFound
	}
	for e := range r.follows {
		if e.follower == id || e.followed == id {
			delete(r.follows, e)
		}
	}
	for pid, p := range r.posts {
		if p.AuthorID == id {
			delete(r.posts, pid)
		}
	}
	for cid, c := range r.comments {
		if c.AuthorID == id {
			delete(r.comments, cid)
			continue
		}
		if _, ok := r.posts[c.PostID]; !ok {
			delete(r.comments, cid)
		}
	}
	delete(r.users, id)
	return nil
}

// ---- follows ----

type followRepo state

var _ repository.FollowRepository = (*followRepo)(nil)

func (r *followRepo) Follow(_ context.Context, follower, followed uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[follower]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := r.users[followed]; !ok {
		return errs.ErrNotFound
	}
	if _, ok := r.follows[edge{follower, followed}]; !ok {
		r.follows[edge{follower, followed}] = at
	}
	return nil
}

func (r *followRepo) Unfollow(_ context.Context, follower, followed uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.follows, edge{follower, followed})
	return nil
}

func (r *followRepo) Exists(_ context.Context, follower, followed uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.follows[edge{follower, followed}]
	return ok, nil
}

func (r *followRepo) list(userID uuid.UUID, other func(edge) (uuid.UUID, bool), offset, limit int) ([]model.FollowEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []model.FollowEntry
	for e, since := range r.follows {
		id, ok := other(e)
		if !ok || id == userID {
			continue
		}
		u, found := r.users[id]
		if !found {
			continue
		}
		all = append(all, model.FollowEntry{User: *(*userRepo)(r).resolve(u), Since: since})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Since.After(all[j].Since) })
	return window(all, offset, limit), len(all), nil
}

func (r *followRepo) Followers(_ context.Context, userID uuid.UUID, offset, limit int) ([]model.FollowEntry, int, error) {
	return r.list(userID, func(e edge) (uuid.UUID, bool) { return e.follower, e.followed == userID }, offset, limit)
}

func (r *followRepo) Followed(_ context.Context, userID uuid.UUID, offset, limit int) ([]model.FollowEntry, int, error) {
	return r.list(userID, func(e edge) (uuid.UUID, bool) { return e.followed, e.follower == userID }, offset, limit)
}

func (r *followRepo) BackfillSelfFollows(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, u := range r.users {
		if _, ok := r.follows[edge{id, id}]; !ok {
			r.follows[edge{id, id}] = u.MemberSince
			n++
		}
	}
	return n, nil
}

// ---- posts ----

type postRepo state

var _ repository.PostRepository = (*postRepo)(nil)

func (r *postRepo) Create(_ context.Context, p *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[p.AuthorID]; !ok {
		return errs.ErrNotFound
	}
	r.posts[p.ID] = *p
	return nil
}

func (r *postRepo) Update(_ context.Context, p *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.posts[p.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.Body, cur.BodyHTML = p.Body, p.BodyHTML
	r.posts[p.ID] = cur
	return nil
}

// withCount must be called with the lock held.
func (r *postRepo) withCount(p model.Post) model.Post {
	p.Comments = 0
	for _, c := range r.comments {
		if c.PostID == p.ID {
			p.Comments++
		}
	}
	return p
}

func (r *postRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	p = r.withCount(p)
	return &p, nil
}

func (r *postRepo) filter(match func(model.Post) bool, offset, limit int) ([]model.Post, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []model.Post
	for _, p := range r.posts {
		if match(p) {
			all = append(all, r.withCount(p))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return window(all, offset, limit), len(all), nil
}

func (r *postRepo) List(_ context.Context, offset, limit int) ([]model.Post, int, error) {
	return r.filter(func(model.Post) bool { return true }, offset, limit)
}

func (r *postRepo) ListByAuthor(_ context.Context, authorID uuid.UUID, offset, limit int) ([]model.Post, int, error) {
	return r.filter(func(p model.Post) bool { return p.AuthorID == authorID }, offset, limit)
}

func (r *postRepo) ListFollowed(_ context.Context, userID uuid.UUID, offset, limit int) ([]model.Post, int, error) {
	return r.filter(func(p model.Post) bool {
		_, ok := r.follows[edge{userID, p.AuthorID}]
		return ok
	}, offset, limit)
}

func (r *postRepo) CountByAuthor(_ context.Context, authorID uuid.UUID) (int, error) {
	_, n, err := r.ListByAuthor(context.Background(), authorID, 0, 0)
	return n, err
}

// ---- comments ----

type commentRepo state

var _ repository.CommentRepository = (*commentRepo)(nil)

func (r *commentRepo) Create(_ context.Context, c *model.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[c.PostID]; !ok {
		return errs.ErrNotFound
	}
	r.comments[c.ID] = *c
	return nil
}

func (r *commentRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Comment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.comments[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &c, nil
}

func (r *commentRepo) filter(match func(model.Comment) bool, newestFirst bool, offset, limit int) ([]model.Comment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []model.Comment
	for _, c := range r.comments {
		if match(c) {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if newestFirst {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return window(all, offset, limit), len(all), nil
}

func (r *commentRepo) ListByPost(_ context.Context, postID uuid.UUID, offset, limit int) ([]model.Comment, int, error) {
	return r.filter(func(c model.Comment) bool { return c.PostID == postID }, false, offset, limit)
}

func (r *commentRepo) List(_ context.Context, offset, limit int) ([]model.Comment, int, error) {
	return r.filter(func(model.Comment) bool { return true }, true, offset, limit)
}

func (r *commentRepo) SetDisabled(_ context.Context, id uuid.UUID, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return errs.ErrNotFound
	}
	c.Disabled = disabled
	r.comments[id] = c
	return nil
}
