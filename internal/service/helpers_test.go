package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/and161185/flasky/internal/repository/memory"
	"github.com/and161185/flasky/internal/token"
)

type sentMail struct {
	to, subject, tmpl string
	data              map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

var _ Mailer = (*fakeMailer)(nil)

func (m *fakeMailer) Send(_ context.Context, to, subject, tmpl string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, tmpl: tmpl, data: data})
}

// lastTo returns the newest mail sent to addr with the given template.
func (m *fakeMailer) lastTo(t *testing.T, addr, tmpl string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].to == addr && m.sent[i].tmpl == tmpl {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail to %s", tmpl, addr)
	return sentMail{}
}

type testEnv struct {
	store    repository.Store
	mail     *fakeMailer
	codec    *token.Codec
	auth     *AuthServiceImpl
	social   *SocialServiceImpl
	posts    *PostServiceImpl
	comments *CommentServiceImpl
	users    *UserServiceImpl
}

const adminEmail = "admin@example.com"

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	if err := NewRoleService(store.Roles).SeedRoles(context.Background(), model.DefaultRoles); err != nil {
		t.Fatalf("SeedRoles: %v", err)
	}
	mail := &fakeMailer{}
	codec := token.NewCodec([]byte("test-secret"))
	return &testEnv{
		store:    store,
		mail:     mail,
		codec:    codec,
		auth:     NewAuthService(store.Users, store.Roles, codec, mail, AuthOptions{AdminEmail: adminEmail, TokenTTL: time.Hour}),
		social:   NewSocialService(store.Users, store.Follows, 50),
		posts:    NewPostService(store.Posts, store.Users, 2),
		comments: NewCommentService(store.Comments, store.Posts, 2),
		users:    NewUserService(store.Users, store.Roles, store.Posts),
	}
}

// register creates a confirmed user and returns its password principal.
func (e *testEnv) register(t *testing.T, email, username string) model.Principal {
	t.Helper()
	ctx := context.Background()
	u, err := e.auth.Register(ctx, email, username, "cat")
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	u.Confirmed = true
	if err := e.store.Users.Update(ctx, u); err != nil {
		t.Fatalf("confirm %s: %v", email, err)
	}
	got, err := e.store.Users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("reload %s: %v", email, err)
	}
	return model.Principal{User: got}
}
