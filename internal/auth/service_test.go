package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"caretaker/internal/core"
	"caretaker/internal/remote"
	"caretaker/internal/storage"
)

func newTestService(t *testing.T, directory Directory, ttl time.Duration) *Service {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return NewService(repo, directory, ttl, nil)
}

func validInput() RegisterInput {
	return RegisterInput{
		Username:          "rivka",
		Password:          "secret",
		ConfirmPassword:   "secret",
		FamilyName:        "Cohen",
		ContractStartDate: "2024-01-15",
		MonthlyBaseAmount: 6250,
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"empty username", func(in *RegisterInput) { in.Username = "  " }},
		{"short password", func(in *RegisterInput) { in.Password = "abc"; in.ConfirmPassword = "abc" }},
		{"mismatched confirmation", func(in *RegisterInput) { in.ConfirmPassword = "other" }},
		{"empty family name", func(in *RegisterInput) { in.FamilyName = "" }},
		{"bad start date", func(in *RegisterInput) { in.ContractStartDate = "15/01/2024" }},
		{"zero base amount", func(in *RegisterInput) { in.MonthlyBaseAmount = 0 }},
		{"negative base amount", func(in *RegisterInput) { in.MonthlyBaseAmount = -100 }},
	}

	svc := newTestService(t, nil, time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			if _, err := svc.Register(context.Background(), in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t, nil, time.Hour)
	ctx := context.Background()

	session, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if session.Role != core.RoleAdmin {
		t.Fatalf("first user role = %q, want admin", session.Role)
	}
	if session.FamilyID == "" || session.Token == "" {
		t.Fatalf("incomplete session %+v", session)
	}

	// The token resolves back to the session.
	got, ok := svc.SessionFromToken(session.Token)
	if !ok || got.Username != "rivka" {
		t.Fatalf("SessionFromToken: %+v ok=%v", got, ok)
	}

	// Same username cannot register twice.
	if _, err := svc.Register(ctx, validInput()); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	login, err := svc.Login(ctx, "rivka", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.FamilyID != session.FamilyID {
		t.Fatal("login must land in the same family")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := newTestService(t, nil, time.Hour)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Unknown username and wrong password return the same error.
	if _, err := svc.Login(ctx, "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
	if _, err := svc.Login(ctx, "rivka", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	svc := newTestService(t, nil, 10*time.Millisecond)
	ctx := context.Background()

	session, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := svc.SessionFromToken(session.Token); ok {
		t.Fatal("expired session must not resolve")
	}
}

func TestLogout(t *testing.T) {
	svc := newTestService(t, nil, time.Hour)

	session, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	svc.Logout(session.Token)
	if _, ok := svc.SessionFromToken(session.Token); ok {
		t.Fatal("session must be gone after logout")
	}
}

func TestFamilyUserManagement(t *testing.T) {
	svc := newTestService(t, nil, time.Hour)
	ctx := context.Background()

	admin, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	member, err := svc.AddFamilyUser(ctx, admin, "dana", "word", core.RoleCaretaker)
	if err != nil {
		t.Fatalf("AddFamilyUser: %v", err)
	}
	if member.Role != core.RoleCaretaker {
		t.Fatalf("member role = %q", member.Role)
	}

	// The caretaker logs into the same family but cannot manage users.
	caretaker, err := svc.Login(ctx, "dana", "word")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if caretaker.FamilyID != admin.FamilyID {
		t.Fatal("caretaker must join the admin's family")
	}
	if _, err := svc.AddFamilyUser(ctx, caretaker, "eli", "word", core.RoleCaretaker); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.DeleteFamilyUser(ctx, caretaker, member.ID); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}

	users, err := svc.FamilyUsers(ctx, admin)
	if err != nil || len(users) != 2 {
		t.Fatalf("FamilyUsers: %d err=%v", len(users), err)
	}

	// Admins cannot remove themselves.
	var adminID int64
	for _, u := range users {
		if u.Username == "rivka" {
			adminID = u.ID
		}
	}
	if err := svc.DeleteFamilyUser(ctx, admin, adminID); err == nil {
		t.Fatal("self-deletion must be rejected")
	}

	if err := svc.DeleteFamilyUser(ctx, admin, member.ID); err != nil {
		t.Fatalf("DeleteFamilyUser: %v", err)
	}
	users, _ = svc.FamilyUsers(ctx, admin)
	if len(users) != 1 {
		t.Fatalf("expected 1 user after delete, got %d", len(users))
	}
}

type fakeDirectory struct {
	users   map[string]remote.User
	created []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: make(map[string]remote.User)}
}

func (d *fakeDirectory) UserByUsername(_ context.Context, username string) (remote.User, bool, error) {
	u, ok := d.users[username]
	return u, ok, nil
}

func (d *fakeDirectory) CreateUser(_ context.Context, u remote.User) error {
	d.users[u.Username] = u
	d.created = append(d.created, u.Username)
	return nil
}

func (d *fakeDirectory) DeleteUser(_ context.Context, username, _ string) error {
	delete(d.users, username)
	return nil
}

func TestRegisterMirrorsToDirectory(t *testing.T) {
	dir := newFakeDirectory()
	svc := newTestService(t, dir, time.Hour)

	if _, err := svc.Register(context.Background(), validInput()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(dir.created) != 1 || dir.created[0] != "rivka" {
		t.Fatalf("directory mirror = %v", dir.created)
	}
}

func TestLoginFallsBackToDirectory(t *testing.T) {
	dir := newFakeDirectory()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	dir.users["rivka"] = remote.User{
		Username: "rivka",
		Password: string(hash),
		FamilyID: "fam1",
		Role:     "admin",
	}

	// Local users table is empty; the login resolves remotely.
	svc := newTestService(t, dir, time.Hour)
	session, err := svc.Login(context.Background(), "rivka", "secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.FamilyID != "fam1" || session.Role != core.RoleAdmin {
		t.Fatalf("session = %+v", session)
	}

	// The credential row is now cached: a second login works with the
	// directory gone.
	svc.directory = nil
	if _, err := svc.Login(context.Background(), "rivka", "secret"); err != nil {
		t.Fatalf("offline login after caching: %v", err)
	}
}

func TestRegisterRejectsDirectoryDuplicates(t *testing.T) {
	dir := newFakeDirectory()
	dir.users["rivka"] = remote.User{Username: "rivka", FamilyID: "other"}

	svc := newTestService(t, dir, time.Hour)
	if _, err := svc.Register(context.Background(), validInput()); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}
