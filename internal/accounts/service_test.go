package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jimdaga/portfolio-backend/internal/credentials"
	"github.com/jimdaga/portfolio-backend/internal/database/dbtest"
	"github.com/jimdaga/portfolio-backend/internal/identity"
	"github.com/jimdaga/portfolio-backend/internal/models"
	"github.com/jimdaga/portfolio-backend/internal/notify"
	"github.com/jimdaga/portfolio-backend/internal/otp"
	"github.com/jimdaga/portfolio-backend/internal/store"
	"github.com/jimdaga/portfolio-backend/internal/streams"
	"gorm.io/gorm"
)

type fakeNotifier struct {
	mu       sync.Mutex
	otps     []notify.OTPEmail
	messages []notify.ContactEmail
	err      error
}

func (n *fakeNotifier) SendOTP(_ context.Context, e notify.OTPEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps = append(n.otps, e)
	return n.err
}

func (n *fakeNotifier) SendMessage(_ context.Context, e notify.ContactEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, e)
	return n.err
}

type fakeEvents struct {
	events []streams.MessageEvent
}

func (f *fakeEvents) PublishMessage(_ context.Context, evt streams.MessageEvent) (string, error) {
	f.events = append(f.events, evt)
	return "1-0", nil
}

// fakeResolver accepts the tokens it knows.
type fakeResolver map[string]identity.Profile

func (f fakeResolver) Resolve(_ context.Context, token string) (*identity.Profile, error) {
	p, ok := f[token]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return &p, nil
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	store    *store.Store
	notifier *fakeNotifier
	events   *fakeEvents
	tokens   *credentials.Issuer
	clock    *time.Time
	code     *string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	st := store.New(db)
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	code := "482913"

	env := &testEnv{
		db:       db,
		store:    st,
		notifier: &fakeNotifier{},
		events:   &fakeEvents{},
		clock:    &now,
		code:     &code,
	}

	tokens, err := credentials.NewIssuer("test-secret", "test", 0)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	env.tokens = tokens

	registry := identity.NewRegistry()
	registry.Register(models.ProviderGoogle, fakeResolver{
		"tok1": {ID: "g-1", Email: "b@x.com", Name: "Bea"},
	})
	registry.Register(models.ProviderGitHub, fakeResolver{
		"gh1": {ID: "42", Email: "a@x.com", Name: "octo"},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.svc = New(Deps{
		Store: st,
		OTP: otp.NewService(
			otp.WithClock(func() time.Time { return *env.clock }),
			otp.WithGenerator(func() (string, error) { return *env.code, nil }),
		),
		Reconciler: identity.NewReconciler(logger),
		Resolvers:  registry,
		Tokens:     tokens,
		Notifier:   env.notifier,
		Events:     env.events,
		Logger:     logger,
	})
	return env
}

func (e *testEnv) advance(d time.Duration) { *e.clock = e.clock.Add(d) }

func (e *testEnv) countUsers(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.User{}).Count(&n).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	return n
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want %s", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("kind = %s (%v), want %s", got, err, kind)
	}
}

func TestSignupVerifyScenario(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	res, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if !res.Created || res.User.IsVerified || res.User.IsActive {
		t.Fatalf("signup result = %+v", res)
	}
	if len(env.notifier.otps) != 1 || env.notifier.otps[0].Code != "482913" {
		t.Fatalf("otp emails = %+v", env.notifier.otps)
	}
	if link, _ := env.store.FindLink(ctx, res.User.ID, models.ProviderManual); link == nil {
		t.Error("manual link should exist after signup")
	}

	env.advance(time.Minute)
	vres, err := env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com", OTPCode: "482913"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !vres.User.Trusted() || vres.Token == "" {
		t.Fatalf("verify result = %+v", vres)
	}
	if id, err := env.tokens.Parse(vres.Token); err != nil || id != res.User.ID {
		t.Errorf("token subject = %d, %v", id, err)
	}
	if vres.User.LastLoginAt == nil {
		t.Error("LastLoginAt should be set")
	}

	_, err = env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com", OTPCode: "482913"})
	wantKind(t, err, KindNotFound)
	if !errors.Is(err, otp.ErrNotFound) {
		t.Errorf("second verify should wrap otp.ErrNotFound: %v", err)
	}
}

func TestSignup_RejectsNonManualProvider(t *testing.T) {
	env := newEnv(t)

	_, err := env.svc.Signup(context.Background(), SignupRequest{Provider: "google", Email: "a@x.com"})
	wantKind(t, err, KindValidation)
	if env.countUsers(t) != 0 {
		t.Error("no user should be created")
	}
}

func TestSignup_ValidatesEmail(t *testing.T) {
	env := newEnv(t)
	for _, email := range []string{"", "   ", "not-an-email", "Ann <a@x.com>"} {
		_, err := env.svc.Signup(context.Background(), SignupRequest{Provider: "manual", Email: email})
		wantKind(t, err, KindValidation)
	}
}

func TestSignup_ExistingUserUpdatesProfile(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	if _, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@X.com", Name: "Ann", Phone: "+1"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	*env.code = "111111"
	res, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com", Phone: "+2"})
	if err != nil {
		t.Fatalf("second Signup: %v", err)
	}
	if res.Created {
		t.Error("second signup should not create a user")
	}

	u, _ := env.store.FindUserByEmail(ctx, "a@x.com")
	if u.Name != "Ann" || u.Phone != "+2" {
		t.Errorf("profile = (%q, %q), want (Ann, +2)", u.Name, u.Phone)
	}
	if n, _ := env.store.CountOTPs(ctx, u.ID); n != 2 {
		t.Errorf("user has %d codes, want 2", n)
	}
	if env.countUsers(t) != 1 {
		t.Error("expected exactly one user")
	}
}

// hideNextLookup makes the next successful SELECT on table report no rows,
// as if a competing transaction committed the row right after our lookup.
func hideNextLookup(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	var fired atomic.Bool
	err := db.Callback().Query().After("gorm:query").Register("test:hide_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table != table || tx.Error != nil || !fired.CompareAndSwap(false, true) {
			return
		}
		tx.Error = gorm.ErrRecordNotFound
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
}

func wantRetryableConflict(t *testing.T, err error) {
	t.Helper()
	wantKind(t, err, KindConflict)
	var e *Error
	if !errors.As(err, &e) || !e.Retryable() {
		t.Errorf("conflict should be retryable: %v", err)
	}
}

func TestSignup_LostUserRaceIsRetryableConflict(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	if err := env.store.CreateUser(ctx, &models.User{Email: "race@x.com"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	hideNextLookup(t, env.db, "users")

	_, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "race@x.com"})
	wantRetryableConflict(t, err)
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Errorf("err should wrap store.ErrDuplicateEmail: %v", err)
	}
	if n := env.countUsers(t); n != 1 {
		t.Errorf("got %d users, want 1", n)
	}
	if len(env.notifier.otps) != 0 {
		t.Errorf("losing signup must not mail a code, sent %d", len(env.notifier.otps))
	}
}

func TestSignup_LostLinkRaceIsRetryableConflict(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	first, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "race@x.com"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	hideNextLookup(t, env.db, "auth_provider_links")

	_, err = env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "race@x.com", Name: "Late"})
	wantRetryableConflict(t, err)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("err should wrap store.ErrConflict: %v", err)
	}

	links, _ := env.store.ListLinks(ctx, first.User.ID)
	if len(links) != 1 {
		t.Errorf("got %d links, want 1", len(links))
	}
	if n, _ := env.store.CountOTPs(ctx, first.User.ID); n != 1 {
		t.Errorf("losing signup must roll back, user has %d codes", n)
	}
	u, _ := env.store.FindUserByEmail(ctx, "race@x.com")
	if u.Name != "" {
		t.Errorf("profile update should roll back, name = %q", u.Name)
	}
}

// Concurrent signups for one email serialise on the test database; every
// caller must end up with the same single user.
func TestSignup_ConcurrentSameEmail(t *testing.T) {
	env := newEnv(t)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Signup(context.Background(), SignupRequest{Provider: "manual", Email: "race@x.com"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && KindOf(err) != KindConflict {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if n := env.countUsers(t); n != 1 {
		t.Errorf("got %d users, want 1", n)
	}
}

func TestSignup_NotifierFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.notifier.err = errors.New("smtp down")

	res, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Signup should succeed when email fails: %v", err)
	}
	if n, _ := env.store.CountOTPs(ctx, res.User.ID); n != 1 {
		t.Errorf("OTP should persist, got %d", n)
	}
}

func TestVerify_Errors(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	_, err := env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com"})
	wantKind(t, err, KindValidation)

	_, err = env.svc.Verify(ctx, VerifyRequest{Email: "ghost@x.com", OTPCode: "123456"})
	wantKind(t, err, KindNotFound)
	if errors.Is(err, otp.ErrNotFound) {
		t.Error("unknown user should not look like a bad code")
	}

	if _, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	_, err = env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com", OTPCode: "000000"})
	wantKind(t, err, KindNotFound)

	env.advance(otp.TTL)
	_, err = env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com", OTPCode: "482913"})
	wantKind(t, err, KindExpired)

	u, _ := env.store.FindUserByEmail(ctx, "a@x.com")
	if u.IsVerified || u.IsActive {
		t.Error("failed verify must not change flags")
	}
}

func TestVerify_StoresMessageAndAnnounces(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	if _, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com", Name: "Ann"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	res, err := env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com", OTPCode: "482913", Purpose: "Hire", Message: "Hello"})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Message == nil || res.Message.AuthProviderLinkID == nil {
		t.Fatalf("message = %+v", res.Message)
	}

	msgs, _ := env.store.ListMessages(ctx, res.User.ID)
	if len(msgs) != 1 || msgs[0].Purpose != "Hire" {
		t.Errorf("messages = %+v", msgs)
	}
	if len(env.notifier.messages) != 1 || env.notifier.messages[0].Provider != "manual" {
		t.Errorf("operator emails = %+v", env.notifier.messages)
	}
	if len(env.events.events) != 1 || env.events.events[0].MessageID != res.Message.ID {
		t.Errorf("events = %+v", env.events.events)
	}
}

type failingIssuer struct{}

func (failingIssuer) Issue(uint) (string, error) { return "", errors.New("signing key unavailable") }

func TestVerify_SigningFailureKeepsCodeUsable(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	if _, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	env.svc.tokens = failingIssuer{}
	_, err := env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com", OTPCode: "482913", Purpose: "Hire", Message: "Hello"})
	wantKind(t, err, KindUnexpected)

	u, _ := env.store.FindUserByEmail(ctx, "a@x.com")
	if u.IsVerified || u.IsActive || u.LastLoginAt != nil {
		t.Errorf("verification should roll back, user = %+v", u)
	}
	if n, _ := env.store.CountOTPs(ctx, u.ID); n != 1 {
		t.Errorf("code should survive, user has %d codes", n)
	}
	if msgs, _ := env.store.ListMessages(ctx, u.ID); len(msgs) != 0 {
		t.Errorf("message should roll back, got %d", len(msgs))
	}
	if len(env.notifier.messages) != 0 || len(env.events.events) != 0 {
		t.Error("nothing should be announced for a rolled back verify")
	}

	env.svc.tokens = env.tokens
	res, err := env.svc.Verify(ctx, VerifyRequest{Email: "a@x.com", OTPCode: "482913"})
	if err != nil {
		t.Fatalf("retry Verify: %v", err)
	}
	if res.Token == "" || !res.User.Trusted() {
		t.Errorf("retry result = %+v", res)
	}
}

func TestSocialAuth_SigningFailureCreatesNothing(t *testing.T) {
	env := newEnv(t)
	env.svc.tokens = failingIssuer{}

	_, err := env.svc.SocialAuth(context.Background(), SocialAuthRequest{Provider: "google", AccessToken: "tok1"})
	wantKind(t, err, KindUnexpected)
	if n := env.countUsers(t); n != 0 {
		t.Errorf("got %d users, want 0", n)
	}
}

func TestSocialAuth_CreatesVerifiedUser(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	res, err := env.svc.SocialAuth(ctx, SocialAuthRequest{Provider: "google", AccessToken: "tok1"})
	if err != nil {
		t.Fatalf("SocialAuth: %v", err)
	}
	if !res.Created || !res.User.Trusted() || res.User.Email != "b@x.com" || res.Token == "" {
		t.Fatalf("result = %+v", res)
	}
	if res.Link.ExternalUID != "g-1" || res.Link.AccessToken != "tok1" {
		t.Errorf("link = %+v", res.Link)
	}
	if n, _ := env.store.CountOTPs(ctx, res.User.ID); n != 0 {
		t.Error("social login must not issue OTPs")
	}

	again, err := env.svc.SocialAuth(ctx, SocialAuthRequest{
		Provider:        "google",
		AccessToken:     "tok1",
		ProviderDetails: map[string]interface{}{"locale": "en"},
	})
	if err != nil {
		t.Fatalf("repeat SocialAuth: %v", err)
	}
	if again.Created || again.User.ID != res.User.ID {
		t.Errorf("repeat result = %+v", again)
	}
	links, _ := env.store.ListLinks(ctx, res.User.ID)
	if len(links) != 1 || string(links[0].ProviderDetails) != `{"locale":"en"}` {
		t.Errorf("links = %+v", links)
	}
}

func TestSocialAuth_PromotesPendingManualUser(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	if _, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com"}); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	res, err := env.svc.SocialAuth(ctx, SocialAuthRequest{Provider: "github", AccessToken: "gh1"})
	if err != nil {
		t.Fatalf("SocialAuth: %v", err)
	}
	if res.Created || !res.User.Trusted() || res.User.Name != "octo" {
		t.Errorf("result = %+v", res.User)
	}
	links, _ := env.store.ListLinks(ctx, res.User.ID)
	if len(links) != 2 {
		t.Errorf("got %d links, want manual and github", len(links))
	}
}

func TestSocialAuth_Errors(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	cases := []struct {
		name string
		req  SocialAuthRequest
		kind Kind
	}{
		{"unsupported provider", SocialAuthRequest{Provider: "twitter", AccessToken: "x"}, KindUnsupportedProvider},
		{"manual is not social", SocialAuthRequest{Provider: "manual", AccessToken: "x"}, KindUnsupportedProvider},
		{"missing token", SocialAuthRequest{Provider: "google"}, KindValidation},
		{"rejected token", SocialAuthRequest{Provider: "google", AccessToken: "bad"}, KindUpstreamAuth},
		{"invalid details", SocialAuthRequest{Provider: "google", AccessToken: "tok1", ProviderDetails: tooManyDetails()}, KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SocialAuth(ctx, tc.req)
			wantKind(t, err, tc.kind)
		})
	}
	if env.countUsers(t) != 0 {
		t.Error("failed social auth must not create users")
	}
}

func tooManyDetails() map[string]interface{} {
	d := map[string]interface{}{}
	for i := 0; i < 40; i++ {
		d[fmt.Sprintf("k%d", i)] = i
	}
	return d
}

func TestProcessMessage(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	social, err := env.svc.SocialAuth(ctx, SocialAuthRequest{Provider: "google", AccessToken: "tok1"})
	if err != nil {
		t.Fatalf("SocialAuth: %v", err)
	}

	res, err := env.svc.ProcessMessage(ctx, social.User.ID, MessageRequest{
		Provider:        "github",
		Email:           "b@x.com",
		Phone:           "+44",
		ProviderDetails: map[string]interface{}{"login": "bea"},
		Purpose:         "Collab",
		Message:         "Let's talk",
	})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.User.Phone != "+44" || res.User.Name != "Bea" {
		t.Errorf("profile = %+v", res.User)
	}
	link, _ := env.store.FindLink(ctx, social.User.ID, models.ProviderGitHub)
	if link == nil || res.Message.AuthProviderLinkID == nil || *res.Message.AuthProviderLinkID != link.ID {
		t.Errorf("message should reference the github link: %+v", res.Message)
	}
	if len(env.notifier.messages) != 1 || len(env.events.events) != 1 {
		t.Errorf("announce: %d emails, %d events", len(env.notifier.messages), len(env.events.events))
	}
}

func TestProcessMessage_Unauthorized(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	pending, err := env.svc.Signup(ctx, SignupRequest{Provider: "manual", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	trusted, err := env.svc.SocialAuth(ctx, SocialAuthRequest{Provider: "google", AccessToken: "tok1"})
	if err != nil {
		t.Fatalf("SocialAuth: %v", err)
	}

	req := MessageRequest{Provider: "manual", Email: "a@x.com", Purpose: "p", Message: "m"}
	_, err = env.svc.ProcessMessage(ctx, pending.User.ID, req)
	wantKind(t, err, KindUnauthorized)

	_, err = env.svc.ProcessMessage(ctx, trusted.User.ID, req)
	wantKind(t, err, KindUnauthorized)

	_, err = env.svc.ProcessMessage(ctx, 9999, req)
	wantKind(t, err, KindUnauthorized)

	msgs, _ := env.store.ListMessages(ctx, trusted.User.ID)
	if len(msgs) != 0 {
		t.Error("no message should be stored")
	}
}

func TestProcessMessage_Validation(t *testing.T) {
	env := newEnv(t)

	_, err := env.svc.ProcessMessage(context.Background(), 1, MessageRequest{Provider: "myspace", Email: "a@x.com", Purpose: "p", Message: "m"})
	wantKind(t, err, KindUnsupportedProvider)

	_, err = env.svc.ProcessMessage(context.Background(), 1, MessageRequest{Provider: "manual", Email: "a@x.com"})
	wantKind(t, err, KindValidation)
}

func TestErrorHelpers(t *testing.T) {
	conflict := classify(store.ErrDuplicateEmail)
	if conflict.Kind != KindConflict || !conflict.Retryable() {
		t.Errorf("classify(ErrDuplicateEmail) = %+v", conflict)
	}
	if classify(store.ErrConflict).Kind != KindConflict {
		t.Error("ErrConflict should classify as conflict")
	}
	if KindOf(errors.New("x")) != KindUnexpected {
		t.Error("foreign errors are unexpected")
	}
	if classify(errors.New("db gone")).Msg != "internal error" {
		t.Error("unexpected errors must not leak their cause in Msg")
	}
}
