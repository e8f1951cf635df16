// Package identity resolves social access tokens to profiles and reconciles
// them with local users and provider links.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/jimdaga/portfolio-backend/internal/models"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidToken means the provider rejected the token or returned no usable email.
	ErrInvalidToken = errors.New("identity: provider rejected access token")
	// ErrUnsupportedProvider means no resolver is registered under the name.
	ErrUnsupportedProvider = errors.New("identity: unsupported provider")
)

// Profile is what a provider tells us about the token holder.
type Profile struct {
	ID    string
	Email string
	Name  string
}

// Resolver turns a provider access token into a Profile.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string) (*Profile, error)
}

// Endpoints used by the resolvers. Overridable for tests.
const (
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	FacebookMeURL     = "https://graph.facebook.com/me?fields=id,name,email"
	GitHubAPIURL      = "https://api.github.com"
)

const requestTimeout = 10 * time.Second

// getJSON fetches url with the bearer token and decodes the body into out.
// 401 and 403 map to ErrInvalidToken.
func getJSON(ctx context.Context, accessToken, url string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrInvalidToken
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: provider returned status %d", ErrInvalidToken, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

func requireEmail(p *Profile) (*Profile, error) {
	if p.Email == "" {
		return nil, fmt.Errorf("%w: no email on profile", ErrInvalidToken)
	}
	p.Email = models.NormalizeEmail(p.Email)
	return p, nil
}

// GoogleResolver reads the OpenID userinfo endpoint.
type GoogleResolver struct {
	URL string
}

func (g *GoogleResolver) Resolve(ctx context.Context, accessToken string) (*Profile, error) {
	url := g.URL
	if url == "" {
		url = GoogleUserInfoURL
	}
	var body struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, accessToken, url, &body); err != nil {
		return nil, err
	}
	return requireEmail(&Profile{ID: body.Sub, Email: body.Email, Name: body.Name})
}

// FacebookResolver reads the Graph API /me object.
type FacebookResolver struct {
	URL string
}

func (f *FacebookResolver) Resolve(ctx context.Context, accessToken string) (*Profile, error) {
	url := f.URL
	if url == "" {
		url = FacebookMeURL
	}
	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := getJSON(ctx, accessToken, url, &body); err != nil {
		return nil, err
	}
	return requireEmail(&Profile{ID: body.ID, Email: body.Email, Name: body.Name})
}

// GitHubResolver reads /user and, when the profile email is private, picks the
// primary verified address from /user/emails.
type GitHubResolver struct {
	BaseURL string
}

func (g *GitHubResolver) Resolve(ctx context.Context, accessToken string) (*Profile, error) {
	base := g.BaseURL
	if base == "" {
		base = GitHubAPIURL
	}

	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, accessToken, base+"/user", &user); err != nil {
		return nil, err
	}

	p := &Profile{ID: strconv.FormatInt(user.ID, 10), Email: user.Email, Name: user.Name}
	if p.Name == "" {
		p.Name = user.Login
	}
	if p.Email != "" {
		return requireEmail(p)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, accessToken, base+"/user/emails", &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			p.Email = e.Email
			break
		}
	}
	return requireEmail(p)
}

// Registry maps provider names to resolvers.
type Registry struct {
	resolvers map[models.Provider]Resolver
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[models.Provider]Resolver)}
}

// DefaultRegistry returns a registry with the production Google, Facebook and
// GitHub resolvers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(models.ProviderGoogle, &GoogleResolver{})
	r.Register(models.ProviderFacebook, &FacebookResolver{})
	r.Register(models.ProviderGitHub, &GitHubResolver{})
	return r
}

// Register adds or replaces the resolver for provider.
func (r *Registry) Register(provider models.Provider, resolver Resolver) {
	r.resolvers[provider] = resolver
}

// Get returns the resolver for name or ErrUnsupportedProvider.
func (r *Registry) Get(name string) (models.Provider, Resolver, error) {
	p := models.Provider(name)
	res, ok := r.resolvers[p]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return p, res, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.resolvers))
	for p := range r.resolvers {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}
