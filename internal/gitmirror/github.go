package gitmirror

import (
	"context"
	stdErrors "errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"
)

// ErrRepoExists is returned by CreateRepo when the name is taken.
var ErrRepoExists = stdErrors.New("repository name already exists on this account")

type GitHubUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type GitHubRepo struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	Owner         string `json:"owner"`
}

type GitHub interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	VerifyToken(ctx context.Context, token string) (*GitHubUser, error)
	ListRepos(ctx context.Context, token string) ([]GitHubRepo, error)
	CreateRepo(ctx context.Context, token, name, description string, private bool) (*GitHubRepo, error)
}

type GitHubClient struct {
	apiURL *url.URL
	oauth  *oauth2.Config
	http   *http.Client
}

// NewGitHubClient talks to apiURL (https://api.github.com) and exchanges
// codes against oauthURL (https://github.com).
func NewGitHubClient(apiURL, oauthURL, clientID, clientSecret string) (*GitHubClient, error) {
	base, err := url.Parse(strings.TrimRight(apiURL, "/") + "/")
	if err != nil {
		return nil, err
	}
	oauthURL = strings.TrimRight(oauthURL, "/")
	return &GitHubClient{
		apiURL: base,
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   oauthURL + "/login/oauth/authorize",
				TokenURL:  oauthURL + "/login/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// ExchangeCode trades an OAuth code for an access token. A refused code
// comes back as *oauth2.RetrieveError.
func (c *GitHubClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *GitHubClient) client(ctx context.Context, token string) *github.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"}))
	gh := github.NewClient(httpClient)
	base := *c.apiURL
	gh.BaseURL = &base
	return gh
}

func (c *GitHubClient) VerifyToken(ctx context.Context, token string) (*GitHubUser, error) {
	u, _, err := c.client(ctx, token).Users.Get(ctx, "")
	if err != nil {
		return nil, err
	}
	return &GitHubUser{Login: u.GetLogin(), Name: u.GetName(), Email: u.GetEmail()}, nil
}

func (c *GitHubClient) ListRepos(ctx context.Context, token string) ([]GitHubRepo, error) {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	list, _, err := c.client(ctx, token).Repositories.ListByAuthenticatedUser(ctx, opts)
	if err != nil {
		return nil, err
	}
	repos := make([]GitHubRepo, 0, len(list))
	for _, r := range list {
		repos = append(repos, toRepo(r))
	}
	return repos, nil
}

func (c *GitHubClient) CreateRepo(ctx context.Context, token, name, description string, private bool) (*GitHubRepo, error) {
	created, _, err := c.client(ctx, token).Repositories.Create(ctx, "", &github.Repository{
		Name:        github.Ptr(name),
		Description: github.Ptr(description),
		Private:     github.Ptr(private),
		AutoInit:    github.Ptr(false),
	})
	if err != nil {
		if nameTaken(err) {
			return nil, ErrRepoExists
		}
		return nil, err
	}
	repo := toRepo(created)
	return &repo, nil
}

func toRepo(r *github.Repository) GitHubRepo {
	return GitHubRepo{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		HTMLURL:       r.GetHTMLURL(),
		CloneURL:      r.GetCloneURL(),
		Private:       r.GetPrivate(),
		DefaultBranch: r.GetDefaultBranch(),
		Owner:         r.GetOwner().GetLogin(),
	}
}

func nameTaken(err error) bool {
	var ghErr *github.ErrorResponse
	if !stdErrors.As(err, &ghErr) || ghErr.Response == nil || ghErr.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, e := range ghErr.Errors {
		if strings.Contains(strings.ToLower(e.Message), "already exists") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(ghErr.Message), "already exists")
}

// githubStatus extracts the HTTP status and message of a GitHub API failure.
func githubStatus(err error) (int, string, bool) {
	var rateErr *github.RateLimitError
	if stdErrors.As(err, &rateErr) {
		return http.StatusForbidden, rateErr.Message, true
	}
	var abuseErr *github.AbuseRateLimitError
	if stdErrors.As(err, &abuseErr) {
		return http.StatusForbidden, abuseErr.Message, true
	}
	var ghErr *github.ErrorResponse
	if stdErrors.As(err, &ghErr) && ghErr.Response != nil {
		msg := ghErr.Message
		for _, e := range ghErr.Errors {
			if e.Message != "" {
				msg = e.Message
			}
		}
		if msg == "" {
			msg = http.StatusText(ghErr.Response.StatusCode)
		}
		return ghErr.Response.StatusCode, msg, true
	}
	return 0, "", false
}
