package gitmirror

import (
	"context"
	stdErrors "errors"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"devunity/internal/document"
	"devunity/internal/domain"
	"devunity/internal/errors"
	"devunity/internal/folder"
	"devunity/internal/worker"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type Folders interface {
	Authorize(ctx context.Context, folderID, userID uint64, required domain.Permission) (*domain.Folder, domain.Permission, error)
	Contents(ctx context.Context, folderID uint64) (*folder.Contents, error)
	SetGithubRepo(ctx context.Context, folderID uint64, repo *domain.GithubRepo) error
}

type Documents interface {
	CreateDocument(ctx context.Context, userID uint64, input document.CreateInput) (*domain.Document, error)
	ReplaceContent(ctx context.Context, docID, userID uint64, content, message string) (*domain.Version, error)
}

type Service interface {
	Authenticate(ctx context.Context, code string) (*AuthResult, error)
	VerifyToken(ctx context.Context, token string) (*GitHubUser, error)
	ListRepos(ctx context.Context, token string) ([]GitHubRepo, error)
	CreateRepository(ctx context.Context, user *domain.User, token string, input RepoInput) (*domain.GithubRepo, error)
	Initialize(ctx context.Context, user *domain.User, folderID uint64, token, readme string) (*domain.GithubRepo, error)
	LocalInit(ctx context.Context, user *domain.User, folderID uint64) (*Status, error)
	Status(ctx context.Context, user *domain.User, folderID uint64) (*Status, error)
	CommitAndPush(ctx context.Context, user *domain.User, folderID uint64, token, message string) (*CommitResult, error)
	Sync(ctx context.Context, user *domain.User, folderID uint64, token string) (*SyncResult, error)
	Files(ctx context.Context, user *domain.User, folderID uint64) ([]string, error)
	Publish(ctx context.Context, user *domain.User, token string, input RepoInput) (*domain.GithubRepo, error)
}

type RepoInput struct {
	FolderID    uint64
	Name        string
	Description string
	Private     bool
	Readme      string
}

type AuthResult struct {
	Token string      `json:"token"`
	User  *GitHubUser `json:"user"`
}

type Status struct {
	NeedsInitialization bool               `json:"needsInitialization"`
	Repository          *domain.GithubRepo `json:"repository,omitempty"`
	Branch              string             `json:"branch,omitempty"`
	Staged              []string           `json:"staged"`
	Modified            []string           `json:"modified"`
	Untracked           []string           `json:"untracked"`
	Deleted             []string           `json:"deleted"`
}

type CommitResult struct {
	Committed  bool               `json:"committed"`
	Repository *domain.GithubRepo `json:"repository"`
}

type SyncResult struct {
	Updated    []string           `json:"updated"`
	Created    []string           `json:"created"`
	Repository *domain.GithubRepo `json:"repository"`
}

const (
	defaultBranch        = "main"
	defaultCommitMessage = "Update from DevUnity"
	initialCommitMessage = "Initial commit from DevUnity"
	syncVersionMessage   = "Synced from GitHub"
	readmeFile           = "README.md"
)

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)

type DefaultService struct {
	github    GitHub
	git       Runner
	mirror    *Mirror
	folders   Folders
	documents Documents
	pool      worker.Submitter
	webURL    string
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the mirror. webURL is the host remotes are cloned from,
// https://github.com in production.
func NewService(github GitHub, git Runner, mirror *Mirror, folders Folders, documents Documents,
	pool worker.Submitter, webURL string, log *zap.Logger) *DefaultService {
	if log == nil {
		log = zap.NewNop()
	}
	if pool == nil {
		pool = worker.Inline{}
	}
	return &DefaultService{
		github:    github,
		git:       git,
		mirror:    mirror,
		folders:   folders,
		documents: documents,
		pool:      pool,
		webURL:    strings.TrimRight(webURL, "/"),
		log:       log,
		now:       time.Now,
	}
}

func (s *DefaultService) Authenticate(ctx context.Context, code string) (*AuthResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.BadRequest("Authorization code is required", nil)
	}
	token, err := s.github.ExchangeCode(ctx, code)
	if err != nil {
		return nil, mapError(err)
	}
	user, err := s.github.VerifyToken(ctx, token)
	if err != nil {
		return nil, mapError(err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *DefaultService) VerifyToken(ctx context.Context, token string) (*GitHubUser, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	user, err := s.github.VerifyToken(ctx, token)
	if err != nil {
		return nil, mapError(err)
	}
	return user, nil
}

func (s *DefaultService) ListRepos(ctx context.Context, token string) ([]GitHubRepo, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	repos, err := s.github.ListRepos(ctx, token)
	if err != nil {
		return nil, mapError(err)
	}
	return repos, nil
}

// CreateRepository creates the remote and links it to the folder. The first
// push happens in the background and its failure is only logged.
func (s *DefaultService) CreateRepository(ctx context.Context, user *domain.User, token string, input RepoInput) (*domain.GithubRepo, error) {
	repo, err := s.createRepository(ctx, user, token, input)
	if err != nil {
		return nil, err
	}

	initial := *repo
	s.pool.Submit("mirror-init", func(ctx context.Context) error {
		_, err := s.initialize(ctx, user, input.FolderID, &initial, token, input.Readme)
		return err
	})
	return repo, nil
}

func (s *DefaultService) createRepository(ctx context.Context, user *domain.User, token string, input RepoInput) (*domain.GithubRepo, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	if !repoNamePattern.MatchString(input.Name) {
		return nil, errors.BadRequest("Repository name may only contain letters, digits, '.', '-' and '_'", nil)
	}

	f, _, err := s.folders.Authorize(ctx, input.FolderID, user.ID, domain.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if f.GithubRepo != nil {
		return nil, errors.Conflict("Folder is already linked to a repository", nil)
	}

	created, err := s.github.CreateRepo(ctx, token, input.Name, input.Description, input.Private)
	if err != nil {
		return nil, mapError(err)
	}

	repo := &domain.GithubRepo{
		Name:          created.Name,
		FullName:      created.FullName,
		URL:           created.HTMLURL,
		Owner:         created.Owner,
		DefaultBranch: created.DefaultBranch,
	}
	if repo.DefaultBranch == "" {
		repo.DefaultBranch = defaultBranch
	}
	if err := s.folders.SetGithubRepo(ctx, input.FolderID, repo); err != nil {
		return nil, errors.Internal(err)
	}

	s.log.Info("repository linked",
		zap.Uint64("folder_id", input.FolderID),
		zap.String("repository", repo.FullName),
	)
	return repo, nil
}

func (s *DefaultService) Initialize(ctx context.Context, user *domain.User, folderID uint64, token, readme string) (*domain.GithubRepo, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	f, _, err := s.folders.Authorize(ctx, folderID, user.ID, domain.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if f.GithubRepo == nil {
		return nil, errors.BadRequest("Folder is not linked to a repository", nil)
	}
	return s.initialize(ctx, user, folderID, f.GithubRepo, token, readme)
}

// initialize brings the mirror to a pushed state. A rejected push is retried
// with force since the local tree mirrors the database.
func (s *DefaultService) initialize(ctx context.Context, user *domain.User, folderID uint64, repo *domain.GithubRepo, token, readme string) (*domain.GithubRepo, error) {
	if readme != "" {
		if err := s.ensureReadme(ctx, user, folderID, readme); err != nil {
			return nil, err
		}
	}

	dir, err := s.prepare(ctx, user, folderID, repo.DefaultBranch)
	if err != nil {
		return nil, mapError(err)
	}
	if err := s.setRemote(ctx, dir, token, repo.FullName); err != nil {
		return nil, mapError(err)
	}
	if err := s.writeContents(ctx, folderID); err != nil {
		return nil, mapError(err)
	}
	if _, err := s.commitIfChanged(ctx, dir, initialCommitMessage); err != nil {
		return nil, mapError(err)
	}

	branch := branchOf(repo)
	if _, err := s.git.Run(ctx, dir, "pull", "origin", branch, "--allow-unrelated-histories", "--no-rebase", "--no-edit"); err != nil {
		// an empty remote has nothing to pull
		s.git.Run(ctx, dir, "merge", "--abort")
	}
	if _, err := s.git.Run(ctx, dir, "push", "-u", "origin", branch); err != nil {
		if !isRejected(err) {
			return nil, mapError(err)
		}
		if _, err := s.git.Run(ctx, dir, "push", "-u", "--force", "origin", branch); err != nil {
			return nil, mapError(err)
		}
	}

	return s.markSynced(ctx, folderID, repo)
}

func (s *DefaultService) ensureReadme(ctx context.Context, user *domain.User, folderID uint64, readme string) error {
	contents, err := s.folders.Contents(ctx, folderID)
	if err != nil {
		return err
	}
	for _, doc := range contents.Documents {
		if doc.FolderID != nil && *doc.FolderID == folderID && doc.Title == readmeFile {
			return nil
		}
	}
	_, err = s.documents.CreateDocument(ctx, user.ID, document.CreateInput{
		Title:    readmeFile,
		Content:  readme,
		Language: "markdown",
		FolderID: &folderID,
	})
	return err
}

func (s *DefaultService) LocalInit(ctx context.Context, user *domain.User, folderID uint64) (*Status, error) {
	f, _, err := s.folders.Authorize(ctx, folderID, user.ID, domain.PermissionWrite)
	if err != nil {
		return nil, err
	}

	dir, err := s.prepare(ctx, user, folderID, branchOf(f.GithubRepo))
	if err != nil {
		return nil, mapError(err)
	}
	if err := s.writeContents(ctx, folderID); err != nil {
		return nil, mapError(err)
	}
	if _, err := s.commitIfChanged(ctx, dir, initialCommitMessage); err != nil {
		return nil, mapError(err)
	}
	return s.status(ctx, f)
}

func (s *DefaultService) Status(ctx context.Context, user *domain.User, folderID uint64) (*Status, error) {
	f, _, err := s.folders.Authorize(ctx, folderID, user.ID, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	// a local-only mirror still reports as unlinked
	if f.GithubRepo == nil {
		return emptyStatus(true, nil), nil
	}
	return s.status(ctx, f)
}

func emptyStatus(needsInit bool, repo *domain.GithubRepo) *Status {
	return &Status{
		NeedsInitialization: needsInit,
		Repository:          repo,
		Staged:              []string{},
		Modified:            []string{},
		Untracked:           []string{},
		Deleted:             []string{},
	}
}

func (s *DefaultService) status(ctx context.Context, f *domain.Folder) (*Status, error) {
	if err := s.writeContents(ctx, f.ID); err != nil {
		return nil, mapError(err)
	}

	st := emptyStatus(f.GithubRepo == nil || !f.GithubRepo.IsInitialized, f.GithubRepo)
	if !s.mirror.HasRepository(f.ID) {
		st.NeedsInitialization = true
		files, err := s.mirror.ListFiles(f.ID)
		if err != nil {
			return nil, errors.Internal(err)
		}
		st.Untracked = files
		return st, nil
	}

	dir := s.mirror.Dir(f.ID)
	if out, err := s.git.Run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		st.Branch = strings.TrimSpace(out)
	}
	out, err := s.git.Run(ctx, dir, "status", "--porcelain", "--", ".")
	if err != nil {
		return nil, mapError(err)
	}
	parsePorcelain(out, st)
	return st, nil
}

// parsePorcelain sorts `git status --porcelain` lines into st.
func parsePorcelain(out string, st *Status) {
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		x, y := line[0], line[1]
		name := line[3:]
		if i := strings.Index(name, " -> "); i >= 0 {
			name = name[i+4:]
		}
		if strings.HasPrefix(name, `"`) {
			if unquoted, err := strconv.Unquote(name); err == nil {
				name = unquoted
			}
		}

		if x == '?' && y == '?' {
			st.Untracked = append(st.Untracked, name)
			continue
		}
		if x != ' ' {
			st.Staged = append(st.Staged, name)
		}
		if y == 'M' {
			st.Modified = append(st.Modified, name)
		}
		if x == 'D' || y == 'D' {
			st.Deleted = append(st.Deleted, name)
		}
	}
}

func (s *DefaultService) CommitAndPush(ctx context.Context, user *domain.User, folderID uint64, token, message string) (*CommitResult, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	f, _, err := s.folders.Authorize(ctx, folderID, user.ID, domain.PermissionWrite)
	if err != nil {
		return nil, err
	}
	if f.GithubRepo == nil {
		return nil, errors.BadRequest("Folder is not linked to a repository", nil)
	}
	if strings.TrimSpace(message) == "" {
		message = defaultCommitMessage
	}

	branch := branchOf(f.GithubRepo)
	dir, err := s.prepare(ctx, user, folderID, branch)
	if err != nil {
		return nil, mapError(err)
	}
	if err := s.setRemote(ctx, dir, token, f.GithubRepo.FullName); err != nil {
		return nil, mapError(err)
	}
	if err := s.writeContents(ctx, folderID); err != nil {
		return nil, mapError(err)
	}
	committed, err := s.commitIfChanged(ctx, dir, message)
	if err != nil {
		return nil, mapError(err)
	}

	if err := s.push(ctx, dir, branch); err != nil {
		return nil, mapError(err)
	}

	repo, err := s.markSynced(ctx, folderID, f.GithubRepo)
	if err != nil {
		return nil, err
	}
	return &CommitResult{Committed: committed, Repository: repo}, nil
}

// push relies on the configured upstream first; a branch without one is
// pushed with --set-upstream.
func (s *DefaultService) push(ctx context.Context, dir, branch string) error {
	_, err := s.git.Run(ctx, dir, "push")
	switch {
	case err == nil:
		return nil
	case isNoUpstream(err):
		_, err = s.git.Run(ctx, dir, "push", "--set-upstream", "origin", branch)
		return err
	case isRejected(err):
		if _, err := s.git.Run(ctx, dir, "pull", "origin", branch, "--no-rebase", "--no-edit"); err != nil {
			return err
		}
		_, err = s.git.Run(ctx, dir, "push", "origin", branch)
		return err
	default:
		return err
	}
}

// Sync pulls the remote and imports the result. Changed documents get a new
// version; files at the top of the tree without a document become documents.
func (s *DefaultService) Sync(ctx context.Context, user *domain.User, folderID uint64, token string) (*SyncResult, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	f, _, err := s.folders.Authorize(ctx, folderID, user.ID, domain.PermissionWrite)
	if err != nil {
		return nil, err
	}
	if f.GithubRepo == nil {
		return nil, errors.BadRequest("Folder is not linked to a repository", nil)
	}

	branch := branchOf(f.GithubRepo)
	dir, err := s.prepare(ctx, user, folderID, branch)
	if err != nil {
		return nil, mapError(err)
	}
	if err := s.setRemote(ctx, dir, token, f.GithubRepo.FullName); err != nil {
		return nil, mapError(err)
	}
	if _, err := s.git.Run(ctx, dir, "pull", "origin", branch, "--allow-unrelated-histories", "--no-rebase", "--no-edit"); err != nil {
		return nil, mapError(err)
	}

	contents, err := s.folders.Contents(ctx, folderID)
	if err != nil {
		return nil, err
	}
	docs := make(map[string]domain.Document, len(contents.Documents))
	layout := Layout(folderID, contents.Folders, contents.Documents)
	for _, doc := range contents.Documents {
		if p, ok := layout[doc.ID]; ok {
			docs[p] = doc
		}
	}

	files, err := s.mirror.ReadFiles(folderID)
	if err != nil {
		return nil, errors.Internal(err)
	}

	result := &SyncResult{Updated: []string{}, Created: []string{}}
	for _, file := range files {
		if doc, ok := docs[file.Path]; ok {
			if doc.Content == file.Content {
				continue
			}
			if _, err := s.documents.ReplaceContent(ctx, doc.ID, user.ID, file.Content, syncVersionMessage); err != nil {
				return nil, err
			}
			result.Updated = append(result.Updated, file.Path)
			continue
		}
		if strings.Contains(file.Path, "/") {
			continue
		}
		if _, err := s.documents.CreateDocument(ctx, user.ID, document.CreateInput{
			Title:    file.Path,
			Content:  file.Content,
			Language: languageFor(file.Path),
			FolderID: &folderID,
		}); err != nil {
			return nil, err
		}
		result.Created = append(result.Created, file.Path)
	}

	repo, err := s.markSynced(ctx, folderID, f.GithubRepo)
	if err != nil {
		return nil, err
	}
	result.Repository = repo
	return result, nil
}

func (s *DefaultService) Files(ctx context.Context, user *domain.User, folderID uint64) ([]string, error) {
	if _, _, err := s.folders.Authorize(ctx, folderID, user.ID, domain.PermissionRead); err != nil {
		return nil, err
	}
	if err := s.writeContents(ctx, folderID); err != nil {
		return nil, mapError(err)
	}
	files, err := s.mirror.ListFiles(folderID)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return files, nil
}

// Publish links a repository when the folder has none, then pushes.
func (s *DefaultService) Publish(ctx context.Context, user *domain.User, token string, input RepoInput) (*domain.GithubRepo, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	f, _, err := s.folders.Authorize(ctx, input.FolderID, user.ID, domain.PermissionAdmin)
	if err != nil {
		return nil, err
	}

	repo := f.GithubRepo
	if repo == nil {
		if input.Name == "" {
			input.Name = f.Name
		}
		if repo, err = s.createRepository(ctx, user, token, input); err != nil {
			return nil, err
		}
	}
	return s.initialize(ctx, user, input.FolderID, repo, token, input.Readme)
}

// prepare makes sure the mirror is a git repository with the user's identity.
func (s *DefaultService) prepare(ctx context.Context, user *domain.User, folderID uint64, branch string) (string, error) {
	dir, err := s.mirror.Ensure(folderID)
	if err != nil {
		return "", err
	}
	if !s.mirror.HasRepository(folderID) {
		if _, err := s.git.Run(ctx, dir, "init"); err != nil {
			return "", err
		}
		if _, err := s.git.Run(ctx, dir, "symbolic-ref", "HEAD", "refs/heads/"+branch); err != nil {
			return "", err
		}
	}
	if _, err := s.git.Run(ctx, dir, "config", "user.name", user.Username); err != nil {
		return "", err
	}
	if _, err := s.git.Run(ctx, dir, "config", "user.email", user.Email); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *DefaultService) remoteURL(token, fullName string) (string, error) {
	u, err := url.Parse(s.webURL)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword("x-access-token", token)
	u.Path = path.Join("/", fullName) + ".git"
	return u.String(), nil
}

func (s *DefaultService) setRemote(ctx context.Context, dir, token, fullName string) error {
	remote, err := s.remoteURL(token, fullName)
	if err != nil {
		return err
	}
	if _, err := s.git.Run(ctx, dir, "remote", "set-url", "origin", remote); err == nil {
		return nil
	}
	_, err = s.git.Run(ctx, dir, "remote", "add", "origin", remote)
	return err
}

// writeContents rewrites the mirror from the database.
func (s *DefaultService) writeContents(ctx context.Context, folderID uint64) error {
	contents, err := s.folders.Contents(ctx, folderID)
	if err != nil {
		return err
	}
	layout := Layout(folderID, contents.Folders, contents.Documents)
	files := make([]File, 0, len(layout))
	for _, doc := range contents.Documents {
		if p, ok := layout[doc.ID]; ok {
			files = append(files, File{Path: p, Content: doc.Content})
		}
	}
	return s.mirror.WriteDocuments(folderID, files)
}

func (s *DefaultService) commitIfChanged(ctx context.Context, dir, message string) (bool, error) {
	if _, err := s.git.Run(ctx, dir, "add", "-A"); err != nil {
		return false, err
	}
	out, err := s.git.Run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(out) == "" {
		return false, nil
	}
	if _, err := s.git.Run(ctx, dir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

func (s *DefaultService) markSynced(ctx context.Context, folderID uint64, repo *domain.GithubRepo) (*domain.GithubRepo, error) {
	updated := *repo
	now := s.now()
	updated.IsInitialized = true
	updated.LastSynced = &now
	if err := s.folders.SetGithubRepo(ctx, folderID, &updated); err != nil {
		return nil, errors.Internal(err)
	}
	return &updated, nil
}

func branchOf(repo *domain.GithubRepo) string {
	if repo == nil || repo.DefaultBranch == "" {
		return defaultBranch
	}
	return repo.DefaultBranch
}

func requireToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return errors.Unauthorized("GitHub token is required", nil)
	}
	return nil
}

var languages = map[string]string{
	".go":   "go",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".py":   "python",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".html": "html",
	".css":  "css",
	".json": "json",
	".yml":  "yaml",
	".yaml": "yaml",
	".md":   "markdown",
	".sql":  "sql",
	".sh":   "shell",
}

func languageFor(name string) string {
	if lang, ok := languages[strings.ToLower(path.Ext(name))]; ok {
		return lang
	}
	return "plaintext"
}

func mapError(err error) error {
	var apiErr *errors.APIError
	if stdErrors.As(err, &apiErr) {
		return apiErr
	}
	if stdErrors.Is(err, ErrRepoExists) {
		return errors.Conflict("A repository with this name already exists", err)
	}

	var retrieveErr *oauth2.RetrieveError
	if stdErrors.As(err, &retrieveErr) {
		msg := retrieveErr.ErrorDescription
		if msg == "" {
			msg = "GitHub rejected the authorization code"
		}
		return errors.Unauthorized(msg, err)
	}

	if status, msg, ok := githubStatus(err); ok {
		switch status {
		case http.StatusUnauthorized:
			return errors.Unauthorized("GitHub token is invalid or expired", err)
		case http.StatusForbidden:
			return errors.Forbidden("GitHub denied access: "+msg, err)
		case http.StatusNotFound:
			return errors.NotFound("GitHub repository not found", err)
		case http.StatusConflict:
			return errors.Conflict(msg, err)
		case http.StatusUnprocessableEntity:
			return errors.BadRequest(msg, err)
		}
		return errors.New(http.StatusInternalServerError, "GitHub request failed: "+msg, err)
	}

	var gitErr *GitError
	if stdErrors.As(err, &gitErr) {
		if outputContains(err, "authentication failed", "could not read username", "invalid username or password") {
			return errors.Unauthorized("GitHub rejected the credentials", err)
		}
		if outputContains(err, "repository not found") {
			return errors.NotFound("GitHub repository not found", err)
		}
		return errors.New(http.StatusInternalServerError, "Git operation failed: "+firstLine(gitErr.Output), err)
	}
	return errors.Internal(err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "unknown error"
	}
	return s
}
