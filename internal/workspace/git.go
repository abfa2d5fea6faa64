package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// TokenEnv holds the access token used when pushing over HTTPS.
const TokenEnv = "AIENV_GIT_TOKEN"

// VersionControl initialises a directory as a repository with one commit
// and optionally publishes it to a remote.
type VersionControl interface {
	InitRepository(dir, message string) (string, error)
	Publish(dir, remoteURL string) error
}

// GitRepository manages project repositories with go-git.
type GitRepository struct {
	AuthorName  string
	AuthorEmail string
	// Username and Token authenticate HTTPS pushes; an empty Token pushes
	// without credentials.
	Username string
	Token    string
}

func NewGitRepository() *GitRepository {
	return &GitRepository{
		AuthorName:  "aienv",
		AuthorEmail: "aienv@localhost",
		Username:    "oauth2",
		Token:       os.Getenv(TokenEnv),
	}
}

// InitRepository runs the equivalent of git init, add and commit in dir and
// returns the commit hash.
func (g *GitRepository) InitRepository(dir, message string) (string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", fmt.Errorf("project directory does not exist: %s", dir)
	}

	slog.Info("Initializing git repository", "directory", dir)

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return "", fmt.Errorf("failed to initialize git repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("failed to add files to git: %w", err)
	}

	commit, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.AuthorName,
			Email: g.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create initial commit: %w", err)
	}

	slog.Info("Created initial commit", "hash", commit.String())
	return commit.String(), nil
}

// Publish adds remoteURL as origin and pushes the current branch to it.
func (g *GitRepository) Publish(dir, remoteURL string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("failed to open git repository: %w", err)
	}

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})
	if err != nil {
		return fmt.Errorf("failed to add remote origin: %w", err)
	}

	opts := &git.PushOptions{RemoteName: "origin"}
	if g.Token != "" {
		opts.Auth = &http.BasicAuth{Username: g.Username, Password: g.Token}
	}
	if err := repo.Push(opts); err != nil {
		return fmt.Errorf("failed to push to remote repository: %w", err)
	}

	slog.Info("Pushed project repository", "directory", dir, "url", remoteURL)
	return nil
}
