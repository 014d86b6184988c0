// Package repo bootstraps the git repository of a new site.
package repo

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"go.uber.org/zap"

	"gitsite/internal/util"
)

// RemoteName is the remote added to a freshly bootstrapped repository.
const RemoteName = "origin"

// Boot makes sure path is a git repository. When the repository has no
// remote yet, an origin pointing at github.com/<user.name>/<package name> is
// added, using the global git user.name. Without a user name no remote is added.
func Boot(path string, log *zap.Logger) (*git.Repository, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, err
	}

	r, err := git.PlainOpen(path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		log.Info("initializing git repository", zap.String("path", path))
		r, err = git.PlainInit(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	remotes, err := r.Remotes()
	if err != nil {
		return nil, fmt.Errorf("list remotes of %s: %w", path, err)
	}
	if len(remotes) > 0 {
		return r, nil
	}

	user, err := globalUserName()
	if err != nil {
		return nil, err
	}
	if user == "" {
		log.Warn("git user.name is not set, skipping origin remote", zap.String("path", path))
		return r, nil
	}

	name, err := util.PackageName(path)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://github.com/%s/%s.git", user, name)
	if _, err := r.CreateRemote(&gitcfg.RemoteConfig{Name: RemoteName, URLs: []string{url}}); err != nil {
		return nil, fmt.Errorf("add remote %s: %w", RemoteName, err)
	}
	log.Info("added git remote", zap.String("remote", RemoteName), zap.String("url", url))
	return r, nil
}

func globalUserName() (string, error) {
	cfg, err := gitcfg.LoadConfig(gitcfg.GlobalScope)
	if err != nil {
		return "", fmt.Errorf("load global git config: %w", err)
	}
	return strings.TrimSpace(cfg.User.Name), nil
}
