package storage

import (
	"errors"
	"strings"

	"timetrigger/internal/vcs"
	logx "timetrigger/pkg/logx"
)

// Open initializes the configured store. repo is only used by the git driver.
func Open(cfg Config, repo *vcs.Repo, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "git":
		if repo == nil {
			return nil, errors.New("git storage driver needs a repository")
		}
		return newGitStore(cfg, repo, log), nil
	case "file":
		return newFileStore(cfg, log), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
