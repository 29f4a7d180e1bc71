package testhelpers

import (
	"database/sql"

	"github.com/dispatchq/dispatchq/internal/data"
)

// NewTaskRepoWithTimeProvider creates a TaskRepo with the provided TimeProvider for tests.
func NewTaskRepoWithTimeProvider(db *sql.DB, cfg data.RepoConfig, tp data.TimeProvider) *data.TaskRepo {
	cfg.TimeProvider = tp
	return data.NewTaskRepo(db, cfg)
}
