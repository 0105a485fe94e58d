// Package app wires configured storage backends for the entrypoints.
package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rohilsavliya09/smarty-dash/internal/auth"
	"github.com/rohilsavliya09/smarty-dash/internal/config"
	"github.com/rohilsavliya09/smarty-dash/internal/otp"
	otprepo "github.com/rohilsavliya09/smarty-dash/internal/otp/repo"
	"github.com/rohilsavliya09/smarty-dash/internal/task"
	taskrepo "github.com/rohilsavliya09/smarty-dash/internal/task/repo"
	userrepo "github.com/rohilsavliya09/smarty-dash/internal/user/repo"
	"github.com/rohilsavliya09/smarty-dash/pkg/database"
)

// Stores holds one backend per store. DB is nil for the memory backend.
type Stores struct {
	Users auth.CredentialStore
	Codes otp.Repository
	Tasks task.Repository
	DB    *sqlx.DB
}

func (s *Stores) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// OpenStores builds the backend selected by cfg.Store. With migrate set the
// postgres schema is brought up to date first.
func OpenStores(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger, migrate bool) (*Stores, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warnw("using in-memory store; data is lost on restart")
		return &Stores{
			Users: userrepo.NewMemoryRepo(),
			Codes: otprepo.NewMemoryRepo(),
			Tasks: taskrepo.NewMemoryRepo(),
		}, nil
	case config.StorePostgres:
		sqlDB, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(ctx, sqlDB); err != nil {
				sqlDB.Close()
				return nil, err
			}
		}
		db := sqlx.NewDb(sqlDB, cfg.Database.Driver)
		logger.Infow("connected to postgres", "driver", cfg.Database.Driver)
		return &Stores{
			Users: userrepo.NewUserRepo(db),
			Codes: otprepo.NewCodeRepo(db),
			Tasks: taskrepo.NewTaskRepo(db),
			DB:    db,
		}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}
