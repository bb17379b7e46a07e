package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trackline/internal/config"
	"trackline/internal/repo"
)

const configFileName = "trackline.yml"

// ResolveOrgAndConfig picks the active organization and loads its config,
// seeding defaults when nothing exists yet. Precedence: explicit config file,
// workspace trackline.yml, built-in defaults. The org comes from the
// override, then the config file, then a single-org database.
func ResolveOrgAndConfig(ctx context.Context, workspace, configPath, orgOverride string, r repo.Repo) (string, *config.Config, error) {
	cfg, err := loadConfig(workspace, configPath)
	if err != nil {
		return "", nil, err
	}

	orgID := orgOverride
	if orgID == "" && cfg != nil {
		orgID = cfg.Org.ID
	}
	if orgID == "" {
		orgs, err := r.ListOrganizations(ctx)
		if err != nil {
			return "", nil, err
		}
		switch len(orgs) {
		case 1:
			orgID = orgs[0].ID
		case 0:
			return "", nil, fmt.Errorf("no organization found; run `tl org seed` or use --org")
		default:
			return "", nil, fmt.Errorf("multiple organizations; use --org")
		}
	}
	if cfg == nil {
		cfg = config.Default(orgID)
	}
	cfg.Org.ID = orgID

	if err := ensureOrg(ctx, r, orgID, cfg.Org.Name); err != nil {
		return "", nil, err
	}
	return orgID, cfg, nil
}

func loadConfig(workspace, configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.FromFile(configPath)
	}
	candidate := filepath.Join(workspace, configFileName)
	if _, err := os.Stat(candidate); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return config.FromFile(candidate)
}

func ensureOrg(ctx context.Context, r repo.Repo, orgID, orgName string) error {
	if orgName == "" {
		orgName = orgID
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.EnsureOrg(ctx, tx, orgID, orgName, now); err != nil {
		return fmt.Errorf("ensure org: %w", err)
	}
	return tx.Commit()
}
