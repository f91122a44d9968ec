package scanner

import (
	"fmt"
	"path/filepath"
	"strings"
)

// target is a resolved scan: which directory to walk and which root_dir
// label to publish under.
type target struct {
	dir      TenantDir
	scanPath string
	rootDir  string
}

// findBase locates the landing directory of tenant in the configured env.
func (m *Manager) findBase(tenant string) (TenantDir, error) {
	for _, name := range m.fs.SubDirectories(m.cfg.RootPath) {
		td, ok := ParseDirName(name)
		if !ok {
			continue
		}
		if strings.EqualFold(td.Env, m.cfg.Env) && strings.EqualFold(td.Tenant, tenant) {
			return td, nil
		}
	}
	m.logger.Warn("no base directory for tenant", "tenant", tenant, "env", m.cfg.Env)
	return TenantDir{}, fmt.Errorf("tenant %q in env %q: %w", tenant, m.cfg.Env, ErrNotFound)
}

// resolve maps a scan kind and tenant to the directory that scan walks.
func (m *Manager) resolve(kind Kind, tenant string) (target, error) {
	td, err := m.findBase(tenant)
	if err != nil {
		return target{}, err
	}

	switch kind {
	case KindFailures:
		root := filepath.Join(m.cfg.RootPath, failedDir)
		path := filepath.Join(root, td.DirName)
		if !m.fs.DirExists(path) {
			m.logger.Warn("failed directory not found", "tenant", td.Tenant, "path", path)
			return target{}, fmt.Errorf("failed directory for %q: %w", td.Tenant, ErrNotFound)
		}
		return target{dir: td, scanPath: path, rootDir: root}, nil

	case KindTranscoded:
		want := td.Tenant + transcodedSuffix
		for _, name := range m.fs.SubDirectories(m.cfg.RootPath) {
			if strings.EqualFold(name, want) {
				return target{dir: td, scanPath: filepath.Join(m.cfg.RootPath, name), rootDir: m.cfg.RootPath}, nil
			}
		}
		m.logger.Warn("transcoded directory not found", "tenant", td.Tenant, "want", want)
		return target{}, fmt.Errorf("transcoded directory for %q: %w", td.Tenant, ErrNotFound)

	default:
		return target{dir: td, scanPath: filepath.Join(m.cfg.RootPath, td.DirName), rootDir: m.cfg.RootPath}, nil
	}
}
