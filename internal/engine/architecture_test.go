package engine_test

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestDomainPackageStaysDependencyFree ensures pkg/domain never grows imports
// on internal packages. Collaborator implementations depend on domain, not
// the other way around.
func TestDomainPackageStaysDependencyFree(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "ticketcore/pkg/domain")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	for _, pkg := range pkgs {
		for importPath := range pkg.Imports {
			if strings.HasPrefix(importPath, "ticketcore/internal") {
				t.Errorf("pkg/domain imports internal package %s", importPath)
			}
		}
	}
}

// TestOnlyStorageLayerTouchesDatabaseSQL ensures SQL access stays behind the
// engine store and the persistence openers. Everything else works through the
// service API.
func TestOnlyStorageLayerTouchesDatabaseSQL(t *testing.T) {
	allowed := map[string]struct{}{
		"ticketcore/internal/engine":                     {},
		"ticketcore/internal/infra/persistence":          {},
		"ticketcore/internal/infra/persistence/sqlite":   {},
		"ticketcore/internal/infra/persistence/postgres": {},
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "ticketcore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		if _, ok := allowed[pkg.PkgPath]; ok {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == "database/sql" {
				seen[pkg.PkgPath] = struct{}{}
			}
		}
	}
	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		t.Fatalf("packages import database/sql outside the storage layer: %v", violations)
	}
}
