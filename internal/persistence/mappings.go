package persistence

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed mappings
var mappingsFS embed.FS

// DefaultCatalog returns a catalog with the built-in mapped packages. Each
// directory under mappings is a package; each "<order>_<entity>.sql" file in it
// is one entity.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(mappingsFS, "mappings")
}

// LoadCatalog builds a catalog from a directory of package directories.
func LoadCatalog(fsys fs.FS, root string) (*Catalog, error) {
	c := NewCatalog()

	pkgs, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapped packages: %w", err)
	}

	for _, pkg := range pkgs {
		if !pkg.IsDir() {
			continue
		}

		dir := path.Join(root, pkg.Name())
		files, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read package %s: %w", pkg.Name(), err)
		}

		var names []string
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".sql") {
				names = append(names, f.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			ddl, err := fs.ReadFile(fsys, path.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("failed to read entity %s/%s: %w", pkg.Name(), name, err)
			}
			c.Register(pkg.Name(), Entity{Name: entityName(name), DDL: string(ddl)})
		}
	}

	return c, nil
}

// entityName strips the order prefix and extension: "2_roles.sql" -> "roles".
func entityName(file string) string {
	name := strings.TrimSuffix(file, ".sql")
	if _, rest, ok := strings.Cut(name, "_"); ok {
		return rest
	}
	return name
}
