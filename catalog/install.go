package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/signalsfoundry/meteor-showers/internal/logging"
)

// CompareVersions orders dotted numeric versions ("1.10.2" > "1.9").
// Missing components count as zero; non-numeric components compare as text.
func CompareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		xn, xerr := strconv.Atoi(orZero(x))
		yn, yerr := strconv.Atoi(orZero(y))
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				if xn < yn {
					return -1
				}
				return 1
			}
		default:
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
		}
	}
	return 0
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// Install prepares the catalog file at path and loads it into the store.
// A missing file, or one older than the built-in catalog, is replaced by the
// built-in catalog. A file that fails to load is moved aside to its backup
// and the built-in catalog is installed in its place.
func (s *Store) Install(path string) error {
	ctx := context.Background()
	wrote, err := EnsureFile(path)
	if err != nil {
		return fmt.Errorf("install default catalog: %w", err)
	}
	if wrote {
		s.log.Info(ctx, "installed built-in catalog", logging.String("path", path))
	} else if onDisk, builtIn := VersionOf(path), VersionOfBytes(defaultCatalog); CompareVersions(onDisk, builtIn) < 0 {
		s.log.Info(ctx, "catalog on disk is older than built-in; restoring",
			logging.String("path", path),
			logging.String("version", onDisk),
			logging.String("built_in_version", builtIn),
		)
		if err := RestoreDefault(path); err != nil {
			return fmt.Errorf("restore default catalog: %w", err)
		}
	}

	loadErr := s.LoadFile(path)
	if loadErr == nil {
		return nil
	}
	backup, err := BackupFile(path, true)
	if err != nil {
		return fmt.Errorf("move invalid catalog aside: %w", err)
	}
	s.log.Warn(ctx, "catalog invalid; replaced by built-in catalog",
		logging.String("path", path),
		logging.String("backup", backup),
		logging.Err(loadErr),
	)
	if err := WriteFile(path, defaultCatalog); err != nil {
		return fmt.Errorf("write default catalog: %w", err)
	}
	return s.LoadFile(path)
}
