package aggregate

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"

	"ephyscore/testutil"
)

// TestAggregateStaysPure ensures the aggregation package never reaches into
// storage, rendering or database drivers. Figures feed it plain slices.
func TestAggregateStaysPure(t *testing.T) {
	forbidden := []string{
		"ephyscore/internal/infra",
		"ephyscore/internal/render",
		"ephyscore/internal/figures",
		"ephyscore/internal/blob",
		"database/sql",
		"modernc.org/sqlite",
		"github.com/jackc/pgx/v5",
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports}
	pkgs, err := packages.Load(cfg, "ephyscore/internal/aggregate")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		for importPath := range pkg.Imports {
			for _, prefix := range forbidden {
				if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
					violations = append(violations, pkg.PkgPath+": "+importPath)
				}
			}
		}
	}
	if len(violations) > 0 {
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import: %s", v)
		}
		t.Fatalf("found %d forbidden imports in aggregate", len(violations))
	}
}

func TestAggregateSourcesAvoidPlotting(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.Any(testutil.RenderingImportForbidden, testutil.DriverImportForbidden), "aggregation works on plain slices")
}
