// Package data ships the default unit catalog and calculator repository
// inside the binary. CATALOG_DIR and CALCULATORS_DIR replace them at run
// time.
package data

import (
	"embed"
	"io/fs"
)

//go:embed catalog
var catalogFiles embed.FS

//go:embed calculators
var calculatorFiles embed.FS

// Catalog returns the unit and analyte documents rooted at units/ and
// analytes/.
func Catalog() fs.FS {
	return mustSub(catalogFiles, "catalog")
}

// Calculators returns the calculator documents, one per file.
func Calculators() fs.FS {
	return mustSub(calculatorFiles, "calculators")
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
