package shapefile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FixAttributeTable moves the attribute table written by shp.Writer to the
// path shp.Open reads. go-shp v0.1.1 names it "<base>dbf" instead of
// "<base>.dbf". Call it after the writer is closed; it is a no-op when the
// table already sits at "<base>.dbf".
func FixAttributeTable(shpPath string) error {
	base := strings.TrimSuffix(shpPath, ".shp")
	misplaced := base + "dbf"
	if _, err := os.Stat(misplaced); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := os.Rename(misplaced, base+".dbf"); err != nil {
		return fmt.Errorf("move attribute table: %w", err)
	}
	return nil
}
