package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SqexFile is a file inside the installation, addressed relative to its root
type SqexFile struct {
	RelativePath string
}

// FullPath joins the file onto an installation root
func (f *SqexFile) FullPath(gamePath string) string {
	return filepath.Join(gamePath, filepath.FromSlash(f.RelativePath))
}

// GetExpansionFolder maps an expansion id to its folder name
func GetExpansionFolder(expansionId byte) string {
	if expansionId == 0 {
		return "ffxiv"
	}
	return fmt.Sprintf("ex%d", expansionId)
}

// GetAllExpansionFiles lists the regular files directly under the sqpack and movie
// folders of an expansion. Folders that do not exist are skipped.
func GetAllExpansionFiles(gamePath string, expansionId uint16) ([]string, error) {
	expansionFolder := GetExpansionFolder(byte(expansionId))

	var files []string
	for _, root := range []string{"sqpack", "movie"} {
		dir := filepath.Join(gamePath, root, expansionFolder)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}

		for _, entry := range entries {
			if entry.Type().IsRegular() {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}
	return files, nil
}
