// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile decompresses f and writes the contents to targetPath with
// the given permissions, creating parent directories as needed. The
// write goes through a temporary file in the target directory and a
// rename, so a crash mid-write never leaves a half-written target.
func WriteFile(f *CompressedFile, targetPath string, perms fs.FileMode) error {
	contents, err := f.Contents()
	if err != nil {
		return err
	}

	directory := filepath.Dir(targetPath)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}

	temporary, err := os.CreateTemp(directory, "."+filepath.Base(targetPath)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file in %s: %w", directory, err)
	}
	temporaryPath := temporary.Name()

	if _, err := temporary.Write(contents); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := temporary.Chmod(perms); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("setting permissions on %s: %w", temporaryPath, err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}

	if err := os.Rename(temporaryPath, targetPath); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
