package fetch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"
)

// replaceInPlace is the degraded replace used when renaming over the
// destination fails. An existing regular file is swapped through go-update,
// which moves it aside and restores it if the new file cannot take its
// place. When there is nothing to swap, or the swap fails, the staged
// content is copied into the destination.
//
// go-update reads the whole artifact into memory before writing it.
func replaceInPlace(staged *Staged) error {
	info, err := os.Stat(staged.Destination)

	switch {
	case err == nil && info.Mode().IsRegular():
		swapErr := swapWithBackup(staged)
		if swapErr == nil {
			return nil
		}

		if copyErr := copyInto(staged); copyErr != nil {
			return errors.Join(swapErr, copyErr)
		}

		return nil
	case err == nil, errors.Is(err, os.ErrNotExist):
		return copyInto(staged)
	default:
		return fmt.Errorf("stat destination: %w", err)
	}
}

func swapWithBackup(staged *Staged) error {
	src, err := os.Open(staged.TempPath)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	options := goupdate.Options{
		TargetPath: staged.Destination,
		TargetMode: staged.mode,
	}

	if err = goupdate.Apply(src, options); err != nil {
		// go-update stages next to the target and leaves that file behind on failure.
		_ = os.Remove(swapPath(staged.Destination))

		if rollbackErr := goupdate.RollbackError(err); rollbackErr != nil {
			return fmt.Errorf("swap with backup: %w; restore: %w", err, rollbackErr)
		}

		return fmt.Errorf("swap with backup: %w", err)
	}

	return nil
}

func swapPath(destination string) string {
	return filepath.Join(filepath.Dir(destination), "."+filepath.Base(destination)+".new")
}

// copyInto overwrites the destination with the staged bytes.
func copyInto(staged *Staged) error {
	src, err := os.Open(staged.TempPath)
	if err != nil {
		return fmt.Errorf("open staged file: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	dst, err := os.OpenFile(staged.Destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, staged.mode)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}

	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()

		return fmt.Errorf("copy into destination: %w", err)
	}

	if err = dst.Sync(); err != nil {
		_ = dst.Close()

		return fmt.Errorf("sync destination: %w", err)
	}

	if err = dst.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	if err = os.Chmod(staged.Destination, staged.mode); err != nil {
		return fmt.Errorf("chmod destination: %w", err)
	}

	return nil
}
