package download

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// RenameFunc moves a finished temporary file into place. os.Rename is used unless replaced.
type RenameFunc func(oldPath, newPath string) error

type stagingConfig struct {
	baseTempDir string
	rename      RenameFunc
}

// A stagedFile is a partial download. Nothing appears at the destination until commit succeeds.
type stagedFile struct {
	*os.File
	config      stagingConfig
	destination string
	written     int64
	log         *zap.SugaredLogger
}

func newStagedFile(config stagingConfig, destination string, log *zap.SugaredLogger) (*stagedFile, error) {
	// Create target directory
	targetDir := filepath.Dir(destination)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, err
	}
	// Temporary files live beside the destination so the final rename stays on one volume
	tempDir := config.baseTempDir
	if tempDir == "" {
		tempDir = targetDir
	} else if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(tempDir, "."+filepath.Base(destination)+".*.part")
	if err != nil {
		return nil, err
	}
	return &stagedFile{
		File:        f,
		config:      config,
		destination: destination,
		log:         log,
	}, nil
}

func (s *stagedFile) Write(p []byte) (int, error) {
	n, err := s.File.Write(p)
	s.written += int64(n)
	return n, err
}

// discard closes and deletes the temporary file.
func (s *stagedFile) discard() {
	_ = s.File.Close()
	if err := os.Remove(s.Name()); err != nil && !os.IsNotExist(err) {
		s.log.Warnf("failed to remove temporary file %v: %v", s.Name(), err)
	}
}

// commit moves the temporary file to the destination. If renaming is not possible (e.g. across volumes) the file is
// copied instead and the copy's size verified; a failed copy leaves neither file behind.
func (s *stagedFile) commit() error {
	if err := s.File.Sync(); err != nil {
		s.discard()
		return fmt.Errorf("failed to sync %v: %w", s.Name(), err)
	}
	if err := s.File.Close(); err != nil {
		s.discard()
		return fmt.Errorf("failed to close %v: %w", s.Name(), err)
	}
	rename := s.config.rename
	if rename == nil {
		rename = os.Rename
	}
	err := rename(s.Name(), s.destination)
	if err == nil {
		return nil
	}
	s.log.Debugf("rename to %v failed, copying instead: %v", s.destination, err)
	defer s.discard()
	if err := s.copyToDestination(); err != nil {
		if rmErr := os.Remove(s.destination); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warnf("failed to remove incomplete copy %v: %v", s.destination, rmErr)
		}
		return err
	}
	return nil
}

func (s *stagedFile) copyToDestination() error {
	src, err := os.Open(s.Name())
	if err != nil {
		return fmt.Errorf("failed to reopen %v: %w", s.Name(), err)
	}
	defer src.Close()
	dst, err := os.OpenFile(s.destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %v: %w", s.destination, err)
	}
	w := bufio.NewWriter(dst)
	n, err := io.Copy(w, src)
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = dst.Sync()
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to copy to %v: %w", s.destination, err)
	}
	if info, err := os.Stat(s.destination); err != nil {
		return err
	} else if n != s.written || info.Size() != s.written {
		return fmt.Errorf("copy of %v is %d bytes, expected %d", s.Name(), info.Size(), s.written)
	}
	return nil
}
