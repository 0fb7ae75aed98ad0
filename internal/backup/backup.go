// Package backup streams the whole store to and from a portable archive.
// The archive is an xz-compressed gob stream of raw key/value pairs, so a
// backup taken on one machine restores on any other regardless of the
// engine's on-disk layout.
package backup

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"github.com/quillwiki/quill/internal/keyValStore"
)

// archiveMagic guards against restoring something that is not a backup.
const archiveMagic = "quillbackup\x001"

const restoreBatchSize = 1024

type pair struct {
	Key   []byte
	Value []byte
}

// Export writes every key/value pair of the store to w. The snapshot is
// taken in one read transaction, so concurrent writes never tear it.
func Export(kv *keyValStore.KeyValStore, log *logrus.Logger, w io.Writer) error {
	if _, err := io.WriteString(w, archiveMagic); err != nil {
		return fmt.Errorf("error writing archive header: %w", err)
	}

	xzw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("error creating compressor: %w", err)
	}
	enc := gob.NewEncoder(xzw)

	var count uint64
	err = kv.DumpAll(func(key, value []byte) error {
		count++
		return enc.Encode(pair{Key: key, Value: value})
	})
	if err != nil {
		return fmt.Errorf("error exporting store: %w", err)
	}
	if err := xzw.Close(); err != nil {
		return fmt.Errorf("error finishing archive: %w", err)
	}

	log.WithField("pairs", count).Info("Exported backup")
	return nil
}

// Import reads an archive produced by Export and writes its pairs into
// the store. Existing keys are overwritten; keys absent from the archive
// are left alone. Restoring into an empty store reproduces the original.
func Import(kv *keyValStore.KeyValStore, log *logrus.Logger, r io.Reader) error {
	magic := make([]byte, len(archiveMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("error reading archive header: %w", err)
	}
	if string(magic) != archiveMagic {
		return fmt.Errorf("not a backup archive")
	}

	xzr, err := xz.NewReader(r)
	if err != nil {
		return fmt.Errorf("error opening archive: %w", err)
	}
	dec := gob.NewDecoder(xzr)

	var (
		batch [][2][]byte
		count uint64
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := kv.RestoreBatch(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for {
		var p pair
		if err := dec.Decode(&p); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("error reading archive entry: %w", err)
		}
		batch = append(batch, [2][]byte{p.Key, p.Value})
		count++
		if len(batch) >= restoreBatchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("error restoring batch: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		return fmt.Errorf("error restoring batch: %w", err)
	}

	log.WithField("pairs", count).Info("Imported backup")
	return nil
}

// ExportFile writes an archive to path, refusing to overwrite an existing
// file.
func ExportFile(kv *keyValStore.KeyValStore, log *logrus.Logger, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	if err := Export(kv, log, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing backup file: %w", err)
	}
	return nil
}

// ImportFile restores an archive from path.
func ImportFile(kv *keyValStore.KeyValStore, log *logrus.Logger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening backup file: %w", err)
	}
	defer f.Close()
	return Import(kv, log, f)
}
