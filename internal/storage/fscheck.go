package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem marks a path that lives on a network mount.
var ErrNetworkFilesystem = errors.New("path is on a network filesystem")

// errDetectUnsupported is returned by detectors on platforms without statfs.
var errDetectUnsupported = errors.New("filesystem detection unsupported")

var networkFilesystems = map[string]struct{}{
	"9p":     {},
	"afpfs":  {},
	"afs":    {},
	"ceph":   {},
	"cifs":   {},
	"nfs":    {},
	"smb2":   {},
	"smbfs":  {},
	"webdav": {},
}

// Mount describes the filesystem a path resolves to. Type is empty when the
// platform cannot report it.
type Mount struct {
	Probe   string
	Type    string
	Network bool
}

// Inspect reports the filesystem under path, probing the nearest existing
// parent when path itself does not exist yet.
func Inspect(path string) (Mount, error) {
	return inspect(path, detectFilesystemType)
}

func inspect(path string, detect func(string) (string, error)) (Mount, error) {
	probe, err := nearestExistingPath(path)
	if err != nil {
		return Mount{}, fmt.Errorf("resolve %q: %w", path, err)
	}

	fsType, err := detect(probe)
	if errors.Is(err, errDetectUnsupported) {
		return Mount{Probe: probe}, nil
	}
	if err != nil {
		return Mount{}, fmt.Errorf("detect filesystem for %q: %w", probe, err)
	}
	return Mount{Probe: probe, Type: fsType, Network: isNetworkFilesystem(fsType)}, nil
}

// requireLocal refuses database paths on network mounts, where SQLite
// locking is unreliable.
func requireLocal(path string, detect func(string) (string, error)) error {
	m, err := inspect(path, detect)
	if err != nil {
		return err
	}
	if m.Network {
		return fmt.Errorf("run log %q is on %s (%w); set state.path to a local file", path, m.Type, ErrNetworkFilesystem)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return found
}
