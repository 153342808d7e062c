// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Campbell Fabrications

package cfs

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// AddrCacheEntry is one persisted address binding.
type AddrCacheEntry struct {
	Addr   byte   `cbor:"1,keyasint"`
	Kind   int    `cbor:"2,keyasint"`
	Serial []byte `cbor:"3,keyasint"`
}

// addrCacheFile is the on-disk shape, versioned so the format can move.
type addrCacheFile struct {
	Version int              `cbor:"1,keyasint"`
	Entries []AddrCacheEntry `cbor:"2,keyasint"`
}

const addrCacheVersion = 1

// SaveAddrCache persists the session's address table to path as CBOR.
// The cache lets a restarted controller know which serials answered on
// which addresses last time, before discovery re-confirms them.
func SaveAddrCache(path string, session *Session) error {
	devices := session.Devices()
	file := addrCacheFile{Version: addrCacheVersion}
	for _, dev := range devices {
		file.Entries = append(file.Entries, AddrCacheEntry{
			Addr:   dev.Addr,
			Kind:   int(dev.Kind),
			Serial: dev.Serial,
		})
	}
	data, err := cbor.Marshal(file)
	if err != nil {
		return fmt.Errorf("cfs: encode address cache: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadAddrCache reads a persisted address table. A missing file is not
// an error; it returns an empty table.
func LoadAddrCache(path string) ([]AddrCacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var file addrCacheFile
	if err := cbor.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cfs: decode address cache: %w", err)
	}
	if file.Version != addrCacheVersion {
		return nil, fmt.Errorf("cfs: unsupported address cache version %d", file.Version)
	}
	return file.Entries, nil
}
