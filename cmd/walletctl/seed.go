// Copyright (c) 2025 The walletbackend developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/shieldwallet/walletbackend/secret"
	"golang.org/x/term"
)

const (
	minSeedLen = 32
	maxSeedLen = 252
)

// parseSeed decodes a hex seed.  line is zeroed before returning.
func parseSeed(line []byte) ([]byte, error) {
	defer secret.Zero(line)

	line = bytes.TrimSpace(line)
	seed := make([]byte, hex.DecodedLen(len(line)))
	if _, err := hex.Decode(seed, line); err != nil {
		secret.Zero(seed)
		return nil, fmt.Errorf("seed is not hexadecimal")
	}
	if len(seed) < minSeedLen || len(seed) > maxSeedLen {
		secret.Zero(seed)
		return nil, fmt.Errorf("seed must be between %d and %d bytes",
			minSeedLen, maxSeedLen)
	}
	return seed, nil
}

// readSeed reads a hex seed from stdin, without echo when stdin is a
// terminal.
func readSeed() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Enter wallet seed (hex): ")
		line, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, err
		}
		return parseSeed(line)
	}
	return readSeedFrom(os.Stdin)
}

func readSeedFrom(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	return parseSeed(line)
}
