package sshserver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// authorizedKeys is a set of public keys in wire format.
type authorizedKeys map[string]string

// loadAuthorizedKeys parses an OpenSSH authorized_keys file. Blank lines and
// comments are skipped; options are ignored.
func loadAuthorizedKeys(path string) (authorizedKeys, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("authorized keys path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	keys := make(authorizedKeys)
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		key, comment, _, _, err := ssh.ParseAuthorizedKey(line)
		if err != nil {
			return nil, fmt.Errorf("parse authorized keys line %d: %w", i+1, err)
		}
		keys[string(key.Marshal())] = comment
	}
	return keys, nil
}

func (k authorizedKeys) match(key ssh.PublicKey) (string, bool) {
	comment, ok := k[string(key.Marshal())]
	return comment, ok
}
