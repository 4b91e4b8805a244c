package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/wincloud/wincloud/internal/filex"
)

const installIDFileName = "install_id"

// deviceID derives the stable identifier sent as user_id during
// authentication: the first 16 hex characters of a hash over the hostname
// and a per-install random id persisted under dataDir. With an empty
// dataDir the install id is ephemeral.
func deviceID(dataDir string) (string, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}

	installID, err := installID(dataDir)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(host + "-" + installID))
	return hex.EncodeToString(sum[:])[:16], nil
}

func installID(dataDir string) (string, error) {
	if dataDir == "" {
		return uuid.NewString(), nil
	}

	path := filepath.Join(dataDir, installIDFileName)

	raw, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(raw)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read install id: %w", err)
	}

	id := uuid.NewString()
	if err := filex.EnsureDir(dataDir); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write install id: %w", err)
	}
	return id, nil
}
