package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os/exec"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/chunk"
)

const gitTimeout = 5 * time.Second

// GitRevision returns the HEAD commit of the work tree containing dir, or
// "" when dir is not in a git repository or git is unavailable.
func GitRevision(ctx context.Context, dir string) string {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// ContentRevision hashes the paths and texts of docs. Documents must be in
// a stable order for the result to be stable.
func ContentRevision(docs []*chunk.Document) string {
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(d.Path))
		h.Write([]byte{0})
		h.Write([]byte(d.Text))
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))[:16]
}
