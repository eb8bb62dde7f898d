package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainFile is the hash domain for file identities.
// The version suffix allows the algorithm to change without colliding.
const DomainFile = "exprbake/file/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FileKind says what kind of source a baking context was opened for.
type FileKind string

const (
	KindScript FileKind = "script" // a script file on disk
	KindImport FileKind = "import" // a Go import path providing formulas
	KindString FileKind = "string" // script text given inline
	KindSite   FileKind = "site"   // a call site, "file:line"
)

// FileKey identifies the source of a baking context. Two keys with the same
// kind and NFC-equal source are the same file.
type FileKey struct {
	Kind   FileKind
	Source string
}

// ScriptKey is the key of a script file.
func ScriptKey(path string) FileKey { return FileKey{Kind: KindScript, Source: path} }

// ImportKey is the key of a Go import path.
func ImportKey(path string) FileKey { return FileKey{Kind: KindImport, Source: path} }

// StringKey is the key of inline script text.
func StringKey(text string) FileKey { return FileKey{Kind: KindString, Source: text} }

// SiteKey is the key of a call site.
func SiteKey(file string, line int) FileKey {
	return FileKey{Kind: KindSite, Source: fmt.Sprintf("%s:%d", file, line)}
}

func (k FileKey) String() string {
	src := k.Source
	if k.Kind == KindString && len(src) > 32 {
		src = src[:32] + "..."
	}
	return string(k.Kind) + ":" + src
}

// Equal reports whether two keys name the same file.
func (k FileKey) Equal(o FileKey) bool {
	return k.Kind == o.Kind && norm.NFC.String(k.Source) == norm.NFC.String(o.Source)
}

// ID returns the stable file identity "<kind>-<16 hex>". It is derived from
// content only, so it is the same across processes and machines.
func (k FileKey) ID() (string, error) {
	if k.Kind == "" {
		return "", fmt.Errorf("file key has no kind")
	}
	canonical, err := MarshalCanonical(map[string]any{
		"kind":   string(k.Kind),
		"source": k.Source,
	})
	if err != nil {
		return "", fmt.Errorf("FileKey.ID: failed to marshal: %w", err)
	}
	return string(k.Kind) + "-" + hashWithDomain(DomainFile, canonical)[:16], nil
}

// MustID is like ID but panics on error.
func (k FileKey) MustID() string {
	id, err := k.ID()
	if err != nil {
		panic(err)
	}
	return id
}

// ParseFileID splits an ID produced by FileKey.ID into its kind and hash.
func ParseFileID(id string) (FileKind, string, error) {
	kind, hash, ok := strings.Cut(id, "-")
	if !ok || len(hash) != 16 {
		return "", "", fmt.Errorf("malformed file id %q", id)
	}
	switch FileKind(kind) {
	case KindScript, KindImport, KindString, KindSite:
		return FileKind(kind), hash, nil
	}
	return "", "", fmt.Errorf("file id %q: unknown kind %q", id, kind)
}
