package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/exprbake/internal/ir"
)

// Run is one export run.
type Run struct {
	ID      string `json:"id"`
	Seq     int64  `json:"seq"` // assigned by RecordRun
	Dir     string `json:"dir"`
	Package string `json:"package"`
	Batches int    `json:"batches"`
	Files   []File `json:"files,omitempty"`
}

// File is one exported file of a run.
type File struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Functions []Function `json:"functions"`
}

// Function is one artifact of an exported file, in serving order.
type Function struct {
	Name     string   `json:"name"`
	Sig      string   `json:"sig"`
	Strategy string   `json:"strategy"`
	Decl     string   `json:"decl,omitempty"`
	Batch    string   `json:"batch,omitempty"` // batch source file; empty when the artifact reuses an earlier function
	Imports  []string `json:"imports"`
	Broken   string   `json:"broken,omitempty"` // printing failure that replaced the body, if any
}

// marshalImports serializes import paths to canonical JSON.
func marshalImports(imports []string) (string, error) {
	arr := make([]any, len(imports))
	for i, imp := range imports {
		arr[i] = imp
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal imports: %w", err)
	}
	return string(data), nil
}

func unmarshalImports(data string) ([]string, error) {
	var imports []string
	if err := json.Unmarshal([]byte(data), &imports); err != nil {
		return nil, fmt.Errorf("unmarshal imports: %w", err)
	}
	if imports == nil {
		imports = []string{}
	}
	return imports, nil
}
