package metadata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/request"
	"google.golang.org/protobuf/encoding/protowire"
	"gopkg.in/yaml.v3"
)

const fieldSetArtifacts protowire.Number = 1

// BinaryRequests reads and writes request sets as a length-delimited
// protobuf InstallationSet message.
type BinaryRequests struct{}

// NewBinaryRequests creates a new BinaryRequests.
func NewBinaryRequests() *BinaryRequests {
	return &BinaryRequests{}
}

// Load reads a request set from path.
func (r *BinaryRequests) Load(_ context.Context, path string) (*request.Set, error) {
	data, err := readRequests(path)
	if err != nil {
		return nil, err
	}

	msg, err := consumeDelimited(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", request.ErrRequestsCorrupt, err)
	}

	set := &request.Set{}
	err = decodeFields(msg, func(num protowire.Number, _ uint64, raw []byte) error {
		if num != fieldSetArtifacts || raw == nil {
			return nil
		}
		details, err := decodeDetails(raw)
		if err != nil {
			return err
		}
		set.Artifacts = append(set.Artifacts, *details)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", request.ErrRequestsCorrupt, err)
	}
	return set, nil
}

// Save writes a request set to path.
func (r *BinaryRequests) Save(_ context.Context, path string, set *request.Set) error {
	var msg []byte
	for i := range set.Artifacts {
		msg = appendMessage(msg, fieldSetArtifacts, encodeDetails(&set.Artifacts[i]))
	}
	return writeAtomic(path, appendDelimited(nil, msg))
}

// YAMLRequests reads and writes request sets as YAML documents.
type YAMLRequests struct{}

// NewYAMLRequests creates a new YAMLRequests.
func NewYAMLRequests() *YAMLRequests {
	return &YAMLRequests{}
}

// Load reads a request set from path.
func (r *YAMLRequests) Load(_ context.Context, path string) (*request.Set, error) {
	data, err := readRequests(path)
	if err != nil {
		return nil, err
	}

	var set request.Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("%w: %w", request.ErrRequestsCorrupt, err)
	}
	return &set, nil
}

// Save writes a request set to path.
func (r *YAMLRequests) Save(_ context.Context, path string, set *request.Set) error {
	data, err := yaml.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode requests: %w", err)
	}
	return writeAtomic(path, data)
}

// RequestsFor picks the request format from the file extension: .yaml and
// .yml are YAML, anything else is binary.
func RequestsFor(path string) request.Repository {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYAMLRequests()
	default:
		return NewBinaryRequests()
	}
}

func readRequests(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", request.ErrRequestsNotFound, path)
		}
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	return data, nil
}

var (
	_ request.Repository = (*BinaryRequests)(nil)
	_ request.Repository = (*YAMLRequests)(nil)
)
