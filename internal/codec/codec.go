// Package codec serializes transform metadata. The document and binary forms
// are independent strategies behind the same Codec interface, so either can
// evolve without touching metadata.TransformMetadata.
package codec

import (
	"fmt"

	"transformstate/internal/document"
	"transformstate/internal/metadata"
)

// Codec encodes and decodes one TransformMetadata.
type Codec interface {
	Name() string
	Encode(m metadata.TransformMetadata) ([]byte, error)
	// Decode rebuilds a record. Forms that do not carry identity take it
	// from v; forms that do ignore v.
	Decode(data []byte, v Version) (metadata.TransformMetadata, error)
}

// Version is the storage identity supplied alongside a document.
type Version struct {
	ID          string
	SeqNo       int64
	PrimaryTerm int64
}

// UnassignedVersion is the identity of a record that has never been stored.
func UnassignedVersion(id string) Version {
	return Version{ID: id, SeqNo: metadata.UnassignedSeqNo, PrimaryTerm: metadata.UnassignedPrimaryTerm}
}

// VersionOf returns the identity carried by m.
func VersionOf(m metadata.TransformMetadata) Version {
	return Version{ID: m.ID, SeqNo: m.SeqNo, PrimaryTerm: m.PrimaryTerm}
}

// MissingFieldError reports a required document field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("transform metadata: missing required field [%s]", e.Field)
}

// ByName returns the default codec for "json", "yaml" or "binary".
func ByName(name string) (Codec, error) {
	switch name {
	case "binary", "bin":
		return BinaryCodec{}, nil
	}
	ct, err := document.ParseContentType(name)
	if err != nil {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return NewDocumentCodec(ct), nil
}
