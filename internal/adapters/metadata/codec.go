package metadata

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/artifactrepo/internal/domain/artifact"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the persisted messages, as declared in metadata.proto.
// A file holds one varint-length-delimited Repository or InstallationSet.
const (
	fieldRepositoryArtifacts protowire.Number = 1

	fieldArtifactID               = 1
	fieldArtifactPluginID         = 2
	fieldArtifactVersion          = 3
	fieldArtifactAttributes       = 4
	fieldArtifactState            = 5
	fieldArtifactRelativePath     = 6
	fieldArtifactScriptPath       = 7
	fieldArtifactInstallationTime = 8
	fieldArtifactInstalledSize    = 9
	fieldArtifactHost             = 10
	fieldArtifactRetention        = 11
	fieldArtifactRequest          = 12

	fieldAttributeName  = 1
	fieldAttributeValue = 2

	fieldHostName           = 1
	fieldHostOSArchitecture = 2
	fieldHostOSName         = 3
	fieldHostOSVersion      = 4

	fieldDetailsPluginID          = 1
	fieldDetailsArtifactID        = 2
	fieldDetailsVersion           = 3
	fieldDetailsScriptInstallPath = 4
	fieldDetailsSSHHost           = 5
	fieldDetailsSSHUser           = 6
	fieldDetailsRetention         = 7
	fieldDetailsMandatory         = 8
	fieldDetailsAttributes        = 9
)

var stateCodes = map[artifact.State]uint64{
	artifact.StateInstalling: 1,
	artifact.StateInstalled:  2,
	artifact.StateFailed:     3,
}

var retentionCodes = map[artifact.RetentionPolicy]uint64{
	artifact.RemoveOldest:            1,
	artifact.KeepUntilExplicitRemove: 2,
}

// appendDelimited prefixes msg with its varint length.
func appendDelimited(b, msg []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(msg)))
	return append(b, msg...)
}

// consumeDelimited reads one varint-length-prefixed message.
func consumeDelimited(b []byte) ([]byte, error) {
	size, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	b = b[n:]
	if uint64(len(b)) < size {
		return nil, fmt.Errorf("truncated message: want %d bytes, have %d", size, len(b))
	}
	return b[:size], nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func encodeRepository(records []*artifact.Artifact) []byte {
	var msg []byte
	for _, a := range records {
		msg = appendMessage(msg, fieldRepositoryArtifacts, encodeArtifact(a))
	}
	return appendDelimited(nil, msg)
}

func encodeArtifact(a *artifact.Artifact) []byte {
	var b []byte
	b = appendString(b, fieldArtifactID, a.ArtifactID)
	b = appendString(b, fieldArtifactPluginID, a.PluginID)
	b = appendString(b, fieldArtifactVersion, a.Version)
	for _, attr := range a.Attributes {
		b = appendMessage(b, fieldArtifactAttributes, encodeAttribute(attr))
	}
	b = appendUint(b, fieldArtifactState, stateCodes[a.State])
	b = appendString(b, fieldArtifactRelativePath, a.RelativePath)
	b = appendString(b, fieldArtifactScriptPath, a.InstallScriptRelativePath)
	if !a.InstallationTime.IsZero() {
		b = appendUint(b, fieldArtifactInstallationTime, uint64(a.InstallationTime.UnixMilli()))
	}
	b = appendUint(b, fieldArtifactInstalledSize, uint64(a.InstalledSize))
	if a.Host != (artifact.Host{}) {
		b = appendMessage(b, fieldArtifactHost, encodeHost(a.Host))
	}
	b = appendUint(b, fieldArtifactRetention, retentionCodes[a.Retention])
	if a.Request != nil {
		b = appendMessage(b, fieldArtifactRequest, encodeDetails(a.Request))
	}
	return b
}

func encodeAttribute(attr artifact.Attribute) []byte {
	var b []byte
	b = appendString(b, fieldAttributeName, attr.Name)
	return appendString(b, fieldAttributeValue, attr.Value)
}

func encodeHost(h artifact.Host) []byte {
	var b []byte
	b = appendString(b, fieldHostName, h.HostName)
	b = appendString(b, fieldHostOSArchitecture, h.OSArchitecture)
	b = appendString(b, fieldHostOSName, h.OSName)
	return appendString(b, fieldHostOSVersion, h.OSVersion)
}

func encodeDetails(r *artifact.Request) []byte {
	var b []byte
	b = appendString(b, fieldDetailsPluginID, r.PluginID)
	b = appendString(b, fieldDetailsArtifactID, r.ArtifactID)
	b = appendString(b, fieldDetailsVersion, r.Version)
	b = appendString(b, fieldDetailsScriptInstallPath, r.ScriptInstallPath)
	b = appendString(b, fieldDetailsSSHHost, r.SSHHost)
	b = appendString(b, fieldDetailsSSHUser, r.SSHUser)
	b = appendUint(b, fieldDetailsRetention, retentionCodes[r.Retention])
	if r.Mandatory {
		b = appendUint(b, fieldDetailsMandatory, 1)
	}
	for _, attr := range r.Attributes {
		b = appendMessage(b, fieldDetailsAttributes, encodeAttribute(attr))
	}
	return b
}

// fieldFunc handles one decoded field. Varint fields receive v, length
// delimited fields receive raw.
type fieldFunc func(num protowire.Number, v uint64, raw []byte) error

// decodeFields walks a message and dispatches known wire types to fn.
// Unknown fields are skipped.
func decodeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, v, nil); err != nil {
				return err
			}
			b = b[m:]
		case protowire.BytesType:
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			if err := fn(num, 0, raw); err != nil {
				return err
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return nil
}

func decodeRepository(b []byte) ([]*artifact.Artifact, error) {
	msg, err := consumeDelimited(b)
	if err != nil {
		return nil, err
	}
	var records []*artifact.Artifact
	err = decodeFields(msg, func(num protowire.Number, _ uint64, raw []byte) error {
		if num != fieldRepositoryArtifacts || raw == nil {
			return nil
		}
		a, err := decodeArtifact(raw)
		if err != nil {
			return err
		}
		records = append(records, a)
		return nil
	})
	return records, err
}

func decodeArtifact(b []byte) (*artifact.Artifact, error) {
	a := &artifact.Artifact{}
	err := decodeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case fieldArtifactID:
			a.ArtifactID = string(raw)
		case fieldArtifactPluginID:
			a.PluginID = string(raw)
		case fieldArtifactVersion:
			a.Version = string(raw)
		case fieldArtifactAttributes:
			attr, err := decodeAttribute(raw)
			if err != nil {
				return err
			}
			a.Attributes = append(a.Attributes, attr)
		case fieldArtifactState:
			s, err := stateFromCode(v)
			if err != nil {
				return err
			}
			a.State = s
		case fieldArtifactRelativePath:
			a.RelativePath = string(raw)
		case fieldArtifactScriptPath:
			a.InstallScriptRelativePath = string(raw)
		case fieldArtifactInstallationTime:
			a.InstallationTime = time.UnixMilli(int64(v))
		case fieldArtifactInstalledSize:
			a.InstalledSize = int64(v)
		case fieldArtifactHost:
			h, err := decodeHost(raw)
			if err != nil {
				return err
			}
			a.Host = h
		case fieldArtifactRetention:
			a.Retention = retentionFromCode(v)
		case fieldArtifactRequest:
			r, err := decodeDetails(raw)
			if err != nil {
				return err
			}
			a.Request = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if a.Retention == "" {
		a.Retention = artifact.RemoveOldest
	}
	return a, nil
}

func decodeAttribute(b []byte) (artifact.Attribute, error) {
	var attr artifact.Attribute
	err := decodeFields(b, func(num protowire.Number, _ uint64, raw []byte) error {
		switch num {
		case fieldAttributeName:
			attr.Name = string(raw)
		case fieldAttributeValue:
			attr.Value = string(raw)
		}
		return nil
	})
	return attr, err
}

func decodeHost(b []byte) (artifact.Host, error) {
	var h artifact.Host
	err := decodeFields(b, func(num protowire.Number, _ uint64, raw []byte) error {
		switch num {
		case fieldHostName:
			h.HostName = string(raw)
		case fieldHostOSArchitecture:
			h.OSArchitecture = string(raw)
		case fieldHostOSName:
			h.OSName = string(raw)
		case fieldHostOSVersion:
			h.OSVersion = string(raw)
		}
		return nil
	})
	return h, err
}

func decodeDetails(b []byte) (*artifact.Request, error) {
	r := &artifact.Request{}
	err := decodeFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case fieldDetailsPluginID:
			r.PluginID = string(raw)
		case fieldDetailsArtifactID:
			r.ArtifactID = string(raw)
		case fieldDetailsVersion:
			r.Version = string(raw)
		case fieldDetailsScriptInstallPath:
			r.ScriptInstallPath = string(raw)
		case fieldDetailsSSHHost:
			r.SSHHost = string(raw)
		case fieldDetailsSSHUser:
			r.SSHUser = string(raw)
		case fieldDetailsRetention:
			r.Retention = retentionFromCode(v)
		case fieldDetailsMandatory:
			r.Mandatory = v != 0
		case fieldDetailsAttributes:
			attr, err := decodeAttribute(raw)
			if err != nil {
				return err
			}
			r.Attributes = append(r.Attributes, attr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func stateFromCode(v uint64) (artifact.State, error) {
	for s, code := range stateCodes {
		if code == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown installation state %d", v)
}

func retentionFromCode(v uint64) artifact.RetentionPolicy {
	for p, code := range retentionCodes {
		if code == v {
			return p
		}
	}
	return ""
}
