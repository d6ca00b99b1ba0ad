package gerrit

import (
	"bytes"
	"unicode/utf16"

	"github.com/tidwall/sjson"
)

// RefsHeads is the namespace branch names are resolved under.
const RefsHeads = "refs/heads/"

// nullText is how an absent field is rendered by String methods.
const nullText = "null"

// RefUpdate is the refUpdate attribute of a ref-updated event: a branch in a
// project moving from one revision to another. A nil field means the payload
// did not carry it.
//
// A RefUpdate is populated once, either by FromJSON or through its setters,
// and is then treated as read-only. It does no locking of its own.
type RefUpdate struct {
	// Project is the project path in Gerrit.
	Project *string
	// RefName is the short ref name within the project, e.g. "master".
	RefName *string
	// OldRev is the revision the ref pointed to before the update.
	OldRev *string
	// NewRev is the revision the ref points to after the update.
	NewRev *string
}

// NewRefUpdate returns an empty RefUpdate.
func NewRefUpdate() *RefUpdate {
	return &RefUpdate{}
}

// RefUpdateFromJSON returns a RefUpdate populated from obj.
func RefUpdateFromJSON(obj StringGetter) *RefUpdate {
	r := &RefUpdate{}
	r.FromJSON(obj)
	return r
}

// FromJSON replaces all four fields with the values found in obj. Missing or
// non-string values leave the corresponding field nil.
func (r *RefUpdate) FromJSON(obj StringGetter) {
	r.Project = GetString(obj, KeyProject)
	r.RefName = GetString(obj, KeyRefName)
	r.OldRev = GetString(obj, KeyOldRev)
	r.NewRev = GetString(obj, KeyNewRev)
}

// GetProject returns the project, or "" when absent.
func (r *RefUpdate) GetProject() string {
	if r == nil {
		return ""
	}
	return deref(r.Project)
}

// SetProject sets the project.
func (r *RefUpdate) SetProject(project string) {
	r.Project = &project
}

// GetRefName returns the short ref name, or "" when absent.
func (r *RefUpdate) GetRefName() string {
	if r == nil {
		return ""
	}
	return deref(r.RefName)
}

// SetRefName sets the short ref name.
func (r *RefUpdate) SetRefName(refName string) {
	r.RefName = &refName
}

// GetOldRev returns the old revision, or "" when absent.
func (r *RefUpdate) GetOldRev() string {
	if r == nil {
		return ""
	}
	return deref(r.OldRev)
}

// SetOldRev sets the old revision.
func (r *RefUpdate) SetOldRev(oldRev string) {
	r.OldRev = &oldRev
}

// GetNewRev returns the new revision, or "" when absent.
func (r *RefUpdate) GetNewRev() string {
	if r == nil {
		return ""
	}
	return deref(r.NewRev)
}

// SetNewRev sets the new revision.
func (r *RefUpdate) SetNewRev(newRev string) {
	r.NewRev = &newRev
}

// Ref returns the fully qualified ref, RefsHeads followed by the ref name.
// ok is false when the ref name is absent.
func (r *RefUpdate) Ref() (ref string, ok bool) {
	if r == nil || r.RefName == nil {
		return "", false
	}
	return RefsHeads + *r.RefName, true
}

// Equal reports whether other holds the same four field values.
// Two absent fields are equal; an absent field never equals a present one.
func (r *RefUpdate) Equal(other *RefUpdate) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return equalString(r.NewRev, other.NewRev) &&
		equalString(r.OldRev, other.OldRev) &&
		equalString(r.Project, other.Project) &&
		equalString(r.RefName, other.RefName)
}

// HashCode returns a hash consistent with Equal. The value only depends on
// the field contents, so it is stable across processes.
func (r *RefUpdate) HashCode() int32 {
	if r == nil {
		return 0
	}
	const prime = 31
	var result int32 = 1
	result = prime*result + hashString(r.NewRev)
	result = prime*result + hashString(r.OldRev)
	result = prime*result + hashString(r.Project)
	result = prime*result + hashString(r.RefName)
	return result
}

// String returns "RefUpdate: <newRev> <project> <refName>", rendering absent
// fields as "null".
func (r *RefUpdate) String() string {
	if r == nil {
		return nullText
	}
	return "RefUpdate: " + FieldText(r.NewRev) + " " + FieldText(r.Project) + " " + FieldText(r.RefName)
}

// MarshalJSON encodes the present fields only.
func (r RefUpdate) MarshalJSON() ([]byte, error) {
	out := []byte("{}")
	fields := []struct {
		key   string
		value *string
	}{
		{KeyProject, r.Project},
		{KeyRefName, r.RefName},
		{KeyOldRev, r.OldRev},
		{KeyNewRev, r.NewRev},
	}
	for _, field := range fields {
		if field.value == nil {
			continue
		}
		var err error
		out, err = sjson.SetBytes(out, field.key, *field.value)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UnmarshalJSON decodes a refUpdate object the same way FromJSON does.
// A JSON null leaves r unchanged.
func (r *RefUpdate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	obj, err := ParseObject(data)
	if err != nil {
		return err
	}
	r.FromJSON(obj)
	return nil
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// hashString is the polynomial hash over UTF-16 code units with multiplier
// 31 and 32-bit wraparound. A nil string hashes to 0.
func hashString(s *string) int32 {
	if s == nil {
		return 0
	}
	var h int32
	for _, unit := range utf16.Encode([]rune(*s)) {
		h = 31*h + int32(unit)
	}
	return h
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FieldText renders an optional field the way String methods do: the value,
// or "null" when absent.
func FieldText(s *string) string {
	if s == nil {
		return nullText
	}
	return *s
}
