package tree

import (
	"errors"
	"fmt"
	"time"
)

// ErrMandatoryField is returned when an update clears, or fails to provide,
// a property every storage entry must carry.
var ErrMandatoryField = errors.New("mandatory storage property")

// Op selects what an Update does with a single property.
type Op uint8

const (
	// OpKeep leaves the property untouched. It is the zero value.
	OpKeep Op = iota
	// OpSet assigns Field.Value.
	OpSet
	// OpClear removes the property.
	OpClear
)

// Field is a tagged update of one property.
type Field[T any] struct {
	Op    Op
	Value T
}

// Set returns a field update assigning v.
func Set[T any](v T) Field[T] {
	return Field[T]{Op: OpSet, Value: v}
}

// Clear returns a field update removing the property.
func Clear[T any]() Field[T] {
	return Field[T]{Op: OpClear}
}

func (f Field[T]) apply(dst *T) {
	switch f.Op {
	case OpSet:
		*dst = f.Value
	case OpClear:
		var zero T
		*dst = zero
	}
}

// Update describes a change to the properties one storage reports for a
// node. VersionID, ModifiedDate, Size and IsDir are mandatory.
type Update struct {
	VersionID    Field[string]
	ModifiedDate Field[time.Time]
	Size         Field[int64]
	IsDir        Field[bool]
	ShareID      Field[string]
	PublicShare  Field[bool]
	Shared       Field[bool]
}

// Validate rejects clears of mandatory properties.
func (u Update) Validate() error {
	mandatory := []struct {
		name string
		op   Op
	}{
		{"version_id", u.VersionID.Op},
		{"modified_date", u.ModifiedDate.Op},
		{"size", u.Size.Op},
		{"is_dir", u.IsDir.Op},
	}
	for _, m := range mandatory {
		if m.op == OpClear {
			return fmt.Errorf("%w: cannot clear %s", ErrMandatoryField, m.name)
		}
	}
	return nil
}

// UpdateFrom builds an update that sets every property of p. An empty
// share ID clears the share.
func UpdateFrom(p StorageProps) Update {
	u := Update{
		VersionID:    Set(p.VersionID),
		ModifiedDate: Set(p.ModifiedDate),
		Size:         Set(p.Size),
		IsDir:        Set(p.IsDir),
		PublicShare:  Set(p.PublicShare),
		Shared:       Set(p.Shared),
	}
	if p.ShareID != "" {
		u.ShareID = Set(p.ShareID)
	} else {
		u.ShareID = Clear[string]()
	}
	return u
}
