package image

import "fmt"

type versionEntry struct {
	tag [4]byte
	new func() versionOps
}

// versionTable is the module's only other piece of package-level state
// besides the exported registry Descriptor, and it is immutable data: a
// static, indexed table scanned linearly at verify time (spec §4.4).
var versionTable = []versionEntry{
	{tag: tagV1, new: func() versionOps { return &v1Handler{} }},
	{tag: tagV2, new: func() versionOps { return &v2Handler{} }},
}

func lookupVersion(tag [4]byte) (versionOps, error) {
	for _, e := range versionTable {
		if e.tag == tag {
			return e.new(), nil
		}
	}
	return nil, fmt.Errorf("image: version %q not found: %w", tag[:], ErrNotFound)
}
