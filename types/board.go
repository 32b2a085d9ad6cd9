package types

import "strconv"

// Family identifies the host module a Project Lab carrier is populated with.
type Family string

const (
	FamilyUnknown         Family = ""
	FamilyF7FeatherV2     Family = "f7_feather_v2"
	FamilyF7CoreComputeV2 Family = "f7_core_compute_v2"
)

// Revision3e is the first revision byte of the 3.e board layout.
const Revision3e = 15

// Revision identifies a Project Lab carrier revision.
//
// For V3 boards Minor is the byte read from the version expander. Known is
// false when that expander did not answer, in which case Minor is 0.
type Revision struct {
	Major int  `json:"major"`
	Minor byte `json:"minor"`
	Known bool `json:"known"`
}

// String renders "v1.x", "v3.<minor>" or "v3.x".
func (r Revision) String() string {
	if r.Major != 3 || !r.Known {
		return "v" + strconv.Itoa(r.Major) + ".x"
	}
	return "v3." + strconv.Itoa(int(r.Minor))
}

// AtLeast3e reports whether the board uses the 3.e connector layout.
func (r Revision) AtLeast3e() bool { return r.Major == 3 && r.Minor >= Revision3e }

// BoardState is published retained once the hardware object is built.
type BoardState struct {
	Family   Family   `json:"family"`
	Revision string   `json:"revision"`
	Present  []string `json:"present"` // expanders that answered, e.g. "mcp1"
	Missing  []string `json:"missing,omitempty"`
}
