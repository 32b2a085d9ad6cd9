package platform

import "projectlab-go/types"

// F7FeatherV2 is the Feather form-factor module used by the V1 carrier.
var F7FeatherV2 = newBoard(Board{
	Name:   "f7_feather_v2",
	Family: types.FamilyF7FeatherV2,
	I2C:    []int{1},
	UART:   []string{"com1", "com4"},
},
	numbered("A", 6),
	numbered("D", 16),
	[]string{"SCK", "COPI", "CIPO", "SCL", "SDA"},
	[]string{"OnboardLedRed", "OnboardLedGreen", "OnboardLedBlue"},
)

// F7CoreComputeV2 is the Core-Compute module used by V3 carriers. Besides
// the raw STM32 port pins it carries the board-level aliases the carrier
// schematic uses.
var F7CoreComputeV2 = newBoard(Board{
	Name:   "f7_core_compute_v2",
	Family: types.FamilyF7CoreComputeV2,
	I2C:    []int{1, 3},
	UART:   []string{"com1", "com4"},
},
	stmPorts("ABCDEFGHI", 16),
	[]string{"A05", "D16", "D17"},
	[]string{"SCK", "COPI", "CIPO"},
	[]string{"SPI5_SCK", "SPI5_COPI", "SPI5_CIPO"},
	[]string{"I2C1_SCL", "I2C1_SDA", "I2C3_SCL", "I2C3_SDA"},
)
