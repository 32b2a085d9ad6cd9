package sc16is7x2

// General register set, selected by reg<<3 | channel<<1 in the subaddress.
const (
	regRHR   = 0x00 // read
	regTHR   = 0x00 // write
	regFCR   = 0x02 // write
	regLCR   = 0x03
	regSPR   = 0x07
	regTXLVL = 0x08
	regRXLVL = 0x09
	regEFCR  = 0x0F
)

// Special register set, visible while LCR[7] = 1.
const (
	regDLL = 0x00
	regDLH = 0x01
)

// LCR bits.
const (
	lcrWordLen5     = 0x00
	lcrStop2        = 1 << 2
	lcrParityOn     = 1 << 3
	lcrParityEven   = 1 << 4
	lcrDivisorLatch = 1 << 7
)

// FCR bits.
const (
	fcrFIFOEnable = 1 << 0
	fcrRxReset    = 1 << 1
	fcrTxReset    = 1 << 2
)

// EFCR bits.
const (
	efcrRxDisable = 1 << 1
	efcrTxDisable = 1 << 2
	efcrRTSCon    = 1 << 4 // RTS drives the RS-485 transceiver direction
	efcrRTSInvert = 1 << 5
)

// FIFOSize is the depth of each channel's receive and transmit FIFO.
const FIFOSize = 64

// Subaddress returns the register pointer byte for reg on ch.
func Subaddress(reg byte, ch Channel) byte { return reg<<3 | byte(ch)<<1 }
