package binary

// DataSum computes the FITS DATASUM of a data unit: the 32-bit ones'
// complement sum of its big-endian words. len(data) is expected to be a
// multiple of 4, which holds for any block-padded unit.
func DataSum(data []byte) uint32 {
	var hi, lo uint32
	// Accumulate the high and low 16-bit halves separately so carries can
	// be folded once at the end, as in the FITS checksum convention.
	n := len(data) &^ 3
	for i := 0; i < n; i += 4 {
		hi += uint32(data[i])<<8 | uint32(data[i+1])
		lo += uint32(data[i+2])<<8 | uint32(data[i+3])
		// Fold before either half can overflow 32 bits.
		if hi&0x80000000 != 0 || lo&0x80000000 != 0 {
			hi, lo = foldCarries(hi, lo)
		}
	}
	hi, lo = foldCarries(hi, lo)
	return hi<<16 | lo
}

func foldCarries(hi, lo uint32) (uint32, uint32) {
	hicarry := hi >> 16
	locarry := lo >> 16
	for hicarry != 0 || locarry != 0 {
		hi = (hi & 0xFFFF) + locarry
		lo = (lo & 0xFFFF) + hicarry
		hicarry = hi >> 16
		locarry = lo >> 16
	}
	return hi, lo
}
