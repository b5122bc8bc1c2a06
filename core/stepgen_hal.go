package core

// ChannelMask selects step generator channels. An axis that drives two
// motors in lockstep (Y, Z) owns two bits.
type ChannelMask uint32

// Channel returns the mask for a single channel number
func Channel(n uint8) ChannelMask {
	return ChannelMask(1) << n
}

// StepGenerator is the hardware abstraction for step pulse generation.
// Implementations can use timer PWM, PIO, or a simulation.
type StepGenerator interface {
	// Emit starts exactly one step pulse on every channel in mask at the
	// given pulse frequency (Hz). It must not block for the pulse itself.
	Emit(mask ChannelMask, freqHz uint32)

	// SetCompletionHandler registers fn to be called once after each
	// pulse emitted on mask has completed. fn may be called from
	// interrupt context and must not block.
	SetCompletionHandler(mask ChannelMask, fn func())
}
