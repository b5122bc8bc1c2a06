//go:build rp2040

package pio

// PIO step generator. Each axis owns one state machine whose SET pins
// are the axis' step pins, so lockstep motors pulse on the same cycle.

import (
	"errors"
	"machine"
	"math/bits"
	"sync"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"gopnp/core"
)

var (
	ErrNoStateMachine  = errors.New("no free PIO state machine")
	ErrPinsNotAdjacent = errors.New("axis step pins must be consecutive")
	ErrUnknownMask     = errors.New("step channels not attached")
)

// Command word: inter-pulse delay in PIO cycles. One word produces
// one pulse on every SET pin and one completion word in the RX FIFO.
//
// buildStepProgram creates the step PIO program using AssemblerV0
func buildStepProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),                   // 0: pull block
		asm.Out(rp2pio.OutDestX, 32).Encode(),            // 1: out x, 32 (delay)
		asm.Set(rp2pio.SetDestPins, 3).Delay(7).Encode(), // 2: set pins, 3 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 3: set pins, 0
		// delay_loop:
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 4: jmp x--, 4
		asm.Push(false, false).Encode(),          // 5: push noblock
		// .wrap
	}
}

const (
	stepProgramOrigin = 0 // Load at offset 0 for correct jump addresses

	// fixedCycles is the program overhead of one pulse
	fixedCycles = 13
)

type channel struct {
	sm      rp2pio.StateMachine
	mask    core.ChannelMask
	handler func()
}

// StepGen implements core.StepGenerator on the RP2040 PIO blocks
type StepGen struct {
	mu       sync.Mutex
	pins     []machine.Pin // step pin of each channel number
	offsets  [2]int        // program offset per PIO block, -1 if not loaded
	channels []*channel
	cpuFreq  uint32
}

// NewStepGen creates a generator. pins[n] is the step pin of channel n.
func NewStepGen(pins []machine.Pin) *StepGen {
	return &StepGen{
		pins:    pins,
		offsets: [2]int{-1, -1},
		cpuFreq: machine.CPUFrequency(),
	}
}

// Attach claims a state machine for the channels in mask. The step pins
// of the channels must be consecutive.
func (g *StepGen) Attach(mask core.ChannelMask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.find(mask) != nil {
		return nil
	}

	first := uint8(bits.TrailingZeros32(uint32(mask)))
	count := uint8(bits.OnesCount32(uint32(mask)))
	if int(first)+int(count) > len(g.pins) {
		return ErrUnknownMask
	}
	base := g.pins[first]
	for i := uint8(1); i < count; i++ {
		if mask&core.Channel(first+i) == 0 || g.pins[first+i] != base+machine.Pin(i) {
			return ErrPinsNotAdjacent
		}
	}

	block, sm, err := claim()
	if err != nil {
		return err
	}
	pioNum := block.BlockIndex()

	program := buildStepProgram()
	if g.offsets[pioNum] < 0 {
		offset, err := block.AddProgram(program, stepProgramOrigin)
		if err != nil {
			return err
		}
		g.offsets[pioNum] = int(offset)
	}
	offset := uint8(g.offsets[pioNum])

	for i := uint8(0); i < count; i++ {
		(base + machine.Pin(i)).Configure(machine.PinConfig{Mode: block.PinMode()})
	}

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(base, count)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset, offset+uint8(len(program))-1)
	cfg.SetClkDivIntFrac(1, 0)

	sm.Init(offset, cfg)
	sm.SetPindirsConsecutive(base, count, true)
	sm.SetPinsConsecutive(base, count, false)
	sm.SetEnabled(true)

	g.channels = append(g.channels, &channel{sm: sm, mask: mask})
	return nil
}

// SetCompletionHandler attaches mask if needed and registers fn
func (g *StepGen) SetCompletionHandler(mask core.ChannelMask, fn func()) {
	if err := g.Attach(mask); err != nil {
		panic("stepgen: " + err.Error())
	}
	g.mu.Lock()
	g.find(mask).handler = fn
	g.mu.Unlock()
}

// Emit queues one pulse at freqHz on the state machine owning mask
func (g *StepGen) Emit(mask core.ChannelMask, freqHz uint32) {
	g.mu.Lock()
	ch := g.find(mask)
	g.mu.Unlock()
	if ch == nil {
		return
	}

	if freqHz == 0 {
		freqHz = 1
	}
	delay := g.cpuFreq / freqHz
	if delay > fixedCycles {
		delay -= fixedCycles
	} else {
		delay = 0
	}

	for ch.sm.IsTxFIFOFull() {
	}
	ch.sm.TxPut(delay)
}

// Poll delivers completions. Run it in its own goroutine.
func (g *StepGen) Poll(interval time.Duration) {
	for {
		g.mu.Lock()
		channels := g.channels
		g.mu.Unlock()

		for _, ch := range channels {
			for !ch.sm.IsRxFIFOEmpty() {
				ch.sm.RxGet()
				if ch.handler != nil {
					ch.handler()
				}
			}
		}
		time.Sleep(interval)
	}
}

// Stop halts every state machine and drops queued pulses
func (g *StepGen) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.channels {
		ch.sm.SetEnabled(false)
		ch.sm.ClearFIFOs()
		ch.sm.Restart()
		ch.sm.SetEnabled(true)
	}
}

// claim takes a free state machine, PIO0 first
func claim() (*rp2pio.PIO, rp2pio.StateMachine, error) {
	for _, block := range []*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1} {
		if sm, err := block.ClaimStateMachine(); err == nil {
			return block, sm, nil
		}
	}
	return nil, rp2pio.StateMachine{}, ErrNoStateMachine
}

func (g *StepGen) find(mask core.ChannelMask) *channel {
	for _, ch := range g.channels {
		if ch.mask == mask {
			return ch
		}
	}
	return nil
}
