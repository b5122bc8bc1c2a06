// Package protocol holds the byte stream plumbing between a transport
// (UART, USB CDC, host serial) and the command line parser.
package protocol

// Version represents the firmware version
const Version = "0.1.0"

// RxRingSize is the receive ring size of the firmware and simulator
const RxRingSize = 512
