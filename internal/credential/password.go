package credential

import "github.com/oshokin/alarm-display/internal/domain/alarm"

// MaxPasswordLength is the number of digits a PIN may hold.
const MaxPasswordLength = 12

// PendingPassword is a fixed-capacity digit buffer.
type PendingPassword struct {
	// digits holds the entered symbols; only the first n are valid.
	digits [MaxPasswordLength]byte
	// n is the number of valid digits.
	n int
}

// Push appends a digit. When the buffer is full the digit is
// discarded and ErrBufferOverflow is returned; the buffer is kept.
func (p *PendingPassword) Push(digit byte) error {
	if p.n >= MaxPasswordLength {
		return alarm.ErrBufferOverflow
	}

	p.digits[p.n] = digit
	p.n++

	return nil
}

// Len returns the number of entered digits.
func (p *PendingPassword) Len() int {
	return p.n
}

// String returns the entered digits.
func (p *PendingPassword) String() string {
	return string(p.digits[:p.n])
}

// Clear wipes the buffer.
func (p *PendingPassword) Clear() {
	clear(p.digits[:])
	p.n = 0
}
