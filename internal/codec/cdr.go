// Package codec serialises sensor samples as little-endian CDR payloads
// prefixed with the standard 4-byte encapsulation header.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"EnvData-Apps/internal/sensor"
)

const (
	version = 1

	nanosPerSec = 1e9
	// largest string we accept from the wire
	maxStringLen = 1 << 16
)

// encapsulation identifier for CDR little endian
var encapCDRLE = [4]byte{0x00, 0x01, 0x00, 0x00}

var (
	ErrShortBuffer         = errors.New("codec: short buffer")
	ErrBadEncapsulation    = errors.New("codec: unsupported encapsulation")
	ErrUnsupportedVersion  = errors.New("codec: unsupported version")
	ErrMalformedString     = errors.New("codec: malformed string")
	ErrUnknownSampleStatus = errors.New("codec: unknown sample state")
)

// State is the instance state a sample carries.
type State uint8

const (
	StateAlive State = iota
	StateUnregistered
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateUnregistered:
		return "unregistered"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Envelope is one sample as it travels on a transport topic.
type Envelope struct {
	State     State
	Writer    uuid.UUID
	Seq       uint64
	Timestamp time.Time
	TypeName  string
	Reading   sensor.Reading
}

type encoder struct {
	buf []byte
}

// body offsets are relative to the end of the encapsulation header
func (e *encoder) align(n int) {
	for (len(e.buf)-len(encapCDRLE))%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) u32(v uint32) {
	e.align(4)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.align(8)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// Marshal encodes env. Lifecycle samples still carry the reading id so the
// receiver can tell which instance went away.
func Marshal(env Envelope) ([]byte, error) {
	if env.State > StateDisposed {
		return nil, ErrUnknownSampleStatus
	}
	for _, s := range []string{env.TypeName, env.Reading.ID, env.Reading.Type} {
		if len(s)+1 > maxStringLen {
			return nil, fmt.Errorf("codec: string of %d bytes too long", len(s))
		}
	}
	e := &encoder{buf: make([]byte, 0, 96+len(env.TypeName)+len(env.Reading.ID)+len(env.Reading.Type))}
	e.buf = append(e.buf, encapCDRLE[:]...)
	e.u8(version)
	e.u8(uint8(env.State))
	e.align(4)
	e.buf = append(e.buf, env.Writer[:]...)
	e.u64(env.Seq)
	sec, frac := timeToNTP(env.Timestamp)
	e.u32(sec)
	e.u32(frac)
	e.str(env.TypeName)
	e.str(env.Reading.ID)
	e.str(env.Reading.Type)
	e.u32(math.Float32bits(env.Reading.Value))
	return e.buf, nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) align(n int) {
	for (d.off-len(encapCDRLE))%n != 0 {
		d.off++
	}
}

func (d *decoder) need(n int) error {
	if d.off+n > len(d.buf) || d.off+n < d.off {
		return ErrShortBuffer
	}
	return nil
}

func (d *decoder) u8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	d.align(4)
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	d.align(8)
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	if n == 0 || n > maxStringLen {
		return "", ErrMalformedString
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	raw := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	if raw[n-1] != 0 {
		return "", ErrMalformedString
	}
	return string(raw[:n-1]), nil
}

// Unmarshal decodes a payload produced by Marshal.
func Unmarshal(b []byte) (Envelope, error) {
	var env Envelope
	if len(b) < len(encapCDRLE) {
		return env, ErrShortBuffer
	}
	if [4]byte(b[:4]) != encapCDRLE {
		return env, ErrBadEncapsulation
	}
	d := &decoder{buf: b, off: len(encapCDRLE)}
	ver, err := d.u8()
	if err != nil {
		return env, err
	}
	if ver != version {
		return env, fmt.Errorf("%w: %d", ErrUnsupportedVersion, ver)
	}
	st, err := d.u8()
	if err != nil {
		return env, err
	}
	if State(st) > StateDisposed {
		return env, ErrUnknownSampleStatus
	}
	env.State = State(st)
	d.align(4)
	if err := d.need(16); err != nil {
		return env, err
	}
	copy(env.Writer[:], d.buf[d.off:d.off+16])
	d.off += 16
	if env.Seq, err = d.u64(); err != nil {
		return env, err
	}
	sec, err := d.u32()
	if err != nil {
		return env, err
	}
	frac, err := d.u32()
	if err != nil {
		return env, err
	}
	env.Timestamp = timeFromNTP(sec, frac)
	if env.TypeName, err = d.str(); err != nil {
		return env, err
	}
	if env.Reading.ID, err = d.str(); err != nil {
		return env, err
	}
	if env.Reading.Type, err = d.str(); err != nil {
		return env, err
	}
	bits, err := d.u32()
	if err != nil {
		return env, err
	}
	env.Reading.Value = math.Float32frombits(bits)
	return env, nil
}

// timeToNTP splits t into seconds and 2^-32 fractions, rounding the
// fraction up so decoding recovers the exact nanosecond.
func timeToNTP(t time.Time) (uint32, uint32) {
	if t.IsZero() {
		return 0, 0
	}
	sec := uint32(t.Unix())
	frac := uint32((nanosPerSec - 1 + (int64(t.Nanosecond()) << 32)) / nanosPerSec)
	return sec, frac
}

func timeFromNTP(sec, frac uint32) time.Time {
	if sec == 0 && frac == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), (int64(frac)*nanosPerSec)>>32).UTC()
}
