package growatt_modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

var ErrTestConnRefused = errors.New("connection refused")

func CreateTestInverterClient(mode uint16) *TestInverterClient {
	return &TestInverterClient{Mode: mode}
}

// Inverter

// TestInverterClient is an in-memory InverterClient. Errors set on it are
// returned by the following operations until cleared.
type TestInverterClient struct {
	mu          sync.Mutex
	Mode        uint16
	ReadError   error
	WriteError  error
	ReadDelay   time.Duration
	WriteDelay  time.Duration
	reads       int
	writes      [][]RegisterWrite
	inFlight    int
	maxInFlight int
}

// begin marks an operation as started and waits for delay, outside the lock.
func (inv *TestInverterClient) begin(delay func() time.Duration) {
	inv.mu.Lock()
	inv.inFlight++
	if inv.inFlight > inv.maxInFlight {
		inv.maxInFlight = inv.inFlight
	}
	d := delay()
	inv.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (inv *TestInverterClient) ReadInverterMode() (uint16, error) {
	inv.begin(func() time.Duration { return inv.ReadDelay })

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.inFlight--
	inv.reads++
	if inv.ReadError != nil {
		return 0, inv.ReadError
	}
	return inv.Mode, nil
}

func (inv *TestInverterClient) WriteRegisters(writes ...RegisterWrite) error {
	inv.begin(func() time.Duration { return inv.WriteDelay })

	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.inFlight--
	if inv.WriteError != nil {
		return inv.WriteError
	}
	inv.writes = append(inv.writes, append([]RegisterWrite(nil), writes...))
	return nil
}

func (inv *TestInverterClient) SetMode(mode uint16) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.Mode = mode
}

func (inv *TestInverterClient) SetReadError(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.ReadError = err
}

func (inv *TestInverterClient) SetReadDelay(delay time.Duration) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.ReadDelay = delay
}

func (inv *TestInverterClient) SetWriteDelay(delay time.Duration) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.WriteDelay = delay
}

func (inv *TestInverterClient) SetWriteError(err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.WriteError = err
}

func (inv *TestInverterClient) Reads() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.reads
}

// MaxInFlight is the highest number of operations seen running at once.
func (inv *TestInverterClient) MaxInFlight() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.maxInFlight
}

func (inv *TestInverterClient) Writes() [][]RegisterWrite {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return append([][]RegisterWrite(nil), inv.writes...)
}

// Connection

// TestRegisterConn records every operation done on it. Registers hold the
// values returned by reads and receive the values written.
type TestRegisterConn struct {
	mu             sync.Mutex
	Registers      map[uint16]uint16
	FailOpen       bool
	FailReadAt     map[uint16]bool
	FailWriteAt    map[uint16]bool
	PanicOnWriteAt map[uint16]bool
	ops            []string
	opened         bool
}

func NewTestRegisterConn(registers map[uint16]uint16) *TestRegisterConn {
	if registers == nil {
		registers = map[uint16]uint16{}
	}
	return &TestRegisterConn{
		Registers:      registers,
		FailReadAt:     map[uint16]bool{},
		FailWriteAt:    map[uint16]bool{},
		PanicOnWriteAt: map[uint16]bool{},
	}
}

// Factory hands out the same recorder on every dial so a test can inspect
// the whole open/use/close sequence.
func (c *TestRegisterConn) Factory() ConnectionFactory {
	return func() (RegisterConn, error) {
		return c, nil
	}
}

func (c *TestRegisterConn) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailOpen {
		c.ops = append(c.ops, "open failed")
		return ErrTestConnRefused
	}
	c.opened = true
	c.ops = append(c.ops, "open")
	return nil
}

func (c *TestRegisterConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	c.ops = append(c.ops, "close")
	return nil
}

func (c *TestRegisterConn) ReadRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, fmt.Sprintf("read %d", addr))
	if c.FailReadAt[addr] {
		return 0, fmt.Errorf("illegal data address %d", addr)
	}
	return c.Registers[addr], nil
}

func (c *TestRegisterConn) WriteRegisters(addr uint16, values []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, fmt.Sprintf("write %d %v", addr, values))
	if c.PanicOnWriteAt[addr] {
		panic(fmt.Sprintf("gateway reset while writing %d", addr))
	}
	if c.FailWriteAt[addr] {
		return fmt.Errorf("illegal data address %d", addr)
	}
	for i, v := range values {
		c.Registers[addr+uint16(i)] = v
	}
	return nil
}

func (c *TestRegisterConn) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

func (c *TestRegisterConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

// ensure interface compliance
var _ InverterClient = (*TestInverterClient)(nil)
var _ RegisterConn = (*TestRegisterConn)(nil)
