package main

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var hostInitOnce = sync.OnceValue(func() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
})

// initHost loads the periph host drivers once per process.
func initHost() error {
	return hostInitOnce()
}

// ============================================================================
// Accelerometer (tap detection over I2C)
// ============================================================================

// regTransport is the register-level access the accelerometer needs.
type regTransport interface {
	Tx(w, r []byte) error
}

// AccelSensor is one tap-capable accelerometer on an I2C bus.
type AccelSensor struct {
	bus  string
	dev  regTransport
	bc   i2c.BusCloser // nil when injected
	addr uint16
}

// openAccelSensor opens bus (e.g. "1" or "/dev/i2c-1") and addresses the
// sensor at addr.
func openAccelSensor(bus string, addr uint16) (*AccelSensor, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	bc, err := i2creg.Open(bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", bus, err)
	}
	return &AccelSensor{
		bus:  bus,
		dev:  &i2c.Dev{Bus: bc, Addr: addr},
		bc:   bc,
		addr: addr,
	}, nil
}

func (a *AccelSensor) readReg(reg byte) (byte, error) {
	var r [1]byte
	if err := a.dev.Tx([]byte{reg}, r[:]); err != nil {
		return 0, fmt.Errorf("read reg 0x%02x on bus %s addr 0x%02x: %w", reg, a.bus, a.addr, err)
	}
	return r[0], nil
}

func (a *AccelSensor) writeReg(reg, v byte) error {
	if err := a.dev.Tx([]byte{reg, v}, nil); err != nil {
		return fmt.Errorf("write reg 0x%02x on bus %s addr 0x%02x: %w", reg, a.bus, a.addr, err)
	}
	return nil
}

// ReadStatus reads and decodes the interrupt-status register.
func (a *AccelSensor) ReadStatus() (TapStatus, error) {
	v, err := a.readReg(regIntStatus)
	if err != nil {
		return TapStatus{}, err
	}
	return decodeTapStatus(v), nil
}

// ConfigureThresholds enables tap interrupts and writes the detection tuning.
// Every register is attempted.
func (a *AccelSensor) ConfigureThresholds(t TapThresholds) error {
	writes := []struct{ reg, v byte }{
		{regIntEnable, intEnableTaps},
		{regODR, odr250Hz},
		{regPowerMode, powerNormal},
		{regRange, range2G},
		{regTapThresh, t.Threshold & 0x1F},
		{regTapTiming, encodeTapTiming(t)},
	}
	var err error
	for _, w := range writes {
		err = multierr.Append(err, a.writeReg(w.reg, w.v))
	}
	return err
}

// Close releases the bus.
func (a *AccelSensor) Close() error {
	if a.bc == nil {
		return nil
	}
	return a.bc.Close()
}

func decodeTapStatus(v byte) TapStatus {
	return TapStatus{
		Single: v&statusSingle != 0,
		Double: v&statusDouble != 0,
	}
}

// encodeTapTiming packs quiet<<7 | shock<<6 | dur.
func encodeTapTiming(t TapThresholds) byte {
	return (t.Quiet&0x01)<<7 | (t.Shock&0x01)<<6 | t.Duration&0x07
}

// ============================================================================
// GPIO button (pull-up, active low)
// ============================================================================

type gpioButton struct {
	pin gpio.PinIO
}

func openGPIOButton(name string) (*gpioButton, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure gpio %s as input: %w", name, err)
	}
	return &gpioButton{pin: p}, nil
}

// Pressed reports the button level; a pressed button pulls the line low.
func (b *gpioButton) Pressed() (bool, error) {
	return b.pin.Read() == gpio.Low, nil
}

// ============================================================================
// PWM motor
// ============================================================================

type pwmMotor struct {
	pin  gpio.PinOut
	freq physic.Frequency
}

func openPWMMotor(name string, hz int) (*pwmMotor, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure gpio %s as output: %w", name, err)
	}
	return &pwmMotor{pin: p, freq: physic.Frequency(hz) * physic.Hertz}, nil
}

// SetDuty maps a 16-bit duty onto the pin. Zero drives the pin low.
func (m *pwmMotor) SetDuty(duty uint16) error {
	if duty == 0 {
		return m.pin.Out(gpio.Low)
	}
	return m.pin.PWM(dutyFrom16(duty), m.freq)
}

func dutyFrom16(d uint16) gpio.Duty {
	return gpio.Duty(int64(d) * int64(gpio.DutyMax) / 0xFFFF)
}
