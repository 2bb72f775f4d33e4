package main

// Linux input event types (from <linux/input.h>)
const (
	EV_KEY = 0x01
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Control value domain
const (
	maxControlValue     = 4095
	neutralControlValue = 2048 // mid-scale default before any update arrives
	maxMIDIValue        = 127
)

// Scheduler cadence defaults (milliseconds)
const (
	defaultTapPollMS    = 10
	defaultButtonPollMS = 10
	defaultInboxPollMS  = 100
)

// Light gate defaults.
// Readings are 16-bit samples; at or below the threshold the photoresistor is covered.
const (
	defaultLightThreshold = 5000
	defaultLightRepollMS  = 10
	defaultLightBits      = 12
)

// Actuator (vibration motor) defaults
const (
	defaultActuatorFreqHz    = 100
	defaultActuatorIntensity = 50000 // 16-bit duty while a note is sounding
)

// Accelerometer register map and defaults
const (
	defaultAccelAddr = 0x62

	regIntStatus    = 0x09 // bit 5 single tap, bit 4 double tap
	regRange        = 0x0F
	regODR          = 0x10
	regPowerMode    = 0x11
	regIntEnable    = 0x16
	regTapTiming    = 0x2A // quiet<<7 | shock<<6 | dur (bits 0-2)
	regTapThresh    = 0x2B
	statusSingle    = 0x20
	statusDouble    = 0x10
	intEnableTaps   = statusSingle | statusDouble
	odr250Hz        = 0x03
	powerNormal     = 0x02
	range2G         = 0x00
	defaultTapDur   = 0x07
	defaultTapThr   = 0x03
	defaultTapShk   = 0x01
	defaultTapQuiet = 0x01
)

// Output defaults
const (
	defaultMIDIChannel = 9 // General MIDI percussion
	defaultBaudRate    = 115200
)

// Display / mode tokens
const (
	defaultIdleToken = "drums"
)

// Inbound control tokens
const (
	tokenArm    = "start"
	tokenDisarm = "stop"
	tokenPlay   = "play"
)
