//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

var (
	adcs [4]machine.ADC
	uart = machine.UART0

	// Actuator states
	heaterPermille int
	fanOn          bool
	windowStart    time.Time

	// ADC averaging - running sums and count
	adcSums     [4]uint32
	sampleCount int

	// Timing
	lastADCRead time.Time

	// Serial buffer for reading lines
	serialBuffer [8]byte
	serialPos    int
)

func main() {
	PIN_HEATER.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_FAN.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_HEATER.Low()
	PIN_FAN.Low()

	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}
	for i, pin := range PIN_ADC {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()
	windowStart = lastADCRead

	for {
		now := time.Now()

		processSerial()
		driveHeater(now)

		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			readADCs()
			lastADCRead = now
		}

		if sampleCount >= NUM_SAMPLES {
			outputAveragedValues()
			adcSums = [4]uint32{}
			sampleCount = 0
		}

		time.Sleep(100 * time.Microsecond)
	}
}

// driveHeater switches the heater pin for time-proportional duty.
func driveHeater(now time.Time) {
	elapsed := now.Sub(windowStart)
	if elapsed >= HEATER_WINDOW_MS*time.Millisecond {
		windowStart = now
		elapsed = 0
	}
	if elapsed < time.Duration(heaterPermille)*time.Millisecond*HEATER_WINDOW_MS/1000 {
		PIN_HEATER.High()
	} else {
		PIN_HEATER.Low()
	}
}

func readADCs() {
	for i := range adcs {
		// Get returns a 16-bit left-aligned value; keep the positive 15-bit range.
		adcSums[i] += uint32(adcs[i].Get() >> 1)
	}
	sampleCount++
}

func outputAveragedValues() {
	n := uint32(sampleCount)
	if n == 0 {
		n = 1
	}

	timestampMicros := time.Now().UnixNano() / 1000

	// Output format: "unix_micros,a0,a1,a2,a3,heater_permille,fan\n"
	print(timestampMicros)
	for i := range adcSums {
		avg := adcSums[i] / n
		if avg > COUNTS_FULLSCALE {
			avg = COUNTS_FULLSCALE
		}
		print(",")
		print(avg)
	}
	print(",")
	print(heaterPermille)
	if fanOn {
		print(",1\n")
	} else {
		print(",0\n")
	}
}

// processSerial accepts "H<permille>" and "F<0|1>" commands, one per line.
func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				handleCommand(serialBuffer[:serialPos])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong line - drop it
			serialPos = 0
		}
	}
}

func handleCommand(cmd []byte) {
	value, ok := parseUint(cmd[1:])
	if !ok {
		return
	}

	switch cmd[0] {
	case 'H':
		if value > 1000 {
			value = 1000
		}
		heaterPermille = value
	case 'F':
		fanOn = value != 0
		if fanOn {
			PIN_FAN.High()
		} else {
			PIN_FAN.Low()
		}
	}
}

func parseUint(digits []byte) (int, bool) {
	if len(digits) == 0 {
		return 0, false
	}
	value := 0
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, false
		}
		value = value*10 + int(d-'0')
	}
	return value, true
}
