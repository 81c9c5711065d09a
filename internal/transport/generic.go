package transport

import (
	"io"
	"net"

	"github.com/goburrow/serial"
)

// openSerial dials a serial device (including a Bluetooth SPP rfcomm
// device node) at a fixed 115200 8N1, matching what the device's raster
// mode expects regardless of transport.
func openSerial(address string) (io.ReadWriteCloser, error) {
	return serial.Open(&serial.Config{
		Address:  address,
		BaudRate: 115200,
		StopBits: 1,
		Parity:   "N",
	})
}

func openTCP(address string) (io.ReadWriteCloser, error) {
	return net.Dial("tcp", address)
}
