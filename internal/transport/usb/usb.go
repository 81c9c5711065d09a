// Package usb implements the transport.Driver backend for directly
// attached Brother P-touch/QL printers over USB, bypassing any serial
// emulation layer.
package usb

import (
	"encoding/binary"
	"encoding/hex"
	"io"
	"strings"
	"sync"

	"github.com/google/gousb"
	"github.com/pkg/errors"

	"github.com/ptouchraster/rastertoptch/internal/transport"
)

const (
	brotherVendorID   = 0x04f9
	productIDPTP700   = 0x2061
	productIDPTP750W  = 0x2062
	productIDPTP710BT = 0x20af
	productIDQL820NWB = 0x209d
)

// Serial is an io.ReadWriteCloser backed by a USB bulk in/out endpoint
// pair.
type Serial struct {
	dev    *gousb.Device
	mu     sync.Mutex
	readm  sync.Mutex
	writem sync.Mutex
	input  *gousb.InEndpoint
	output *gousb.OutEndpoint
	done   func()
}

func init() {
	transport.Register("usb", transport.DriverFunc(func(address string) (io.ReadWriteCloser, error) {
		s, err := Open(address)
		if err != nil {
			return nil, err
		}
		return s, nil
	}))
}

// Open opens a USB connection to a printer. If address is empty, it
// probes a fixed list of known Brother product IDs; otherwise address
// must be a "0xNNNN" product ID.
func Open(address string) (*Serial, error) {
	var err error
	var done func()
	var dev *gousb.Device
	var usbif *gousb.Interface
	var input *gousb.InEndpoint
	var output *gousb.OutEndpoint

	ctx := gousb.NewContext()
	ctx.Debug(1)

	if address != "" {
		if !strings.HasPrefix(address, "0x") {
			err = errors.New(`invalid device address, want "0xNNNN" form`)
			goto handleError
		}
		var productID []byte
		productID, err = hex.DecodeString(address[2:])
		if err != nil {
			goto handleError
		}
		dev, err = ctx.OpenDeviceWithVIDPID(brotherVendorID, gousb.ID(binary.BigEndian.Uint16(productID)))
		if err != nil {
			goto handleError
		}
	} else {
		for _, pid := range []gousb.ID{productIDPTP750W, productIDPTP700, productIDPTP710BT, productIDQL820NWB} {
			dev, _ = ctx.OpenDeviceWithVIDPID(brotherVendorID, pid)
			if dev != nil {
				break
			}
		}
	}

	if dev == nil {
		err = errors.New("USB device not found")
		goto handleError
	}

	err = dev.SetAutoDetach(true)
	if err != nil {
		err = errors.Wrap(err, "set auto detach kernel driver")
		goto handleError
	}

	usbif, done, err = dev.DefaultInterface()
	if err != nil {
		err = errors.Wrap(err, "get default interface")
		goto handleError
	}

	input, err = usbif.InEndpoint(0x81)
	if err != nil {
		err = errors.Wrap(err, "open InEndpoint")
		goto handleError
	}

	output, err = usbif.OutEndpoint(0x02)
	if err != nil {
		err = errors.Wrap(err, "open OutEndpoint")
		goto handleError
	}

	return &Serial{
		dev:    dev,
		input:  input,
		output: output,
		done: func() {
			done()
			dev.Close()
			ctx.Close()
		},
	}, nil

handleError:
	if done != nil {
		done()
	}
	if dev != nil {
		dev.Close()
	}
	ctx.Close()
	return nil, err
}

// Close releases the USB interface and device handle.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.done
	s.done = nil
	s.input = nil
	s.output = nil
	if done != nil {
		done()
	}
	return nil
}

// Write implements io.Writer.
func (s *Serial) Write(b []byte) (int, error) {
	s.writem.Lock()
	defer s.writem.Unlock()
	return s.output.Write(b)
}

// Read implements io.Reader.
func (s *Serial) Read(b []byte) (int, error) {
	s.readm.Lock()
	defer s.readm.Unlock()
	return s.input.Read(b)
}
