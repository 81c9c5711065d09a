// Package transport is a driver registry for opening a byte-stream
// connection to a printer: serial (including Bluetooth SPP), TCP, and
// USB backends register themselves here by name.
package transport

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

func init() {
	Register("serial", DriverFunc(openSerial))
	Register("tcp", DriverFunc(openTCP))
}

// Driver opens a connection to a printer at the given address.
type Driver interface {
	Open(address string) (io.ReadWriteCloser, error)
}

// Register adds a named backend. It panics on a nil driver or a
// duplicate name, mirroring database/sql's driver registry.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("transport: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("transport: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Open dials the named backend.
func Open(name, address string) (io.ReadWriteCloser, error) {
	driversMu.RLock()
	driver, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("transport: unknown driver %q", name)
	}
	conn, err := driver.Open(address)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: open %q %q", name, address)
	}
	return conn, nil
}

// DriverFunc adapts a plain function to Driver.
type DriverFunc func(address string) (io.ReadWriteCloser, error)

// Open implements Driver.
func (f DriverFunc) Open(address string) (io.ReadWriteCloser, error) {
	return f(address)
}
